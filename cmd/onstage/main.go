// Command onstage runs the live effect chain offline or in real time.
//
// Usage:
//
//	onstage render [flags] <in.wav>
//	onstage tune [flags] <in.wav>
//	onstage record [flags] <in.wav>
//	onstage info
//
// Settings come from onstage.yaml in the working directory or in
// ~/.config/onstage; flags override them.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
