// Package effect defines the contract shared by every real-time effect.
//
// A [Processor] is prepared once per stream, processes blocks in place on the
// audio goroutine, and is configured from a control goroutine by publishing
// whole parameter structs through a [ParamStore]. Bypass is an atomic flag.
// Persisted settings travel as a keyed [State] blob whose getters fall back to
// defaults for missing or malformed values.
package effect
