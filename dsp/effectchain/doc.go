// Package effectchain hosts processors in a linear pipeline.
//
// A [Registry] maps type names ("Gate", "Saturation", "DeEsser", "Tuner",
// "Pitch", "Recorder") to factories. A [Chain] runs its nodes in order on
// every block and round-trips as a JSON preset of per-node state blobs:
//
//	{"nodes":[{"id":"gate-1","type":"Gate","bypassed":false,"state":{"thresholdDb":-40}}]}
package effectchain
