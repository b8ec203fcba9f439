// Package recorder streams live stereo audio to 24-bit WAV files.
//
// A [Recorder] sits in the effect pipeline like any other processor. The
// audio goroutine hands blocks to a lock-free queue; a writer goroutine per
// recorder drains it to disk through go-audio's WAV encoder. Control
// goroutines start and stop recordings and poll levels and a downsampled
// min/max waveform.
//
// Recorders belong to a [Registry] owned by the host. Recorders in sync mode
// start and stop together through [Registry.StartAllSynced] and
// [Registry.StopAllSynced].
package recorder
