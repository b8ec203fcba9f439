package pitch

import (
	"math"
	"strconv"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// DefaultReferencePitch is the frequency of A4 in Hz.
const DefaultReferencePitch = 440.0

// NoteName returns the scientific pitch name of a MIDI note, for example
// "A4" for 69. Notes outside 0..127 return "-".
func NoteName(midi int) string {
	if midi < 0 || midi > 127 {
		return "-"
	}

	return noteNames[midi%12] + strconv.Itoa(midi/12-1)
}

// PitchClass returns the note name without octave, for example "A".
func PitchClass(midi int) string {
	return noteNames[((midi%12)+12)%12]
}

// MIDIToFrequency returns the frequency of a MIDI note for the given A4
// reference.
func MIDIToFrequency(midi int, reference float64) float64 {
	return reference * math.Exp2(float64(midi-69)/12)
}

// FrequencyToMIDI returns the fractional MIDI note of freq.
func FrequencyToMIDI(freq, reference float64) float64 {
	return 69 + 12*math.Log2(freq/reference)
}

// splitNote rounds a fractional MIDI note and returns the deviation in cents.
func splitNote(exact float64) (int, float64) {
	note := int(math.Round(exact))
	return note, (exact - float64(note)) * 100
}

// GuitarString is one string of a standard-tuned guitar.
type GuitarString struct {
	Name        string
	MIDINote    int
	FrequencyHz float64
}

// GuitarStrings lists standard tuning from low E to high E.
var GuitarStrings = [6]GuitarString{
	{"E2", 40, 82.41},
	{"A2", 45, 110.00},
	{"D3", 50, 146.83},
	{"G3", 55, 196.00},
	{"B3", 59, 246.94},
	{"E4", 64, 329.63},
}

// NearestGuitarString returns the index into [GuitarStrings] whose pitch
// class is closest to midi+cents, folding octaves, and the signed distance
// in cents. It returns -1 for a negative note.
func NearestGuitarString(midi int, cents float64) (int, float64) {
	if midi < 0 {
		return -1, 0
	}

	nearest := -1
	best := math.Inf(1)

	for i, s := range GuitarStrings {
		diff := midi - s.MIDINote
		for diff > 6 {
			diff -= 12
		}

		for diff < -6 {
			diff += 12
		}

		off := float64(diff)*100 + cents
		if math.Abs(off) < math.Abs(best) {
			best = off
			nearest = i
		}
	}

	return nearest, best
}
