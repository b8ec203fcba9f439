package pitch

import "math"

const (
	hmmLowestNote  = 28
	hmmHighestNote = 96
	hmmNotes       = hmmHighestNote - hmmLowestNote + 1
	hmmStates      = hmmNotes + 1 // state 0 is unvoiced

	hmmSelfTransition     = 0.90
	hmmNoteToUnvoiced     = 0.04
	hmmNoteDistanceScale  = 3.0
	hmmUnvoicedSelf       = 0.70
	hmmObservationSigma   = 0.35
	hmmVoicedFloor        = 1e-6
	hmmUnvoicedNoteWeight = 1e-3
)

// noteHMM is an online forward filter over MIDI notes 28..96 plus an
// unvoiced state. Staying on a note is strongly preferred and jumps are
// penalized by their distance in semitones.
type noteHMM struct {
	trans  [][]float64
	belief []float64
	pred   []float64
}

func (h *noteHMM) init() {
	h.trans = make([][]float64, hmmStates)
	for i := range h.trans {
		h.trans[i] = make([]float64, hmmStates)
	}

	h.trans[0][0] = hmmUnvoicedSelf
	for to := 1; to < hmmStates; to++ {
		h.trans[0][to] = (1 - hmmUnvoicedSelf) / hmmNotes
	}

	jump := 1 - hmmSelfTransition - hmmNoteToUnvoiced

	for from := 1; from < hmmStates; from++ {
		row := h.trans[from]
		row[0] = hmmNoteToUnvoiced
		row[from] = hmmSelfTransition

		total := 0.0
		for to := 1; to < hmmStates; to++ {
			if to != from {
				total += math.Exp(-math.Abs(float64(to-from)) / hmmNoteDistanceScale)
			}
		}

		for to := 1; to < hmmStates; to++ {
			if to != from {
				row[to] = jump * math.Exp(-math.Abs(float64(to-from))/hmmNoteDistanceScale) / total
			}
		}
	}

	h.belief = make([]float64, hmmStates)
	h.pred = make([]float64, hmmStates)
	h.reset()
}

func (h *noteHMM) reset() {
	if len(h.belief) == 0 {
		return
	}

	clear(h.belief)
	h.belief[0] = 1
}

// step advances the filter with an observation of the fractional MIDI note
// exact, voiced with probability voiced, and returns the most likely note,
// or -1 when the unvoiced state wins.
func (h *noteHMM) step(exact, voiced float64) int {
	if len(h.belief) == 0 {
		return -1
	}

	clear(h.pred)

	for from, b := range h.belief {
		if b == 0 {
			continue
		}

		for to, p := range h.trans[from] {
			h.pred[to] += b * p
		}
	}

	total := 0.0
	best := 0

	for s := range h.pred {
		b := h.pred[s] * h.observation(s, exact, voiced)
		h.belief[s] = b
		total += b

		if b > h.belief[best] {
			best = s
		}
	}

	if total <= 0 || math.IsNaN(total) {
		h.reset()
		return -1
	}

	for s := range h.belief {
		h.belief[s] /= total
	}

	if best == 0 {
		return -1
	}

	return hmmLowestNote + best - 1
}

func (h *noteHMM) observation(state int, exact, voiced float64) float64 {
	if state == 0 {
		return math.Max(1-voiced, hmmVoicedFloor)
	}

	if voiced <= 0 {
		return hmmUnvoicedNoteWeight
	}

	d := (exact - float64(hmmLowestNote+state-1)) / hmmObservationSigma

	return voiced*math.Exp(-0.5*d*d) + hmmVoicedFloor
}
