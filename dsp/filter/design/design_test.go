package design

import (
	"math"
	"testing"

	"github.com/cwbudde/onstage-dsp/dsp/filter/biquad"
)

const sr = 48000.0

func TestDesignResponses(t *testing.T) {
	tests := []struct {
		name   string
		coeffs biquad.Coefficients
		freq   float64
		wantDB float64
		tolDB  float64
	}{
		{"lowpass passband", Lowpass(1000, ButterworthQ, sr), 50, 0, 0.05},
		{"lowpass cutoff", Lowpass(1000, ButterworthQ, sr), 1000, -3.01, 0.05},
		{"lowpass stopband", Lowpass(1000, ButterworthQ, sr), 10000, -42.7, 0.5},
		{"highpass passband", Highpass(1000, ButterworthQ, sr), 15000, 0, 0.1},
		{"highpass cutoff", Highpass(1000, ButterworthQ, sr), 1000, -3.01, 0.05},
		{"bandpass center", Bandpass(7000, 1.5, sr), 7000, 0, 0.01},
		{"bandpass off band", Bandpass(7000, 1.5, sr), 500, -27, 1},
		{"peak center", Peak(2000, 3, 1, sr), 2000, 3, 0.01},
		{"peak far", Peak(2000, 3, 1, sr), 20, 0, 0.05},
		{"high shelf top", HighShelf(8000, -6, ButterworthQ, sr), 20000, -6, 0.5},
		{"high shelf bottom", HighShelf(8000, -6, ButterworthQ, sr), 100, 0, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coeffs.MagnitudeDB(tt.freq, sr)
			if math.Abs(got-tt.wantDB) > tt.tolDB {
				t.Fatalf("|H(%v)| = %.3f dB, want %.3f ± %.3f", tt.freq, got, tt.wantDB, tt.tolDB)
			}
		})
	}
}

func TestInvalidInputsYieldIdentity(t *testing.T) {
	tests := []struct {
		name   string
		coeffs biquad.Coefficients
	}{
		{"zero rate", Lowpass(1000, 0.7, 0)},
		{"above nyquist", Highpass(30000, 0.7, sr)},
		{"nan freq", Bandpass(math.NaN(), 1, sr)},
		{"negative freq", Peak(-5, 3, 1, sr)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.coeffs != biquad.Identity() {
				t.Fatalf("coeffs = %#v, want identity", tt.coeffs)
			}
		})
	}
}

func TestClampFrequency(t *testing.T) {
	if got := ClampFrequency(30000, 44100); got != 0.45*44100 {
		t.Fatalf("ClampFrequency(30000) = %v, want %v", got, 0.45*44100)
	}

	if got := ClampFrequency(1000, 44100); got != 1000 {
		t.Fatalf("ClampFrequency(1000) = %v, want 1000", got)
	}
}

func TestLinkwitzRiley4SumsFlat(t *testing.T) {
	lp := biquad.NewChain(LinkwitzRiley4LP(1000, sr))
	hp := biquad.NewChain(LinkwitzRiley4HP(1000, sr))

	for _, f := range []float64{50, 500, 1000, 2000, 10000} {
		sum := lp.Response(f, sr) + hp.Response(f, sr)

		mag := 20 * math.Log10(math.Hypot(real(sum), imag(sum)))
		if math.Abs(mag) > 0.01 {
			t.Fatalf("|LP+HP| at %v Hz = %.4f dB, want 0", f, mag)
		}
	}

	if got := lp.MagnitudeDB(1000, sr); math.Abs(got+6.02) > 0.05 {
		t.Fatalf("LR4 LP at crossover = %.3f dB, want -6.02", got)
	}
}
