package saturation

// gainRamp moves linearly from its current value to a new target over a
// fixed number of samples.
type gainRamp struct {
	current   float64
	target    float64
	step      float64
	length    int
	remaining int
}

func (r *gainRamp) prepare(sampleRate, seconds float64) {
	r.length = int(sampleRate * seconds)
	r.reset()
}

func (r *gainRamp) setTarget(target float64) {
	if target == r.target {
		return
	}

	r.target = target

	if r.length <= 0 {
		r.reset()
		return
	}

	r.remaining = r.length
	r.step = (target - r.current) / float64(r.length)
}

func (r *gainRamp) reset() {
	r.current = r.target
	r.remaining = 0
}

func (r *gainRamp) next() float64 {
	if r.remaining > 0 {
		r.remaining--
		r.current += r.step

		if r.remaining == 0 {
			r.current = r.target
		}
	}

	return r.current
}
