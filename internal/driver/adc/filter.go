package adc

// filter smooths one channel with a windowed moving average followed by an
// exponential moving average.
type filter struct {
	window []float64
	size   int
	alpha  float64
	ema    float64
	primed bool
}

func newFilter(size int, alpha float64) *filter {
	return &filter{size: size, alpha: alpha}
}

// Apply feeds one raw sample through the filter and returns the smoothed
// value.
func (f *filter) Apply(v float64) float64 {
	f.window = append(f.window, v)
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}

	var sum float64
	for _, s := range f.window {
		sum += s
	}
	ma := sum / float64(len(f.window))

	if !f.primed {
		f.ema = ma
		f.primed = true
	} else {
		f.ema = f.alpha*ma + (1-f.alpha)*f.ema
	}
	return f.ema
}

// Reset clears the filter state. Used after the channel goes Stale so a
// recovery does not blend with pre-failure history.
func (f *filter) Reset() {
	f.window = f.window[:0]
	f.primed = false
	f.ema = 0
}
