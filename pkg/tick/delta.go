package tick

const (
	// WindowSize is the number of delta times kept to compute the mean
	WindowSize = 30
	// WarmUpTicks is the number of ticks before spikes are filtered
	WarmUpTicks = 50
	// SpikeFactor times the mean is the largest accepted delta time
	SpikeFactor = 3
	// DefaultDelta (s) replaces an unusable delta time before any sample exists
	DefaultDelta = 0.004
)

// DeltaSmoother filters delta time spikes, mostly caused by the simulator being paused.
type DeltaSmoother struct {
	window [WindowSize]float64
	n      int
	next   int
	ticks  int
}

// Smooth returns dt, or the window mean when dt is a spike or not positive.
// The returned value is the one stored in the window and is always > 0.
func (s *DeltaSmoother) Smooth(dt float64) float64 {
	mean, ok := s.Mean()
	switch {
	case !(dt > 0):
		if ok {
			dt = mean
		} else {
			dt = DefaultDelta
		}
	case s.ticks > WarmUpTicks && ok && dt > SpikeFactor*mean:
		dt = mean
	}
	s.ticks++

	s.window[s.next] = dt
	s.next = (s.next + 1) % WindowSize
	if s.n < WindowSize {
		s.n++
	}
	return dt
}

// Mean of the samples in the window, ok is false without samples.
func (s *DeltaSmoother) Mean() (mean float64, ok bool) {
	if s.n == 0 {
		return 0, false
	}
	sum := 0.
	for _, v := range s.window[:s.n] {
		sum += v
	}
	return sum / float64(s.n), true
}

// Len is the number of samples in the window.
func (s *DeltaSmoother) Len() int {
	return s.n
}
