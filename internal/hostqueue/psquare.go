package hostqueue

// percentileEstimator is a streaming quantile estimator used purely for
// CoDel diagnostics (spec §4.C [FULL]: "samples sojourn times into a P2
// streaming-percentile estimator ... purely for diagnostics"; the drop
// decision itself never reads this). It is the P-Square algorithm (Jain &
// Chlamtac 1985), adapted from the teacher's pSquareQuantile
// (eventloop/psquare.go), trimmed to the single-quantile case CoDel needs.
type percentileEstimator struct {
	p           float64
	q           [5]float64
	n           [5]int
	np          [5]float64
	dn          [5]float64
	count       int
	initBuffer  [5]float64
	initialized bool
}

func newPercentileEstimator(p float64) percentileEstimator {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return percentileEstimator{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

// Observe adds a new sample.
func (ps *percentileEstimator) Observe(x float64) {
	ps.count++
	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
		k = 0
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := ps.parabolic(i, sign)
			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

func (ps *percentileEstimator) initialize() {
	for i := 1; i < 5; i++ {
		key := ps.initBuffer[i]
		j := i - 1
		for j >= 0 && ps.initBuffer[j] > key {
			ps.initBuffer[j+1] = ps.initBuffer[j]
			j--
		}
		ps.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		ps.q[i] = ps.initBuffer[i]
		ps.n[i] = i
	}
	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
	ps.initialized = true
}

func (ps *percentileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(ps.n[i]), float64(ps.n[i-1]), float64(ps.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)
	return ps.q[i] + term1*(term2+term3)
}

func (ps *percentileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

// Value returns the current estimated quantile.
func (ps *percentileEstimator) Value() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		sorted := append([]float64(nil), ps.initBuffer[:ps.count]...)
		for i := 1; i < len(sorted); i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		idx := int(float64(ps.count-1) * ps.p)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return ps.q[2]
}
