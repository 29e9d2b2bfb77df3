package acquisition

import "github.com/Aquilesorei/talon/internal/scale"

// Trusted reports whether an impedance reading looks like a settled measurement.
func Trusted(impedance, sentinel float64) bool {
	return impedance > 0 && impedance != sentinel
}

// Select picks the representative sample of a burst.
//
// Among trusted samples the modal impedance wins; when several impedances share
// the highest count, the group whose first sample arrived earliest wins, and the
// first sample of that group is returned. Without any trusted sample the last
// sample in arrival order is returned with trusted=false. ok is false only for
// an empty input.
func Select(samples []scale.DecodedSample, sentinel float64) (winner scale.DecodedSample, trusted bool, ok bool) {
	if len(samples) == 0 {
		return scale.DecodedSample{}, false, false
	}

	type group struct {
		count int
		first int
	}
	groups := make(map[float64]*group)
	var order []float64
	for i, s := range samples {
		if !Trusted(s.Impedance, sentinel) {
			continue
		}
		g, seen := groups[s.Impedance]
		if !seen {
			g = &group{first: i}
			groups[s.Impedance] = g
			order = append(order, s.Impedance)
		}
		g.count++
	}

	if len(order) == 0 {
		return samples[len(samples)-1], false, true
	}

	best := groups[order[0]]
	for _, imp := range order[1:] {
		g := groups[imp]
		switch {
		case g.count > best.count:
			best = g
		case g.count == best.count && samples[g.first].Timestamp.Before(samples[best.first].Timestamp):
			best = g
		}
	}
	return samples[best.first], true, true
}
