package transform

// Adstock applies geometric carry-over decay:
// adstocked[i] = raw[i] + decay*adstocked[i-1], with adstocked[-1] = 0.
// A decay of 0 returns a copy of raw; a decay of 1 is a running cumulative sum.
func Adstock(raw []float64, decay float64) []float64 {
	out := make([]float64, len(raw))
	carry := 0.0
	for i, v := range raw {
		carry = v + decay*carry
		out[i] = carry
	}
	return out
}

// SteadyState is the value a constant input c converges to under decay < 1
func SteadyState(c, decay float64) float64 {
	return c / (1 - decay)
}
