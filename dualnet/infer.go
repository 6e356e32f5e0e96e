package dual

import "github.com/chewxy/math32"

// LegalPolicy computes the legal-policy projection (§4.1) for one
// position's raw policy logits: p(a) = exp(logit(a)) / Σ_{a' legal}
// exp(logit(a')) for a in legalActions, using the max-subtraction trick for
// numerical safety. Illegal-action logits are never exponentiated.
func LegalPolicy(logits []float32, legalActions []int) map[int]float32 {
	if len(legalActions) == 0 {
		return nil
	}

	maxLogit := logits[legalActions[0]]
	for _, a := range legalActions[1:] {
		if logits[a] > maxLogit {
			maxLogit = logits[a]
		}
	}

	exps := make([]float32, len(legalActions))
	var sum float32
	for i, a := range legalActions {
		e := math32.Exp(logits[a] - maxLogit)
		exps[i] = e
		sum += e
	}

	out := make(map[int]float32, len(legalActions))
	for i, a := range legalActions {
		out[a] = exps[i] / sum
	}
	return out
}

// SliceBatch splits a flattened [batch*width]float32 buffer (as returned by
// Forward for a stacked batch) into `batch` per-example slices, so callers
// can pull one leaf's value/policy out of a batched network call.
func SliceBatch(flat []float32, batch, width int) [][]float32 {
	out := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		out[i] = flat[i*width : (i+1)*width]
	}
	return out
}
