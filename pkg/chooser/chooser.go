// Package chooser implements the weighted probabilistic selection of §4.1:
// given a stack of weight maps, draw one key proportional to the product of
// weights across layers.
package chooser

import (
	"math/rand"

	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/swarmerr"
)

// orderedWeights preserves insertion order so that equal seeds give equal
// draws — Go maps don't, so the caller's first layer must be supplied as an
// ordered slice of (key, weight) pairs.
type orderedWeights struct {
	keys    []string
	weights map[string]float64
}

// Layer is one weight map in the stack. Keys is the layer's iteration
// order; only layer 0's order matters for the final draw order, but every
// layer is expressed the same way for symmetry.
type Layer struct {
	Keys    []string
	Weights map[string]float64
}

// NewLayer builds a Layer whose iteration order is keys — callers that need deterministic order (layer 0) should build it from an
// ordered source (e.g. a config file's declared key order), not by ranging
// a Go map.
func NewLayer(keys []string, weights map[string]float64) Layer {
	return Layer{Keys: keys, Weights: weights}
}

// Choose draws one candidate identifier proportional to the product of
// weights across layers (§4.1). layers[0] is authoritative: a key missing
// from layers[0] has weight 0 and is never chosen. A key missing from a
// later layer is treated as weight 1.0 (that layer leaves it unchanged).
func Choose(rng *rand.Rand, layers ...Layer) (string, error) {
	if len(layers) == 0 {
		return "", swarmerr.ErrNoCandidate
	}

	base := layers[0]
	computed := make(map[string]float64, len(base.Keys))
	var total float64
	for _, k := range base.Keys {
		w := base.Weights[k]
		for _, layer := range layers[1:] {
			if lw, ok := layer.Weights[k]; ok {
				w *= lw
			}
			// absent in a later layer => *1.0, i.e. no change
		}
		computed[k] = w
		total += w
	}

	if total <= 0 {
		metrics.ChooserNoCandidateTotal.Inc()
		return "", swarmerr.ErrNoCandidate
	}

	r := rng.Float64() * total
	var running float64
	for _, k := range base.Keys {
		running += computed[k]
		if running >= r {
			metrics.ChooserDrawsTotal.WithLabelValues(k).Inc()
			return k, nil
		}
	}
	// floating point edge case: return the last key rather than erroring
	last := base.Keys[len(base.Keys)-1]
	metrics.ChooserDrawsTotal.WithLabelValues(last).Inc()
	return last, nil
}
