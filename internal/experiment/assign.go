// Package experiment decides experiment membership for a classified turn and
// maps the assigned variant to a canned response.
package experiment

import (
	"math/rand/v2"
	"sync"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/model"
)

// Source is the uniform random source used for variant draws.
// *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Assignment is the membership decision for a turn.
type Assignment struct {
	ExclusionReason model.ExclusionReason `json:"exclusion_reason,omitempty"`
	Variant         model.Variant         `json:"variant,omitempty"`
}

// Excluded reports whether the turn is outside the experiment.
func (a Assignment) Excluded() bool { return a.ExclusionReason != model.ExclusionNone }

// Assign returns the crisis exclusion for crisis turns without consulting
// src, and otherwise draws A or B with equal probability.
func Assign(c classify.Result, src Source) Assignment {
	if c.IsCrisis {
		return Assignment{ExclusionReason: model.ExclusionCrisis}
	}
	return Assignment{Variant: Draw(src)}
}

// Draw picks a variant uniformly at random.
func Draw(src Source) model.Variant {
	return model.Variants[src.IntN(len(model.Variants))]
}

// NewSource returns a seeded PCG generator. The same seed yields the same
// sequence of draws.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// LockedSource serialises draws from a Source so it can be shared across
// goroutines.
type LockedSource struct {
	mu  sync.Mutex
	src Source
}

func NewLockedSource(src Source) *LockedSource {
	return &LockedSource{src: src}
}

func (l *LockedSource) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntN(n)
}
