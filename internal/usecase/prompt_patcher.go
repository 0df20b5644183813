package usecase

import (
	"fmt"
	"math/rand"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
)

// Seed bounds: every seed has exactly 15 decimal digits.
const (
	SeedMin int64 = 100_000_000_000_000
	SeedMax int64 = 999_999_999_999_999
)

type SeedFunc func() int64

// RandomSeed draws uniformly from [SeedMin, SeedMax].
func RandomSeed() int64 {
	return SeedMin + rand.Int63n(SeedMax-SeedMin+1)
}

// PromptPatcher rewrites workflow templates for one generation request.
// It never mutates its input graph.
type PromptPatcher struct {
	seed SeedFunc
}

func NewPromptPatcher(seed SeedFunc) *PromptPatcher {
	if seed == nil {
		seed = RandomSeed
	}
	return &PromptPatcher{seed: seed}
}

// PatchTextPrompt re-seeds the sampler and writes the texts into the nodes
// wired to its positive and negative inputs.
func (p *PromptPatcher) PatchTextPrompt(g *model.WorkflowGraph, positive, negative string) (*model.WorkflowGraph, error) {
	out := g.Clone()
	samplerID, err := out.FindNodeByType(model.ClassKSampler)
	if err != nil {
		return nil, err
	}
	sampler, _ := out.Node(samplerID)
	if err := sampler.SetInput("seed", p.seed()); err != nil {
		return nil, err
	}

	for _, in := range []struct{ name, text string }{
		{"positive", positive},
		{"negative", negative},
	} {
		ref, ok := sampler.Reference(in.name)
		if !ok {
			return nil, fmt.Errorf("%w: sampler %s has no %s reference", domain.ErrStructural, samplerID, in.name)
		}
		target, ok := out.Node(ref.NodeID)
		if !ok {
			return nil, fmt.Errorf("%w: %s prompt node %s does not exist", domain.ErrStructural, in.name, ref.NodeID)
		}
		if err := target.SetInput("text", in.text); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PatchImageReference points every LoadImage node at asset. A graph without
// LoadImage nodes comes back unchanged.
func (p *PromptPatcher) PatchImageReference(g *model.WorkflowGraph, asset string) (*model.WorkflowGraph, error) {
	out := g.Clone()
	for _, id := range out.NodesByType(model.ClassLoadImage) {
		n, _ := out.Node(id)
		if err := n.SetInput("image", asset); err != nil {
			return nil, err
		}
	}
	return out, nil
}
