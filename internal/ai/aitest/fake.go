// Package aitest provides in-memory stand-ins for the text-generation and
// embedding capabilities.
package aitest

import (
	"context"
	"sync"
)

// FakeLLM returns canned responses in order, repeating the last one. It
// records every prompt it receives.
type FakeLLM struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
	Temps     []float64
}

func (f *FakeLLM) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	f.Temps = append(f.Temps, temperature)
	if f.Err != nil {
		return "", f.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	i := len(f.Prompts) - 1
	if i >= len(f.Responses) {
		i = len(f.Responses) - 1
	}
	return f.Responses[i], nil
}

// Calls returns how many times Generate ran.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// FakeEmbedder returns predetermined vectors keyed by text and a default
// vector for anything else.
type FakeEmbedder struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := f.Vectors[t]; ok {
			out = append(out, v)
			continue
		}
		def := f.Default
		if def == nil {
			def = []float32{0.1, 0.1, 0.1}
		}
		out = append(out, def)
	}
	return out, nil
}

func (f *FakeEmbedder) Model() string { return "fake-embed" }

// StaticKnowledge returns the same context for every tenant.
type StaticKnowledge string

func (s StaticKnowledge) GetContext(context.Context, string) (string, error) {
	return string(s), nil
}
