package rag

import (
	"sort"

	"rag-chatbot-backend/internal/ai"
)

// Registry holds one pipeline per supported model, all sharing a retriever.
type Registry struct {
	retriever *Retriever
	pipelines map[string]*Pipeline
}

func NewRegistry(retriever *Retriever, completer ai.Completer, models []string, opts ...PipelineOption) *Registry {
	r := &Registry{
		retriever: retriever,
		pipelines: make(map[string]*Pipeline, len(models)),
	}
	for _, m := range models {
		r.pipelines[m] = NewPipeline(m, retriever, completer, opts...)
	}
	return r
}

// Get returns the pipeline for model, if it is supported.
func (r *Registry) Get(model string) (*Pipeline, bool) {
	p, ok := r.pipelines[model]
	return p, ok
}

func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.pipelines))
	for m := range r.pipelines {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Ready reports whether at least one pipeline can answer.
func (r *Registry) Ready() bool {
	return len(r.pipelines) > 0 && r.retriever.Ready()
}
