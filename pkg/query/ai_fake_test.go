package query

import (
	"context"
	"errors"
	"sync"

	"github.com/vellum-graph/vellum/pkg/ai"
)

// fakeAI scripts model behavior for tests. completionFn receives every
// GenerateCompletion prompt; formatFn handles structured output calls.
// Safe for concurrent use since drill-downs fan out.
type fakeAI struct {
	completionFn func(prompt string) (string, error)
	chatFn       func(messages []ai.ChatMessage) (string, error)
	formatFn     func(name, prompt string, out any) error
	embedFn      func(input []byte) ([]float32, error)

	mu              sync.Mutex
	completionCalls int
	formatCalls     int
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.completionCalls++
	f.mu.Unlock()
	if f.completionFn == nil {
		return "", errors.New("no completion scripted")
	}
	return f.completionFn(prompt)
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.mu.Lock()
	f.formatCalls++
	f.mu.Unlock()
	if f.formatFn == nil {
		return errors.New("no format completion scripted")
	}
	return f.formatFn(name, prompt, out)
}

func (f *fakeAI) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	if f.chatFn == nil {
		return "", errors.New("no chat scripted")
	}
	return f.chatFn(messages)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if f.embedFn == nil {
		return []float32{1, 0}, nil
	}
	return f.embedFn(input)
}

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }
