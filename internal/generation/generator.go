package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/kitchenai/kitchen/internal/prompt"
	"github.com/kitchenai/kitchen/internal/provider"
)

const (
	// MaxRetries is the maximum number of retries when opening a stream.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 5 * time.Second
)

// Opener opens the text source of a generation task.
type Opener interface {
	Open(ctx context.Context, req Request) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, req Request) (Source, error) {
	return f(ctx, req)
}

// Generator opens LLM streams for generation tasks. It renders the category's
// prompt template, resolves the model and retries failed stream opens.
type Generator struct {
	registry *provider.Registry
	library  *prompt.Library
	// models maps a category to a "provider/model" override.
	models map[string]string

	retries int
}

// NewGenerator creates a Generator.
func NewGenerator(registry *provider.Registry, library *prompt.Library, models map[string]string) *Generator {
	return &Generator{
		registry: registry,
		library:  library,
		models:   models,
		retries:  MaxRetries,
	}
}

// newRetryBackoff creates an exponential backoff with jitter for stream opens.
func newRetryBackoff(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Render builds the completion request for req without opening a stream.
func (g *Generator) Render(req Request) (*provider.CompletionRequest, string, error) {
	tmpl, err := g.library.Get(req.Category)
	if err != nil {
		return nil, "", err
	}
	payload, err := PayloadFor(req.Category)
	if err != nil {
		return nil, "", err
	}
	schemaText, err := prompt.Schema(payload)
	if err != nil {
		return nil, "", err
	}

	rendered := tmpl.Render(req.Vars(), schemaText)
	modelRef := rendered.Model
	if modelRef == "" {
		modelRef = g.models[string(req.Category)]
	}

	return &provider.CompletionRequest{
		System:      rendered.System,
		User:        rendered.User,
		MaxTokens:   rendered.MaxTokens,
		Temperature: rendered.Temperature,
	}, modelRef, nil
}

// Open renders the prompt and opens a stream from the resolved provider.
func (g *Generator) Open(ctx context.Context, req Request) (Source, error) {
	creq, modelRef, err := g.Render(req)
	if err != nil {
		return nil, err
	}
	p, modelID, err := g.registry.Resolve(modelRef)
	if err != nil {
		return nil, err
	}
	creq.Model = modelID

	var reader *schema.StreamReader[*schema.Message]
	open := func() error {
		r, err := p.Stream(ctx, creq)
		if err != nil {
			return err
		}
		reader = r
		return nil
	}
	if err := backoff.Retry(open, newRetryBackoff(ctx, g.retries)); err != nil {
		return nil, fmt.Errorf("open %s stream via %s: %w", req.Category, p.ID(), err)
	}
	return NewStreamSource(reader), nil
}
