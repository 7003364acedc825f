package generation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Runner starts generation tasks in their own goroutines.
type Runner struct {
	opener Opener
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a Runner that opens sources with opener.
func NewRunner(opener Opener, log zerolog.Logger) *Runner {
	return &Runner{opener: opener, log: log}
}

// Start runs req in a new goroutine and returns immediately. Every event of
// the task goes to emit; cancelling ctx stops the task without further events.
func (r *Runner) Start(ctx context.Context, req Request, emit Emit) {
	log := r.log.With().
		Str("category", string(req.Category)).
		Str("taskID", req.TaskID).
		Logger()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		src, err := r.opener.Open(ctx, req)
		if ctx.Err() != nil {
			if src != nil {
				src.Close()
			}
			log.Debug().Msg("generation cancelled before start")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("generation failed to start")
			emit(failure(req.Category, req.TaskID, err, ""))
			return
		}

		log.Debug().Msg("generation started")
		run(ctx, req, src, emit)
	}()
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func run(ctx context.Context, req Request, src Source, emit Emit) {
	switch req.Category {
	case event.CategoryPlaceholder:
		Run[types.PlaceholdersPayload](ctx, req.Category, req.TaskID, src, emit)
	case event.CategorySuggestTokens:
		Run[types.TokensPayload](ctx, req.Category, req.TaskID, src, emit)
	case event.CategoryInstantRecipe, event.CategoryFullRecipe:
		Run[types.RecipePayload](ctx, req.Category, req.TaskID, src, emit)
	case event.CategoryRecipeIdeas:
		Run[types.RecipeIdeasPayload](ctx, req.Category, req.TaskID, src, emit)
	default:
		src.Close()
		_, err := PayloadFor(req.Category)
		emit(failure(req.Category, req.TaskID, err, ""))
	}
}
