package session

import (
	"context"
	"errors"
	"time"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/persistence"
)

func (a *Actor) interpret(e machine.Effect) {
	switch e := e.(type) {
	case machine.StartGeneration:
		a.startTask(e)
	case machine.CancelTask:
		if cancel, ok := a.tasks[e.TaskID]; ok {
			cancel()
			delete(a.tasks, e.TaskID)
			a.log.Debug().Str("taskID", e.TaskID).Msg("task cancelled")
		}
	case machine.StartTimer:
		if old, ok := a.timers[e.Timer]; ok {
			old.Stop()
		}
		ev := event.Event{Type: event.Timer, Timer: e.Timer, ID: e.ID}
		a.timers[e.Timer] = time.AfterFunc(e.After, func() { a.post(ev) })
	case machine.Persist:
		a.calls.Add(1)
		go func() {
			defer a.calls.Done()
			a.persist(e)
		}()
	default:
		a.log.Error().Msgf("unknown effect %T", e)
	}
}

func (a *Actor) startTask(e machine.StartGeneration) {
	ctx, cancel := context.WithCancel(a.ctx)
	a.tasks[e.Request.TaskID] = cancel
	a.opts.Tasks.Start(ctx, e.Request, a.post)
}

// settleTask releases the context of a task that reported its last event.
func (a *Actor) settleTask(ev event.Event) {
	_, phase, ok := event.SplitGeneration(ev.Type)
	if !ok || (phase != event.PhaseComplete && phase != event.PhaseError) {
		return
	}
	if cancel, ok := a.tasks[ev.ID]; ok {
		cancel()
		delete(a.tasks, ev.ID)
	}
}

// persist runs one persistence call and posts its outcome.
func (a *Actor) persist(p machine.Persist) {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.PersistTimeout)
	defer cancel()

	store := a.opts.Store
	log := a.log.With().Str("op", string(p.Op)).Str("persistID", p.ID).Logger()

	out := event.Event{ID: p.ID}
	var err error
	switch p.Op {
	case machine.PersistCreateRecipe:
		out.RecipeID = p.Recipe.ID
		var slug string
		slug, err = store.CreateRecipe(ctx, *p.Recipe, p.Prompt, p.Tokens, p.UserID)
		out.Type, out.Slug = event.CreateRecipeComplete, slug
		if err != nil {
			out.Type = event.CreateRecipeError
		}

	case machine.PersistCreateList:
		out.Type = event.CreateListComplete
		out.List, err = store.CreateList(ctx, p.ListSlug, p.ListName, p.UserID, p.RecipeIDs)
		if err != nil {
			out.Type = event.CreateListError
		}

	case machine.PersistSaveRecipeToList:
		out.Type, out.RecipeID, out.ListSlug = event.SaveToListComplete, p.RecipeID, p.ListSlug
		out.UserID = p.UserID
		if err = store.SaveRecipeToList(ctx, p.UserID, p.RecipeID, p.ListSlug); err != nil {
			out.Type = event.SaveToListError
		}

	case machine.PersistListLists:
		out.Type = event.ListsLoaded
		out.Lists, err = store.ListLists(ctx, p.UserID)
		if err != nil {
			out.Type = event.ListsLoadError
		}

	case machine.PersistGetUserPreferences:
		out.Type = event.PreferencesLoaded
		out.Preferences, err = store.GetUserPreferences(ctx, p.UserID)
		if err != nil {
			out.Type = event.PreferencesLoadError
		}

	case machine.PersistUpsertUserPreferences:
		out.Type = event.PreferencesSaved
		if err = store.UpsertUserPreferences(ctx, p.UserID, p.Preferences); err != nil {
			out.Type = event.PreferencesSaveError
		}

	default:
		log.Error().Msg("unknown persistence op")
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && a.ctx.Err() != nil {
			return
		}
		out.Code = persistence.Classify(err)
		out.Error = err.Error()
		log.Warn().Err(err).Str("code", out.Code).Msg("persistence call failed")
	} else {
		log.Debug().Msg("persistence call done")
	}
	a.post(out)
}
