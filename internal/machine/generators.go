package machine

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/pkg/types"
)

// generation routes a generation event to its region. Events for a task that
// is no longer the region's current one are dropped.
func (st *step) generation(cat event.Category, phase event.Phase) error {
	g := st.s.Value.Generators.For(cat)
	if g.State != GenGenerating || g.TaskID != st.ev.ID {
		return nil
	}

	switch phase {
	case event.PhaseStart:
		if cat == event.CategoryInstantRecipe || cat == event.CategoryRecipeIdeas {
			for _, id := range g.Targets {
				if r := st.ctx().Recipes[id]; r != nil {
					r.Started = true
				}
			}
		}
		return nil
	case event.PhaseError:
		targets := g.Targets
		*g = Generator{State: GenIdle}
		switch cat {
		case event.CategoryFullRecipe:
			st.nextFullRecipe()
		case event.CategoryRecipeIdeas:
			st.releaseSlots(targets)
		}
		return nil
	}

	final := phase == event.PhaseComplete
	if err := st.merge(cat, g.Targets, final); err != nil {
		return err
	}
	if !final {
		return nil
	}
	targets := g.Targets
	*g = Generator{State: GenIdle}
	switch cat {
	case event.CategoryFullRecipe:
		st.nextFullRecipe()
	case event.CategoryRecipeIdeas:
		st.ideasSettled(targets)
	}
	return nil
}

// ideasSettled handles slots a completed ideas task left without metadata.
// When the task filled some slots and its result is still the current one,
// the rest are requested again. Otherwise they are released so the next
// SUBMIT or LOAD_MORE picks them up.
func (st *step) ideasSettled(targets []string) {
	c := st.ctx()
	var missing []string
	for _, id := range targets {
		if r := c.Recipes[id]; r != nil && !r.MetadataComplete {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}
	res := c.Results[c.CurrentResultID]
	if len(missing) < len(targets) && res != nil && c.CurrentResultID == ResultID(c.Prompt, c.Tokens) &&
		slices.Contains(res.SuggestedRecipeIDs, missing[0]) {
		st.generateIdeas(res)
		return
	}
	st.releaseSlots(missing)
}

// releaseSlots marks idea slots without metadata as not started.
func (st *step) releaseSlots(ids []string) {
	for _, id := range ids {
		if r := st.ctx().Recipes[id]; r != nil && !r.MetadataComplete {
			r.Started = false
		}
	}
}

func (st *step) merge(cat event.Category, targets []string, final bool) error {
	c := st.ctx()
	switch cat {
	case event.CategoryPlaceholder:
		var p types.PlaceholdersPayload
		if err := st.decode(&p); err != nil {
			return err
		}
		c.Placeholders = nonEmpty(p.Placeholders)

	case event.CategorySuggestTokens:
		var p types.TokensPayload
		if err := st.decode(&p); err != nil {
			return err
		}
		c.SuggestedTokens = filterTokens(p.Tokens, c.Tokens)
		if res, ok := c.Results[ResultID(c.Prompt, c.Tokens)]; ok {
			res.SuggestedTokens = cloneSlice(c.SuggestedTokens)
		}

	case event.CategoryRecipeIdeas:
		var p types.RecipeIdeasPayload
		if err := st.decode(&p); err != nil {
			return err
		}
		for i, idea := range p.Recipes {
			if i >= len(targets) {
				break
			}
			r := c.Recipes[targets[i]]
			if r == nil || r.MetadataComplete {
				continue
			}
			mergeIdea(r, idea)
			r.Started = true
			if final {
				r.MetadataComplete = true
			}
		}

	case event.CategoryInstantRecipe, event.CategoryFullRecipe:
		var p types.RecipePayload
		if err := st.decode(&p); err != nil {
			return err
		}
		if len(targets) == 0 {
			return invariant(st.ev.Type, "task %s has no target recipe", st.ev.ID)
		}
		r := c.Recipes[targets[0]]
		if r == nil {
			return invariant(st.ev.Type, "target recipe %q does not exist", targets[0])
		}
		if r.Complete {
			return nil
		}
		mergeRecipe(r, p, cat == event.CategoryInstantRecipe)
		r.Started = true
		if final {
			r.MetadataComplete = true
			r.FullStarted = true
			r.Complete = true
			st.emit(Persist{
				ID:     st.id(),
				Op:     PersistCreateRecipe,
				UserID: c.UserID,
				Recipe: cloneRecipe(r),
				Prompt: c.Prompt,
				Tokens: cloneSlice(c.Tokens),
			})
		}
	}
	return nil
}

func (st *step) decode(v any) error {
	if len(st.ev.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(st.ev.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", st.ev.Type, err)
	}
	return nil
}

// mergeIdea copies the non-empty fields of an idea into a recipe slot.
func mergeIdea(r *types.Recipe, idea types.RecipeIdea) {
	if idea.Name != "" {
		r.Name = idea.Name
	}
	if idea.Description != "" {
		r.Description = idea.Description
	}
	if idea.MatchPercent != 0 {
		r.MatchPercent = idea.MatchPercent
	}
}

// mergeRecipe copies the non-empty fields of a recipe payload into a slot.
// A full expansion keeps the idea's name and description.
func mergeRecipe(r *types.Recipe, p types.RecipePayload, metadata bool) {
	if metadata || r.Name == "" {
		mergeIdea(r, types.RecipeIdea{Name: p.Name, Description: p.Description, MatchPercent: p.MatchPercent})
	}
	setString(&r.Yield, p.Yield)
	setString(&r.ActiveTime, p.ActiveTime)
	setString(&r.CookTime, p.CookTime)
	setString(&r.TotalTime, p.TotalTime)
	if len(p.Tags) > 0 {
		r.Tags = cloneSlice(p.Tags)
	}
	if len(p.Ingredients) > 0 {
		r.Ingredients = nonEmpty(p.Ingredients)
	}
	if len(p.Instructions) > 0 {
		r.Instructions = nonEmpty(p.Instructions)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func nonEmpty(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
