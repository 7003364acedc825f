package machine

import (
	"slices"
	"strings"
	"time"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/pkg/types"
)

func (st *step) setInput(prompt string, tokens []string) {
	if setInput(st.ctx(), prompt, tokens) {
		st.inputChanged()
	}
}

// inputChanged restarts the suggestion debounces.
func (st *step) inputChanged() {
	st.hold(event.CategoryPlaceholder, TimerPlaceholders, st.m.cfg.PlaceholdersDebounce)
	st.hold(event.CategorySuggestTokens, TimerTokens, st.m.cfg.TokensDebounce)
}

// hold moves a suggestion region to Holding with a fresh timer, cancelling
// any task in flight. With no input left the region goes back to Idle.
func (st *step) hold(cat event.Category, timer string, after time.Duration) {
	g := st.s.Value.Generators.For(cat)
	st.cancel(g)
	if !st.ctx().HasInput() {
		*g = Generator{State: GenIdle}
		return
	}
	*g = Generator{State: GenHolding, Timer: st.startTimer(timer, after)}
}

func (st *step) debounceElapsed(cat event.Category) {
	g := st.s.Value.Generators.For(cat)
	if g.State != GenHolding || g.Timer != st.ev.ID {
		return
	}
	if !st.ctx().HasInput() {
		*g = Generator{State: GenIdle}
		return
	}
	req := st.request()
	switch cat {
	case event.CategoryPlaceholder:
		req.Count = DefaultPlaceholderCount
	case event.CategorySuggestTokens:
		req.Count = DefaultTokenCount
	}
	st.start(cat, nil, req)
}

// cancel emits a cancellation for the region's task in flight, if any.
func (st *step) cancel(g *Generator) {
	if g.State == GenGenerating && g.TaskID != "" {
		st.emit(CancelTask{TaskID: g.TaskID})
	}
}

func (st *step) stop(cat event.Category) {
	g := st.s.Value.Generators.For(cat)
	st.cancel(g)
	*g = Generator{State: GenIdle}
}

// start puts a region in Generating under a new task id. A task already in
// flight for the category is cancelled first.
func (st *step) start(cat event.Category, targets []string, req generation.Request) {
	g := st.s.Value.Generators.For(cat)
	st.cancel(g)
	req.Category = cat
	req.TaskID = st.id()
	*g = Generator{State: GenGenerating, TaskID: req.TaskID, Targets: targets}
	st.emit(StartGeneration{Request: req})
}

func (st *step) request() generation.Request {
	c := st.ctx()
	return generation.Request{
		Prompt:      c.Prompt,
		Tokens:      cloneSlice(c.Tokens),
		Preferences: cloneMap(c.Preferences),
	}
}

// seed allocates n skeleton recipe slots.
func (st *step) seed(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		id := st.id()
		ids[i] = id
		st.ctx().Recipes[id] = &types.Recipe{
			ID:        id,
			CreatedBy: st.ctx().UserID,
			CreatedAt: st.now.UnixMilli(),
		}
	}
	return ids
}

// submit commits the current input: the result is created on first
// submission and the instant recipe and idea generators are (re)started for
// the slots still missing data.
func (st *step) submit() {
	c := st.ctx()
	if !c.HasInput() {
		return
	}
	rid := ResultID(c.Prompt, c.Tokens)
	res, ok := c.Results[rid]
	if !ok || len(res.SuggestedRecipeIDs) == 0 {
		res = &types.Result{
			SuggestedRecipeIDs: st.seed(st.m.cfg.BatchSize),
			SuggestedTokens:    []string{},
		}
		c.Results[rid] = res
	}
	c.CurrentResultID = rid

	instant := res.SuggestedRecipeIDs[0]
	if c.Recipes[instant].Complete {
		st.stop(event.CategoryInstantRecipe)
	} else {
		st.start(event.CategoryInstantRecipe, []string{instant}, st.request())
	}
	st.generateIdeas(res)
}

// generateIdeas (re)starts the Recipes region for every idea slot of the
// result that has no metadata yet.
func (st *step) generateIdeas(res *types.Result) {
	c := st.ctx()
	var targets, done []string
	for _, id := range res.SuggestedRecipeIDs[1:] {
		if c.Recipes[id].MetadataComplete {
			done = append(done, id)
		} else {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		st.stop(event.CategoryRecipeIdeas)
		return
	}
	req := st.request()
	req.Count = len(targets)
	req.Exclude = c.recipeNames(append([]string{res.SuggestedRecipeIDs[0]}, done...))
	st.start(event.CategoryRecipeIdeas, targets, req)
}

func (st *step) addToken() {
	c := st.ctx()
	t := strings.TrimSpace(st.ev.Token)
	if t == "" || slices.Contains(c.Tokens, t) {
		return
	}
	st.setInput(appendToken(c.Prompt, t), append(cloneSlice(c.Tokens), t))
	st.submit()
}

func (st *step) removeToken() {
	c := st.ctx()
	t := strings.TrimSpace(st.ev.Token)
	i := slices.Index(c.Tokens, t)
	if i < 0 {
		return
	}
	st.setInput(removeToken(c.Prompt, t), slices.Delete(cloneSlice(c.Tokens), i, i+1))
}

// clear cancels every generation and resets the input. Results and recipes
// stay cached.
func (st *step) clear() {
	for _, cat := range event.Categories {
		st.stop(cat)
	}
	c := st.ctx()
	setInput(c, "", nil)
	c.Placeholders = []string{}
	c.SuggestedTokens = []string{}
	c.CurrentResultID = ""
	c.FullRecipeQueue = []string{}
}

func (st *step) loadMore() {
	c := st.ctx()
	res, ok := c.Results[c.CurrentResultID]
	if !ok {
		return
	}
	res.SuggestedRecipeIDs = append(res.SuggestedRecipeIDs, st.seed(st.m.cfg.MoreSize)...)
	st.generateIdeas(res)
}

func (st *step) viewRecipe() error {
	c := st.ctx()
	id := st.ev.RecipeID
	r, ok := c.Recipes[id]
	if !ok {
		return invariant(st.ev.Type, "recipe %q does not exist", id)
	}
	full := &st.s.Value.Generators.FullRecipe
	if r.MetadataComplete && !r.Complete && !slices.Contains(c.FullRecipeQueue, id) &&
		!(full.State == GenGenerating && slices.Contains(full.Targets, id)) {
		c.FullRecipeQueue = append(c.FullRecipeQueue, id)
	}
	if full.State == GenIdle {
		st.nextFullRecipe()
	}
	return nil
}

// nextFullRecipe starts the FullRecipe region on the queue head.
func (st *step) nextFullRecipe() {
	c := st.ctx()
	for len(c.FullRecipeQueue) > 0 {
		id := c.FullRecipeQueue[0]
		c.FullRecipeQueue = c.FullRecipeQueue[1:]
		r := c.Recipes[id]
		if r == nil || r.Complete {
			continue
		}
		r.FullStarted = true
		req := st.request()
		req.Recipe = cloneRecipe(r)
		st.start(event.CategoryFullRecipe, []string{id}, req)
		return
	}
	st.s.Value.Generators.FullRecipe = Generator{State: GenIdle}
}
