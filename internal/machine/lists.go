package machine

import (
	"github.com/kitchenai/kitchen/internal/persistence"
)

func (st *step) chooseLists() error {
	id := st.ev.RecipeID
	if _, ok := st.ctx().Recipes[id]; !ok {
		return invariant(st.ev.Type, "recipe %q does not exist", id)
	}
	st.ctx().ChoosingListsForRecipeID = id
	return nil
}

// saveToList adds the recipe optimistically; SAVE_TO_LIST_ERROR rolls it back.
func (st *step) saveToList() error {
	c := st.ctx()
	rid, slug := st.ev.RecipeID, st.ev.ListSlug
	if _, ok := c.Recipes[rid]; !ok {
		return invariant(st.ev.Type, "recipe %q does not exist", rid)
	}
	l := c.listBySlug(slug)
	if l == nil {
		return invariant(st.ev.Type, "list %q does not exist", slug)
	}
	c.CurrentListSlug = slug
	if c.ListRecipes[l.ID][rid] {
		return nil
	}
	c.setListRecipe(l.ID, rid, true)
	st.emit(Persist{
		ID:       st.id(),
		Op:       PersistSaveRecipeToList,
		UserID:   c.UserID,
		RecipeID: rid,
		ListSlug: slug,
	})
	return nil
}

func (st *step) saveToListError() {
	c := st.ctx()
	if l := c.listBySlug(st.ev.ListSlug); l != nil {
		c.setListRecipe(l.ID, st.ev.RecipeID, false)
	}
}

func (st *step) openCreateList() {
	switch st.s.Value.ListCreating.State {
	case ListClosed, ListError:
		st.s.Value.ListCreating = ListCreating{State: ListNaming}
	}
}

func (st *step) submitListName() {
	lc := &st.s.Value.ListCreating
	if lc.State != ListNaming && lc.State != ListError {
		return
	}
	c := st.ctx()
	slug := persistence.Slugify(st.ev.Name)
	if slug == "" {
		return
	}
	if c.UserID == "" {
		*lc = ListCreating{State: ListError, Error: ListErrorUnknown}
		return
	}
	var initial []string
	if c.ChoosingListsForRecipeID != "" {
		initial = []string{c.ChoosingListsForRecipeID}
	}
	call := st.id()
	*lc = ListCreating{State: ListSaving, Call: call}
	st.emit(Persist{
		ID:        call,
		Op:        PersistCreateList,
		UserID:    c.UserID,
		ListName:  st.ev.Name,
		ListSlug:  slug,
		RecipeIDs: initial,
	})
}

// listCall reports whether the event completes the create call in flight.
func (st *step) listCall() bool {
	lc := st.s.Value.ListCreating
	return lc.State == ListSaving && lc.Call != "" && lc.Call == st.ev.ID
}

func (st *step) createListComplete() error {
	if !st.listCall() {
		return nil
	}
	l := st.ev.List
	if l == nil || l.ID == "" {
		return invariant(st.ev.Type, "no list in completion")
	}
	st.ctx().addList(*l)
	st.ctx().CurrentListSlug = l.Slug
	st.s.Value.ListCreating = ListCreating{State: ListClosed}
	return nil
}

func (st *step) createListError() {
	if !st.listCall() {
		return
	}
	kind := ListErrorUnknown
	if st.ev.Code == persistence.CodeDuplicateName {
		kind = ListErrorDuplicateName
	}
	st.s.Value.ListCreating = ListCreating{State: ListError, Error: kind}
}

func (st *step) listsCall() bool {
	a := st.s.Value.Auth
	return a.State == AuthAuthenticated && a.ListsCall != "" && a.ListsCall == st.ev.ID
}

// listsLoaded adds the user's stored lists. Lists created in this session
// while the load was in flight are kept as they are.
func (st *step) listsLoaded() {
	if !st.listsCall() {
		return
	}
	c := st.ctx()
	for _, l := range st.ev.Lists {
		if l.ID == "" {
			continue
		}
		if _, ok := c.ListsByID[l.ID]; ok {
			continue
		}
		c.addList(l)
	}
	st.s.Value.Auth.ListsCall = ""
}

func (st *step) createRecipeComplete() error {
	r, ok := st.ctx().Recipes[st.ev.RecipeID]
	if !ok {
		return invariant(st.ev.Type, "recipe %q does not exist", st.ev.RecipeID)
	}
	if st.ev.Slug != "" {
		r.Slug = st.ev.Slug
	}
	return nil
}
