package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/patch"
	"github.com/kitchenai/kitchen/internal/session"
	"github.com/kitchenai/kitchen/pkg/types"
)

var _ = Describe("Actor", func() {
	var (
		h *harness
		a *session.Actor
	)

	BeforeEach(func() {
		h = newHarness(nil)
		var err error
		a, err = h.manager.Create(ctx, session.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		h.close()
	})

	Describe("updates", func() {
		It("publishes numbered patches that rebuild the state", func() {
			var mu sync.Mutex
			var updates []event.Update
			full, unsubscribe := a.Subscribe(func(u event.Update) {
				mu.Lock()
				updates = append(updates, u)
				mu.Unlock()
			})
			defer unsubscribe()
			Expect(full.IsSnapshot()).To(BeTrue())

			for _, p := range []string{"c", "ch", "chicken"} {
				Expect(a.Send(event.Event{Type: event.SetInput, Prompt: p})).To(Succeed())
			}
			waitFor(a, func(s machine.State) bool { return s.Context.Prompt == "chicken" })

			var shadow patch.Shadow
			Expect(shadow.Apply(full)).To(Succeed())
			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(updates)
			}).Should(BeNumerically(">=", 3))

			mu.Lock()
			for i, u := range updates {
				Expect(u.Type).To(Equal(event.PageSessionUpdate))
				if i > 0 {
					Expect(u.Seq).To(Equal(updates[i-1].Seq + 1))
				}
				Expect(shadow.Apply(u)).To(Succeed())
			}
			mu.Unlock()

			var rebuilt machine.State
			Expect(shadow.Decode(&rebuilt)).To(Succeed())
			Expect(rebuilt.Context.Prompt).To(Equal("chicken"))
			Expect(rebuilt.Value.Input).To(Equal(machine.InputEditing))
		})
	})

	Describe("debounce", func() {
		It("starts one token suggestion for a burst of edits", func() {
			for _, p := range []string{"g", "ga", "garlic bread"} {
				Expect(a.Send(event.Event{Type: event.SetInput, Prompt: p})).To(Succeed())
			}
			waitFor(a, matches("tokens", "generating"))
			Consistently(func() int {
				return len(h.tasks.byCategory(event.CategorySuggestTokens))
			}, 100*time.Millisecond).Should(Equal(1))

			task := h.tasks.byCategory(event.CategorySuggestTokens)[0]
			Expect(task.req.Prompt).To(Equal("garlic bread"))

			task.emit(event.Generation(event.CategorySuggestTokens, event.PhaseComplete, task.req.TaskID,
				payload(types.TokensPayload{Tokens: []string{"butter", "parsley"}})))
			s := waitFor(a, matches("tokens", "idle"))
			Expect(s.Context.SuggestedTokens).To(Equal([]string{"butter", "parsley"}))
		})

		It("never generates when the input is cleared inside the window", func() {
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "soup"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: ""})).To(Succeed())
			Consistently(func() int {
				return len(h.tasks.byCategory(event.CategorySuggestTokens)) +
					len(h.tasks.byCategory(event.CategoryPlaceholder))
			}, 100*time.Millisecond).Should(BeZero())
		})
	})

	Describe("cancellation", func() {
		It("cancels in-flight tasks on CLEAR and drops their late events", func() {
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "tofu"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.Submit})).To(Succeed())
			s := waitFor(a, matches("recipes", "generating"))
			ids := currentIDs(s)

			ideas := h.tasks.byCategory(event.CategoryRecipeIdeas)
			instant := h.tasks.byCategory(event.CategoryInstantRecipe)
			Expect(ideas).To(HaveLen(1))
			Expect(instant).To(HaveLen(1))

			Expect(a.Dispatch(ctx, event.Event{Type: event.Clear})).To(Succeed())
			Eventually(ideas[0].ctx.Done()).Should(BeClosed())
			Eventually(instant[0].ctx.Done()).Should(BeClosed())

			ideas[0].emit(event.Generation(event.CategoryRecipeIdeas, event.PhaseComplete, ideas[0].req.TaskID,
				payload(types.RecipeIdeasPayload{Recipes: []types.RecipeIdea{{Name: "Late", Description: "x"}}})))
			Expect(a.Dispatch(ctx, event.Event{Type: event.Navigate, URL: "/"})).To(Succeed())

			s = a.Snapshot()
			Expect(s.Matches("recipes", "idle")).To(BeTrue())
			Expect(s.Context.Recipes[ids[1]].Name).To(BeEmpty())
		})

		It("keeps at most one task per category on resubmit", func() {
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "tofu"})).To(Succeed())
			Expect(a.Dispatch(ctx, event.Event{Type: event.Submit})).To(Succeed())
			Expect(a.Dispatch(ctx, event.Event{Type: event.Submit})).To(Succeed())

			ideas := h.tasks.byCategory(event.CategoryRecipeIdeas)
			Expect(ideas).To(HaveLen(2))
			Eventually(ideas[0].ctx.Done()).Should(BeClosed())
			Expect(ideas[1].ctx.Err()).NotTo(HaveOccurred())
			Expect(a.Snapshot().Value.Generators.Recipes.TaskID).To(Equal(ideas[1].req.TaskID))
		})
	})

	Describe("errors", func() {
		It("rejects events whose preconditions fail", func() {
			err := a.Dispatch(ctx, event.Event{Type: event.ViewRecipe, RecipeID: "missing"})
			Expect(errors.Is(err, machine.ErrInvariant)).To(BeTrue())
			Expect(a.Dispatch(ctx, event.Event{Type: event.SocketOpen})).To(Succeed())
		})

		It("times out waiting for a state that never comes", func() {
			_, err := a.WaitFor(ctx, matches("auth", "authenticated"), 30*time.Millisecond)
			Expect(err).To(MatchError(session.ErrWaitTimeout))
		})

		It("returns to Idle when a generation fails", func() {
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "tofu"})).To(Succeed())
			Expect(a.Dispatch(ctx, event.Event{Type: event.Submit})).To(Succeed())
			task := h.tasks.byCategory(event.CategoryInstantRecipe)[0]
			ev := event.Generation(event.CategoryInstantRecipe, event.PhaseError, task.req.TaskID, nil)
			ev.Error = "ingredients: required"
			task.emit(ev)
			waitFor(a, matches("instantRecipe", "idle"))
			Eventually(task.ctx.Done()).Should(BeClosed())
		})
	})

	Describe("auth and profile", func() {
		It("fails registration after the timeout and recovers on retry", func() {
			Expect(a.Send(event.Event{Type: event.Register})).To(Succeed())
			waitFor(a, matches("auth", "registrationFailed"))

			Expect(a.Send(event.Event{Type: event.RetryRegistration})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.RegistrationComplete, UserID: "u1"})).To(Succeed())
			waitFor(a, matches("auth", "authenticated"))
			waitFor(a, matches("profile", "idle"))
		})

		It("saves modified preferences after the debounce", func() {
			Expect(h.store.UpsertUserPreferences(ctx, "u1", map[string]json.RawMessage{
				"servings": json.RawMessage(`4`),
			})).To(Succeed())

			Expect(a.Send(event.Event{Type: event.Authenticate, UserID: "u1"})).To(Succeed())
			s := waitFor(a, func(s machine.State) bool {
				return s.Matches("profile", "idle") && len(s.Context.Preferences) == 1
			})
			Expect(string(s.Context.Preferences["servings"])).To(Equal("4"))

			Expect(a.Dispatch(ctx, event.Event{Type: event.UpdatePreference, Key: "diet", Value: json.RawMessage(`"vegan"`)})).To(Succeed())
			waitFor(a, func(s machine.State) bool {
				return s.Matches("profile", "idle") && len(s.Context.ModifiedPreferences) == 0
			})

			stored, err := h.store.GetUserPreferences(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveKey("diet"))
			Expect(stored).To(HaveKey("servings"))
		})
	})

	Describe("lists", func() {
		It("creates lists and classifies duplicate names", func() {
			Expect(a.Send(event.Event{Type: event.Authenticate, UserID: "u1"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.OpenCreateList})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SubmitListName, Name: "Soups"})).To(Succeed())
			s := waitFor(a, func(s machine.State) bool { return len(s.Context.ListsByID) == 1 })
			Expect(s.Value.ListCreating.State).To(Equal(machine.ListClosed))
			Expect(s.Context.CurrentListSlug).To(Equal("soups"))

			Expect(a.Send(event.Event{Type: event.OpenCreateList})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SubmitListName, Name: "soups"})).To(Succeed())
			s = waitFor(a, matches("listCreating", "error"))
			Expect(s.Value.ListCreating.Error).To(Equal(machine.ListErrorDuplicateName))
		})

		It("loads a returning user's lists", func() {
			_, err := h.store.CreateList(ctx, "soups", "Soups", "u1", []string{"earlier"})
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Send(event.Event{Type: event.Authenticate, UserID: "u1"})).To(Succeed())
			s := waitFor(a, func(s machine.State) bool {
				return len(s.Context.ListsByID) == 1 && s.Value.Auth.ListsCall == ""
			})
			for id, l := range s.Context.ListsByID {
				Expect(l.Slug).To(Equal("soups"))
				Expect(l.Count).To(Equal(1))
				Expect(s.Context.ListRecipes[id]).To(HaveKey("earlier"))
			}

			Expect(a.Dispatch(ctx, event.Event{Type: event.SetInput, Prompt: "leek"})).To(Succeed())
			Expect(a.Dispatch(ctx, event.Event{Type: event.Submit})).To(Succeed())
			ids := currentIDs(a.Snapshot())
			Expect(a.Dispatch(ctx, event.Event{Type: event.SaveToList, RecipeID: ids[0], ListSlug: "soups"})).To(Succeed())
			Eventually(func() []string {
				var list types.List
				if err := h.storage.Get(ctx, []string{"lists", "u1", "soups"}, &list); err != nil {
					return nil
				}
				return list.RecipeIDs
			}).Should(ConsistOf("earlier", ids[0]))
		})

		It("rolls back a failed save", func() {
			Expect(a.Send(event.Event{Type: event.Authenticate, UserID: "u1"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "tofu"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.Submit})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.OpenCreateList})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SubmitListName, Name: "Soups"})).To(Succeed())
			s := waitFor(a, func(s machine.State) bool { return len(s.Context.ListsByID) == 1 })
			ids := currentIDs(s)

			Expect(a.Send(event.Event{Type: event.SaveToList, RecipeID: ids[0], ListSlug: "soups"})).To(Succeed())
			Eventually(func() int {
				var list types.List
				if err := h.storage.Get(ctx, []string{"lists", "u1", "soups"}, &list); err != nil {
					return -1
				}
				return list.Count
			}).Should(Equal(1))

			Expect(h.storage.Delete(ctx, []string{"lists", "u1", "soups"})).To(Succeed())
			Expect(a.Send(event.Event{Type: event.SaveToList, RecipeID: ids[1], ListSlug: "soups"})).To(Succeed())
			Eventually(func() bool {
				s := a.Snapshot()
				for id, l := range s.Context.ListsByID {
					return l.Count == 1 && s.Context.ListRecipes[id][ids[0]] && !s.Context.ListRecipes[id][ids[1]]
				}
				return false
			}).Should(BeTrue())
			Expect(machine.Validate(a.Snapshot())).To(Succeed())
		})
	})
})

var _ = Describe("Actor with the generation runner", func() {
	It("runs a submission end to end and persists the instant recipe", func() {
		runner := generation.NewRunner(generation.OpenerFunc(scripted), logging.ForSession("test"))
		h := newHarness(runner)
		defer h.close()

		a, err := h.manager.Create(ctx, session.CreateOptions{UserID: "u1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Send(event.Event{Type: event.AddToken, Token: "garlic"})).To(Succeed())

		s := waitFor(a, func(s machine.State) bool {
			ids := currentIDs(s)
			if len(ids) != 6 {
				return false
			}
			r := s.Context.Recipes[ids[0]]
			return r.Complete && r.Slug != "" && s.Context.Recipes[ids[5]].MetadataComplete
		})
		ids := currentIDs(s)
		Expect(s.Context.Prompt).To(Equal("garlic"))
		Expect(s.Context.Recipes[ids[0]].Name).To(Equal("Garlic Omelette"))
		Expect(s.Context.Recipes[ids[1]].Name).To(Equal("Idea 0"))

		var saved types.SavedRecipe
		Expect(h.storage.Get(ctx, []string{"recipes", s.Context.Recipes[ids[0]].Slug}, &saved)).To(Succeed())
		Expect(saved.Prompt).To(Equal("garlic"))
		Expect(saved.CreatedBy).To(Equal("u1"))

		Expect(a.Send(event.Event{Type: event.ViewRecipe, RecipeID: ids[2]})).To(Succeed())
		s = waitFor(a, func(s machine.State) bool { return s.Context.Recipes[ids[2]].Complete })
		Expect(s.Context.Recipes[ids[2]].Name).To(Equal("Idea 1"))
		Expect(s.Context.Recipes[ids[2]].Ingredients).To(ContainElement("2 eggs"))

		runner.Wait()
	})
})

var _ = Describe("Manager", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(nil)
	})

	AfterEach(func() {
		h.close()
	})

	It("hibernates and rehydrates sessions", func() {
		a, err := h.manager.Create(ctx, session.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Send(event.Event{Type: event.SetInput, Prompt: "gumbo"})).To(Succeed())
		Expect(a.Dispatch(ctx, event.Event{Type: event.Submit})).To(Succeed())

		Expect(h.manager.Remove(ctx, a.ID())).To(Succeed())
		Expect(a.Send(event.Event{Type: event.Submit})).To(MatchError(session.ErrStopped))
		Eventually(h.tasks.byCategory(event.CategoryRecipeIdeas)[0].ctx.Done()).Should(BeClosed())

		infos, err := h.manager.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(ConsistOf(session.Info{ID: a.ID(), Active: false}))

		b, err := h.manager.Get(ctx, a.ID())
		Expect(err).NotTo(HaveOccurred())
		s := b.Snapshot()
		Expect(s.Context.Prompt).To(Equal("gumbo"))
		Expect(currentIDs(s)).To(HaveLen(6))
		Expect(s.Matches("recipes", "idle")).To(BeTrue())

		again, err := h.manager.Get(ctx, a.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeIdenticalTo(b))

		infos, err = h.manager.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(ConsistOf(session.Info{ID: a.ID(), Active: true}))
	})

	It("reports unknown sessions", func() {
		_, err := h.manager.Get(ctx, "nope")
		Expect(errors.Is(err, session.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(h.manager.Remove(ctx, "nope"), session.ErrNotFound)).To(BeTrue())
	})

	It("keeps access tokens opaque", func() {
		a, err := h.manager.Create(context.Background(), session.CreateOptions{AccessTokens: map[string]string{"guest": "t0k"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Dispatch(ctx, event.Event{Type: event.SignOut})).To(Succeed())
		Expect(a.Snapshot().Context.AccessTokens).To(Equal(map[string]string{"guest": "t0k"}))
	})
})
