package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/persistence"
	"github.com/kitchenai/kitchen/internal/session"
	"github.com/kitchenai/kitchen/internal/storage"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

var ctx = context.Background()

func testConfig() machine.Config {
	cfg := machine.DefaultConfig()
	cfg.TokensDebounce = 20 * time.Millisecond
	cfg.PlaceholdersDebounce = 20 * time.Millisecond
	cfg.PreferencesDebounce = 20 * time.Millisecond
	cfg.RegistrationTimeout = 50 * time.Millisecond
	return cfg
}

// recordedTask is a generation task started through fakeTasks.
type recordedTask struct {
	ctx  context.Context
	req  generation.Request
	emit generation.Emit
}

// fakeTasks records started tasks; tests drive them by calling emit.
type fakeTasks struct {
	mu    sync.Mutex
	tasks []recordedTask
}

func (f *fakeTasks) Start(ctx context.Context, req generation.Request, emit generation.Emit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, recordedTask{ctx: ctx, req: req, emit: emit})
}

func (f *fakeTasks) byCategory(cat event.Category) []recordedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedTask
	for _, t := range f.tasks {
		if t.req.Category == cat {
			out = append(out, t)
		}
	}
	return out
}

// scripted returns canned model output for every category.
func scripted(ctx context.Context, req generation.Request) (generation.Source, error) {
	var text string
	switch req.Category {
	case event.CategoryPlaceholder:
		text = `{"placeholders":["a quick soup","something with rice"]}`
	case event.CategorySuggestTokens:
		text = `{"tokens":["butter","parsley"]}`
	case event.CategoryInstantRecipe, event.CategoryFullRecipe:
		text = `{"name":"Garlic Omelette","description":"Fluffy eggs.","yield":"1 serving",` +
			`"ingredients":["2 eggs","1 clove garlic"],"instructions":["Whisk.","Cook."]}`
	case event.CategoryRecipeIdeas:
		ideas := make([]string, req.Count)
		for i := range ideas {
			ideas[i] = fmt.Sprintf(`{"name":"Idea %d","description":"Tasty %d","matchPercent":%d}`, i, i, 90-i)
		}
		text = `{"recipes":[` + strings.Join(ideas, ",") + `]}`
	}
	mid := len(text) / 2
	return generation.NewSliceSource([]string{"```json\n", text[:mid], text[mid:], "\n```"}, nil), nil
}

type harness struct {
	storage *storage.Storage
	store   *persistence.Store
	bus     *event.Bus
	tasks   *fakeTasks
	manager *session.Manager
}

func newHarness(tasks session.Tasks) *harness {
	h := &harness{
		storage: storage.NewMemory(),
		bus:     event.NewBus(),
	}
	h.store = persistence.NewStore(h.storage)
	if tasks == nil {
		h.tasks = &fakeTasks{}
		tasks = h.tasks
	}
	h.manager = session.NewManager(session.Options{
		Machine: machine.New(testConfig()),
		Tasks:   tasks,
		Store:   h.store,
		Bus:     h.bus,
	})
	return h
}

func (h *harness) close() {
	Expect(h.manager.Close(ctx)).To(Succeed())
	Expect(h.bus.Close()).To(Succeed())
}

func waitFor(a *session.Actor, pred func(machine.State) bool) machine.State {
	GinkgoHelper()
	s, err := a.WaitFor(ctx, pred, 2*time.Second)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func matches(region, state string) func(machine.State) bool {
	return func(s machine.State) bool { return s.Matches(region, state) }
}

func currentIDs(s machine.State) []string {
	res, ok := s.Context.Results[s.Context.CurrentResultID]
	if !ok {
		return nil
	}
	return res.SuggestedRecipeIDs
}

func payload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return data
}
