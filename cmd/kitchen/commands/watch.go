package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/patch"
	"github.com/kitchenai/kitchen/internal/server"
	"github.com/kitchenai/kitchen/internal/session"
)

var (
	watchNoColor bool
	watchJSON    bool
	watchInput   bool
	watchUser    string
)

var watchCmd = &cobra.Command{
	Use:   "watch [session]",
	Short: "Follow a session over its websocket",
	Long: `Connect to a session's websocket, keep a shadow copy of its state from
the streamed patches and print it on every change. Without a session id a
new session is created.

With --input, lines read from stdin are sent as events:
  input <text>    set the prompt
  token <name>    add an ingredient token
  view <id>       open a recipe
  SUBMIT          any bare event type
  {"type":...}    a raw JSON event`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoColor, "no-color", false, "Disable colored output")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print the full state as JSON on every change")
	watchCmd.Flags().BoolVarP(&watchInput, "input", "i", false, "Send events read from stdin")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "User id for a new session")
}

// errResync asks the watch loop to reconnect for a fresh snapshot.
var errResync = errors.New("shadow out of sync")

func runWatch(cmd *cobra.Command, args []string) error {
	color.NoColor = color.NoColor || watchNoColor

	sessionID := ""
	if len(args) > 0 {
		sessionID = args[0]
	} else {
		var created server.SessionResponse
		if err := call("POST", "/session", session.CreateOptions{UserID: watchUser}, &created); err != nil {
			return err
		}
		sessionID = created.ID
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgHiBlack).Sprintf("session %s", sessionID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lines chan string
	if watchInput {
		lines = make(chan string)
		go readLines(ctx, lines)
	}

	for {
		err := watchOnce(ctx, sessionID, lines)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errResync):
			fmt.Fprintln(os.Stderr, color.New(color.FgYellow).Sprint("resyncing"))
		default:
			return err
		}
	}
}

func readLines(ctx context.Context, out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}

// parseLine turns an input line into an event body.
func parseLine(line string) ([]byte, error) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	var ev event.Event
	switch strings.ToLower(verb) {
	case "input":
		ev = event.Event{Type: event.SetInput, Prompt: rest}
	case "token":
		ev = event.Event{Type: event.AddToken, Token: rest}
	case "view":
		ev = event.Event{Type: event.ViewRecipe, RecipeID: rest}
	default:
		return parseEventArg(line)
	}
	return json.Marshal(ev)
}

type socketMessage struct {
	event.Update
	Error *server.ErrorDetail `json:"error,omitempty"`
}

func watchOnce(ctx context.Context, sessionID string, lines <-chan string) error {
	u, err := socketURL(sessionID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	msgs := make(chan socketMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			var m socketMessage
			if err := conn.ReadJSON(&m); err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var shadow patch.Shadow
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			body, err := parseLine(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprintf("  %v", err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return err
			}
		case m := <-msgs:
			if m.Error != nil {
				fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprintf("  %s: %s", m.Error.Code, m.Error.Message))
				continue
			}
			before := shadow.Seq()
			if err := shadow.Apply(m.Update); err != nil {
				if errors.Is(err, patch.ErrSequenceGap) || errors.Is(err, patch.ErrNoBase) {
					return errResync
				}
				return err
			}
			if m.IsSnapshot() || shadow.Seq() != before {
				if err := render(&shadow); err != nil {
					return err
				}
			}
		}
	}
}

// render prints the shadow copy.
func render(shadow *patch.Shadow) error {
	if watchJSON {
		fmt.Println(string(shadow.Document()))
		return nil
	}

	var st machine.State
	if err := shadow.Decode(&st); err != nil {
		return err
	}
	c := st.Context
	dim := color.New(color.FgHiBlack)
	label := color.New(color.FgCyan, color.Bold)

	fmt.Println(dim.Sprintf("── #%d", shadow.Seq()))
	var regions []string
	for _, r := range machine.Regions {
		for _, s := range regionStates {
			if st.Matches(r, s) {
				regions = append(regions, fmt.Sprintf("%s=%s", r, stateColor(s).Sprint(s)))
				break
			}
		}
	}
	fmt.Println(strings.Join(regions, " "))

	fmt.Printf("%s %s\n", label.Sprint("prompt ›"), c.Prompt)
	if len(c.Tokens) > 0 {
		fmt.Printf("%s %s\n", label.Sprint("tokens ›"), strings.Join(c.Tokens, ", "))
	}
	if res, ok := c.Results[c.CurrentResultID]; ok {
		if len(res.SuggestedTokens) > 0 {
			fmt.Println(dim.Sprintf("  suggested: %s", strings.Join(res.SuggestedTokens, ", ")))
		}
		for _, id := range res.SuggestedRecipeIDs {
			r, ok := c.Recipes[id]
			if !ok {
				continue
			}
			name := r.Name
			if name == "" {
				name = dim.Sprint("…")
			}
			fmt.Printf("  %s %s %s\n", recipeMark(r.Complete, r.MetadataComplete, r.Started), name, dim.Sprint(id))
		}
	}
	if len(c.Placeholders) > 0 {
		fmt.Println(dim.Sprintf("  try: %s", strings.Join(c.Placeholders, " · ")))
	}
	return nil
}

var regionStates = []string{
	"anonymous", "registering", "authenticated", "registrationFailed",
	"empty", "editing", "idle", "holding", "generating", "loading", "saving",
	"closed", "naming", "error", "connected", "disconnected",
}

func stateColor(s string) *color.Color {
	switch s {
	case "generating", "saving", "loading", "registering":
		return color.New(color.FgYellow)
	case "error", "registrationFailed", "disconnected":
		return color.New(color.FgRed)
	case "holding":
		return color.New(color.FgBlue)
	}
	return color.New(color.FgGreen)
}

func recipeMark(complete, metadata, started bool) string {
	switch {
	case complete:
		return color.New(color.FgGreen).Sprint("●")
	case metadata:
		return color.New(color.FgCyan).Sprint("◐")
	case started:
		return color.New(color.FgYellow).Sprint("○")
	}
	return color.New(color.FgHiBlack).Sprint("·")
}
