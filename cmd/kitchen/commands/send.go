package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/server"
)

var (
	sendWait    string
	sendTimeout string
	sendPrint   bool
)

var sendCmd = &cobra.Command{
	Use:   "send <session> <event-json | event-type>",
	Short: "Send an event to a session",
	Long: `Send one event to a running session and wait for its transition.

Examples:
  kitchen send 8f0c... '{"type":"SET_INPUT","prompt":"quick dinner"}'
  kitchen send 8f0c... SUBMIT --wait recipes=idle
  kitchen send 8f0c... '{"type":"ADD_TOKEN","token":"basil"}' --print`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendWait, "wait", "", "Wait until region=state holds after sending")
	sendCmd.Flags().StringVar(&sendTimeout, "timeout", "30s", "Timeout for --wait")
	sendCmd.Flags().BoolVar(&sendPrint, "print", false, "Print the session state afterwards")
}

// parseEventArg accepts a JSON event or a bare event type.
func parseEventArg(arg string) ([]byte, error) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "{") {
		arg = fmt.Sprintf(`{"type":%q}`, strings.ToUpper(arg))
	}
	ev, err := event.Decode([]byte(arg))
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

func runSend(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	body, err := parseEventArg(args[1])
	if err != nil {
		return err
	}

	if err := call("POST", "/session/"+url.PathEscape(sessionID)+"/event", body, nil); err != nil {
		return err
	}

	var state server.SessionResponse
	switch {
	case sendWait != "":
		region, want, ok := strings.Cut(sendWait, "=")
		if !ok {
			return fmt.Errorf("--wait expects region=state, got %q", sendWait)
		}
		q := url.Values{"region": {region}, "state": {want}, "timeout": {sendTimeout}}
		if err := call("GET", "/session/"+url.PathEscape(sessionID)+"/wait?"+q.Encode(), nil, &state); err != nil {
			return err
		}
	case sendPrint:
		if err := call("GET", "/session/"+url.PathEscape(sessionID), nil, &state); err != nil {
			return err
		}
	default:
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state.State)
}
