package machine

import (
	"slices"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MaxUndo bounds the undo stack.
const MaxUndo = 100

// InputChange is one undoable edit of the input. Prompt edits are stored as
// text patches in both directions; tokens are stored whole since the list is
// short.
type InputChange struct {
	Forward      string   `json:"forward"`
	Backward     string   `json:"backward"`
	TokensBefore []string `json:"tokensBefore"`
	TokensAfter  []string `json:"tokensAfter"`
}

func (c InputChange) clone() InputChange {
	c.TokensBefore = cloneSlice(c.TokensBefore)
	c.TokensAfter = cloneSlice(c.TokensAfter)
	return c
}

var dmp = diffmatchpatch.New()

func diffInput(prevPrompt string, prevTokens []string, prompt string, tokens []string) (InputChange, bool) {
	if prevPrompt == prompt && slices.Equal(prevTokens, tokens) {
		return InputChange{}, false
	}
	return InputChange{
		Forward:      dmp.PatchToText(dmp.PatchMake(prevPrompt, prompt)),
		Backward:     dmp.PatchToText(dmp.PatchMake(prompt, prevPrompt)),
		TokensBefore: cloneSlice(prevTokens),
		TokensAfter:  cloneSlice(tokens),
	}, true
}

func applyPatch(text, patch string) (string, bool) {
	if patch == "" {
		return text, true
	}
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return text, false
	}
	out, applied := dmp.PatchApply(patches, text)
	for _, ok := range applied {
		if !ok {
			return text, false
		}
	}
	return out, true
}

// setInput replaces the prompt and tokens, recording the change for undo.
// It reports whether anything changed.
func setInput(c *Context, prompt string, tokens []string) bool {
	change, ok := diffInput(c.Prompt, c.Tokens, prompt, tokens)
	if !ok {
		return false
	}
	c.Prompt = prompt
	c.Tokens = cloneSlice(tokens)
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	c.UndoOperations = append(c.UndoOperations, change)
	if len(c.UndoOperations) > MaxUndo {
		c.UndoOperations = c.UndoOperations[len(c.UndoOperations)-MaxUndo:]
	}
	c.RedoOperations = []InputChange{}
	return true
}

// undo reverts the most recent input change.
func undo(c *Context) bool {
	n := len(c.UndoOperations)
	if n == 0 {
		return false
	}
	change := c.UndoOperations[n-1]
	prompt, ok := applyPatch(c.Prompt, change.Backward)
	if !ok {
		return false
	}
	c.UndoOperations = c.UndoOperations[:n-1]
	c.Prompt = prompt
	c.Tokens = cloneSlice(change.TokensBefore)
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	c.RedoOperations = append(c.RedoOperations, change)
	return true
}

// redo re-applies the most recently undone change.
func redo(c *Context) bool {
	n := len(c.RedoOperations)
	if n == 0 {
		return false
	}
	change := c.RedoOperations[n-1]
	prompt, ok := applyPatch(c.Prompt, change.Forward)
	if !ok {
		return false
	}
	c.RedoOperations = c.RedoOperations[:n-1]
	c.Prompt = prompt
	c.Tokens = cloneSlice(change.TokensAfter)
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	c.UndoOperations = append(c.UndoOperations, change)
	return true
}
