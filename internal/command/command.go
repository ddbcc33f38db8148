package command

import (
	"errors"
	"fmt"
	"strings"
)

// Extension carries call-site parameters for callbacks shared between
// several commands (e.g. which action a blacklist callback performs).
type Extension map[string]string

// Callback runs a resolved text command. args is the raw argument string
// split on whitespace, raw is the same string unsplit. A returned *UserError
// is shown to the user; any other error is only logged.
type Callback func(ctx *Context, args []string, raw string, ext Extension) error

// Command is one registered text command.
type Command struct {
	BaseNames       []string
	SubNames        []string
	CategoryNames   []string
	AuthorityLabels []string
	Callback        Callback
}

// Key is the registry key of the command's group.
func (c *Command) Key() string {
	return strings.Join(c.BaseNames, ",")
}

// Base is the canonical base name.
func (c *Command) Base() string {
	if len(c.BaseNames) == 0 {
		return ""
	}
	return c.BaseNames[0]
}

// Sub is the primary sub-name, "" for the default entry.
func (c *Command) Sub() string {
	if len(c.SubNames) == 0 {
		return ""
	}
	return c.SubNames[0]
}

// DisplayName is "base" or "base sub".
func (c *Command) DisplayName() string {
	if c.Sub() == "" {
		return c.Base()
	}
	return c.Base() + " " + c.Sub()
}

// IsFallback reports whether the command answers when no sub-name matches.
func (c *Command) IsFallback() bool {
	for _, n := range c.SubNames {
		if n == "" {
			return true
		}
	}
	return false
}

// UserError is an error meant for the invoking user.
type UserError struct {
	Text string
}

func (e *UserError) Error() string { return e.Text }

// Fail returns a user-facing error with text.
func Fail(text string) error {
	return &UserError{Text: text}
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) error {
	return &UserError{Text: fmt.Sprintf(format, args...)}
}

// AsUserError extracts the user-facing text of err, if any.
func AsUserError(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Text, true
	}
	return "", false
}
