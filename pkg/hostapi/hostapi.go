// Package hostapi is the textual call surface a host engine uses to talk to
// the controller: velocity commands, reset requests and a couple of built-in
// queries. Every call answers with a JSON array, either
// ["ok", command, result] or ["error", command, message].
package hostapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/actorsteer/actorsteer/internal/dispatcher"
)

// Built-in commands answered without the dispatcher.
const (
	CmdVersion   = ":VERSION:"
	CmdTimestamp = ":TIMESTAMP:"
)

// Separator splits a single-line call into command and arguments.
const Separator = "|"

// Dispatcher is the subset of dispatcher.Dispatcher the API needs.
type Dispatcher interface {
	HasHandler(topic string) bool
	Dispatch(dispatcher.Event) (any, error)
}

// API answers host calls.
type API struct {
	version string
	d       Dispatcher
	now     func() time.Time
}

// New creates an API reporting version and forwarding other calls to d.
// d may be nil, in which case only built-ins answer.
func New(version string, d Dispatcher) *API {
	return &API{version: version, d: d, now: time.Now}
}

// Call runs command with args and returns the formatted response.
func (a *API) Call(command string, args ...string) string {
	switch command {
	case CmdVersion:
		return FormatResponse(command, a.version, nil)
	case CmdTimestamp:
		return FormatResponse(command, strconv.FormatInt(a.now().UTC().UnixNano(), 10), nil)
	}

	if a.d == nil || !a.d.HasHandler(command) {
		return FormatResponse(command, nil, fmt.Errorf("no handler registered"))
	}

	result, err := a.d.Dispatch(dispatcher.Event{
		Topic:     command,
		Args:      normalizeArgs(args),
		Timestamp: a.now(),
	})
	return FormatResponse(command, result, err)
}

// CallLine accepts the single-string form "command|arg1|arg2".
func (a *API) CallLine(line string) string {
	parts := strings.Split(strings.TrimSpace(line), Separator)
	return a.Call(parts[0], parts[1:]...)
}

// Engines quote string arguments and double embedded quotes.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = FixEscapeQuotes(TrimQuotes(arg))
	}
	return out
}

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// FormatResponse encodes a call result.
func FormatResponse(command string, result any, err error) string {
	var reply []any
	switch {
	case err != nil:
		reply = []any{"error", command, err.Error()}
	case result == nil:
		reply = []any{"ok", command}
	default:
		reply = []any{"ok", command, result}
	}

	out, mErr := json.Marshal(reply)
	if mErr != nil {
		out, _ = json.Marshal([]any{"error", command, mErr.Error()})
	}
	return string(out)
}
