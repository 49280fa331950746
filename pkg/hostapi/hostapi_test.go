package hostapi

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/internal/logging"
)

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		result   any
		err      error
		expected string
	}{
		{
			name:     "string result",
			command:  "cmd_vel",
			result:   "queued",
			expected: `["ok","cmd_vel","queued"]`,
		},
		{
			name:     "nil result",
			command:  "reset",
			expected: `["ok","reset"]`,
		},
		{
			name:     "error",
			command:  "cmd_vel",
			err:      errors.New("invalid twist payload"),
			expected: `["error","cmd_vel","invalid twist payload"]`,
		},
		{
			name:     "array result",
			command:  ":DATA:",
			result:   []float64{1, 2.5},
			expected: `["ok",":DATA:",[1,2.5]]`,
		},
		{
			name:     "quotes are escaped",
			command:  "x",
			result:   `say "hi"`,
			expected: `["ok","x","say \"hi\""]`,
		},
		{
			name:     "unencodable result",
			command:  "x",
			result:   make(chan int),
			expected: `["error","x","json: unsupported type: chan int"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatResponse(tt.command, tt.result, tt.err))
		})
	}
}

func newTestAPI(t *testing.T) (*API, *dispatcher.Dispatcher) {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	a := New("1.2.3", d)
	a.now = func() time.Time { return time.Unix(0, 42) }
	return a, d
}

func TestCall_BuiltIns(t *testing.T) {
	a, _ := newTestAPI(t)

	assert.Equal(t, `["ok",":VERSION:","1.2.3"]`, a.Call(CmdVersion))
	assert.Equal(t, `["ok",":TIMESTAMP:","42"]`, a.Call(CmdTimestamp))
}

func TestCall_Dispatches(t *testing.T) {
	a, d := newTestAPI(t)

	var got dispatcher.Event
	d.Register("cmd_vel", func(e dispatcher.Event) (any, error) {
		got = e
		return "ok", nil
	})

	assert.Equal(t, `["ok","cmd_vel","ok"]`, a.Call("cmd_vel", "1,0,0", "0,0,0.1"))
	assert.Equal(t, "cmd_vel", got.Topic)
	assert.Equal(t, []string{"1,0,0", "0,0,0.1"}, got.Args)
	assert.Equal(t, time.Unix(0, 42), got.Timestamp)
}

func TestCall_HandlerError(t *testing.T) {
	a, d := newTestAPI(t)
	d.Register("reset", func(dispatcher.Event) (any, error) {
		return nil, errors.New("plugin not loaded")
	})

	assert.Equal(t, `["error","reset","plugin not loaded"]`, a.Call("reset"))
}

func TestCall_Unknown(t *testing.T) {
	a, _ := newTestAPI(t)
	assert.Equal(t, `["error","nope","no handler registered"]`, a.Call("nope"))

	bare := New("v", nil)
	assert.Equal(t, `["error","reset","no handler registered"]`, bare.Call("reset"))
	assert.Equal(t, `["ok",":VERSION:","v"]`, bare.Call(CmdVersion))
}

func TestCallLine(t *testing.T) {
	a, d := newTestAPI(t)

	var args []string
	d.Register("cmd_vel", func(e dispatcher.Event) (any, error) {
		args = e.Args
		return nil, nil
	})

	assert.Equal(t, `["ok","cmd_vel"]`, a.CallLine("cmd_vel|0.5,0,0|0,0,0.2\n"))
	assert.Equal(t, []string{"0.5,0,0", "0,0,0.2"}, args)

	assert.Equal(t, `["ok",":VERSION:","1.2.3"]`, a.CallLine(":VERSION:"))
}

func TestCall_UnquotesArgs(t *testing.T) {
	a, d := newTestAPI(t)

	var args []string
	d.Register("metric", func(e dispatcher.Event) (any, error) {
		args = e.Args
		return nil, nil
	})

	a.Call("metric", `"controller"`, `"field::string::note::say ""hi"""`)
	assert.Equal(t, []string{"controller", `field::string::note::say "hi`}, args)
}

func TestTrimQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"no quotes", "hello", "hello"},
		{"double quoted", `"hello"`, "hello"},
		{"single quotes only", "'hello'", "'hello'"},
		{"quotes in middle", `he"llo`, `he"llo`},
		{"only quotes", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrimQuotes(tt.input))
		})
	}
}

func TestFixEscapeQuotes(t *testing.T) {
	assert.Equal(t, `say "hi"`, FixEscapeQuotes(`say ""hi""`))
	assert.Equal(t, "plain", FixEscapeQuotes("plain"))
}
