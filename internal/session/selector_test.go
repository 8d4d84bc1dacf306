package session_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptSelector(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{name: "number", input: "2\n", want: 2},
		{name: "surrounding whitespace", input: "  1 \r\n", want: 1},
		{name: "no trailing newline", input: "0", want: 0},
		{name: "negative is left to the catalog", input: "-1\n", want: -1},
		{name: "not a number", input: "abc\n", wantErr: device.ErrUsage},
		{name: "empty line", input: "\n", wantErr: device.ErrUsage},
		{name: "closed input", input: "", wantErr: device.ErrUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			sel := &session.PromptSelector{In: strings.NewReader(tt.input), Out: &out}

			got, err := sel.Select(t.Context(), nil)
			assert.Equal(t, session.DefaultPrompt, out.String())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptSelectorCustomPrompt(t *testing.T) {
	var out bytes.Buffer
	sel := &session.PromptSelector{In: strings.NewReader("3\n"), Out: &out, Prompt: "> "}

	got, err := sel.Select(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, "> ", out.String())
}

func TestPromptSelectorCancelled(t *testing.T) {
	// GOAL: A cancelled run does not hang on an operator who never answers
	//
	// TEST SCENARIO: blocking reader + cancelled ctx → context.Canceled
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := (&session.PromptSelector{In: r}).Select(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFixedSelector(t *testing.T) {
	got, err := session.FixedSelector(4).Select(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}
