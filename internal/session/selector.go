package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/srg/gattstream/internal/catalog"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/groutine"
)

// Selector picks the catalog index to connect to.
type Selector interface {
	Select(ctx context.Context, cat *catalog.Catalog) (int, error)
}

// FixedSelector always selects the same index.
type FixedSelector int

func (f FixedSelector) Select(context.Context, *catalog.Catalog) (int, error) {
	return int(f), nil
}

// DefaultPrompt is what PromptSelector asks when Prompt is empty.
const DefaultPrompt = "Enter your device number: "

// PromptSelector reads one line from In and parses it as a decimal index.
type PromptSelector struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

// Select prompts once. Non-numeric input is ErrUsage; range checks are left
// to the catalog. A cancelled ctx abandons the read.
func (p *PromptSelector) Select(ctx context.Context, _ *catalog.Catalog) (int, error) {
	prompt := p.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if p.Out != nil {
		fmt.Fprint(p.Out, prompt)
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	groutine.Go(ctx, "device-prompt", func(context.Context) {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- result{line: line, err: err}
	})

	var r result
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case r = <-ch:
	}

	if r.err != nil && !errors.Is(r.err, io.EOF) {
		return -1, fmt.Errorf("%w: reading device number: %w", device.ErrUsage, r.err)
	}

	text := strings.TrimSpace(r.line)
	if text == "" {
		return -1, fmt.Errorf("%w: no device number entered", device.ErrUsage)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return -1, fmt.Errorf("%w: device number must be an integer, got %q", device.ErrUsage, text)
	}
	return n, nil
}
