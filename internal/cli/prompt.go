package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompt asks yes/no questions on a terminal. It implements
// loader.ConfirmationProvider.
type Prompt struct {
	w           io.Writer
	interactive bool

	mu      sync.Mutex
	scanner *bufio.Scanner
	pending chan answer // read still in flight after a cancelled Confirm
}

type answer struct {
	text string
	ok   bool
	err  error
}

// NewPrompt reads answers from r. When interactive is false every question is
// declined without being shown.
func NewPrompt(w io.Writer, r io.Reader, interactive bool) *Prompt {
	return &Prompt{w: w, interactive: interactive, scanner: bufio.NewScanner(r)}
}

// Confirm shows question followed by [y/N]. Anything but y or yes declines,
// including an empty line and end of input.
func (p *Prompt) Confirm(ctx context.Context, question string) (bool, error) {
	if !p.interactive {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s [y/N] ", question)

	if p.pending == nil {
		ch := make(chan answer, 1)
		go func() {
			ok := p.scanner.Scan()
			ch <- answer{p.scanner.Text(), ok, p.scanner.Err()}
		}()
		p.pending = ch
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.w)
		return false, ctx.Err()
	case a := <-p.pending:
		p.pending = nil
		if a.err != nil {
			return false, a.err
		}
		if !a.ok {
			fmt.Fprintln(p.w)
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(a.text)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// yes approves everything; it backs --yes.
func yes(context.Context, string) (bool, error) { return true, nil }
