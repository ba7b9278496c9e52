// Package prompt asks the user at the terminal to grant access to external
// directories.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a question cannot be asked because
// input is not a terminal.
var ErrNotInteractive = errors.New("input is not a terminal")

// Terminal implements osfs.Prompter with y/N questions.
type Terminal struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	assumeYes   bool
	pending     chan answer // read still in flight after a cancelled question
}

// New asks on out and reads answers from in. Questions fail with
// ErrNotInteractive unless in is a terminal.
func New(in *os.File, out io.Writer) *Terminal {
	return NewReader(in, out, term.IsTerminal(int(in.Fd())))
}

// NewReader is New for arbitrary readers.
func NewReader(in io.Reader, out io.Writer, interactive bool) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, interactive: interactive}
}

// AssumeYes makes every question answer itself with yes.
func (t *Terminal) AssumeYes(yes bool) *Terminal {
	t.assumeYes = yes
	return t
}

type answer struct {
	line string
	err  error
}

// Confirm prints question and waits for an answer. Only "y" and "yes"
// grant; anything else, including an empty line, denies.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.assumeYes {
		fmt.Fprintf(t.out, "%s [y/N] y\n", question)
		return true, nil
	}
	if !t.interactive {
		return false, ErrNotInteractive
	}

	fmt.Fprintf(t.out, "%s [y/N] ", question)
	ch := t.pending
	if ch == nil {
		ch = make(chan answer, 1)
		go func() {
			line, err := t.in.ReadString('\n')
			ch <- answer{line, err}
		}()
	}

	select {
	case <-ctx.Done():
		t.pending = ch
		fmt.Fprintln(t.out)
		return false, ctx.Err()
	case a := <-ch:
		t.pending = nil
		if a.err != nil && a.line == "" {
			if a.err == io.EOF {
				return false, nil
			}
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
