package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Operator is a human who can clear a challenge in a visible browser window.
type Operator interface {
	AwaitManualSolve(ctx context.Context, pageURL string) error
}

// ConsoleOperator prompts on out and waits for Enter on in. A single goroutine owns in
// for the operator's lifetime, so a prompt abandoned by cancellation does not leave a
// second reader competing for the next line.
type ConsoleOperator struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan error

	mu  sync.Mutex
	err error
}

func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{in: in, out: out, lines: make(chan error)}
}

func (o *ConsoleOperator) AwaitManualSolve(ctx context.Context, pageURL string) error {
	if o.in == nil {
		return errors.New("no operator input")
	}
	o.mu.Lock()
	sticky := o.err
	o.mu.Unlock()
	if sticky != nil {
		return sticky
	}
	if o.out != nil {
		_, _ = fmt.Fprintf(o.out, "\nCAPTCHA detected on %s\nSolve it in the browser window, then press Enter to continue...\n", pageURL)
	}

	o.once.Do(func() { go o.readLines() })
	select {
	case err := <-o.lines:
		if err == nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("operator input closed")
		} else {
			err = fmt.Errorf("read operator input: %w", err)
		}
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *ConsoleOperator) readLines() {
	r := bufio.NewReader(o.in)
	for {
		_, err := r.ReadString('\n')
		o.lines <- err
		if err != nil {
			return
		}
	}
}
