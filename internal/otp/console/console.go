// Package console is the interactive terminal and the development delivery
// channel used by the otp command.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console reads lines from in and writes prompts and messages to out.
//
// Input is read by a background goroutine so a pending ReadLine can be
// abandoned when its context is cancelled. An abandoned line is handed to
// the next ReadLine.
type Console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out *bufio.Writer

	start sync.Once
	lines chan readResult
}

type readResult struct {
	line string
	err  error
}

func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:    bufio.NewReader(in),
		out:   bufio.NewWriter(out),
		lines: make(chan readResult),
	}
}

// ReadLine shows prompt and returns the next line without its line ending.
// A final unterminated line is returned before io.EOF is reported. It
// returns ctx.Err() as soon as ctx is done.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		if err := c.write(prompt); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
	}

	c.start.Do(func() { go c.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}

// readLoop feeds lines to ReadLine until the input fails or ends.
func (c *Console) readLoop() {
	defer close(c.lines)

	for {
		line, err := c.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if errors.Is(err, io.EOF) && line != "" {
			c.lines <- readResult{line: line}
		}
		if err != nil {
			c.lines <- readResult{err: err}
			return
		}
		c.lines <- readResult{line: line}
	}
}

// Println writes msg and a newline and flushes.
func (c *Console) Println(msg string) error {
	if err := c.write(msg + "\n"); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.out.WriteString(s); err != nil {
		return err
	}
	return c.out.Flush()
}

// DebugDeliverer writes codes to a console instead of sending them. It is
// only suitable for development.
type DebugDeliverer struct {
	Out io.Writer
}

func (d DebugDeliverer) Deliver(_ context.Context, principal string, code string) error {
	if _, err := fmt.Fprintf(d.Out, "[DEBUG] Sending OTP to %s: %s\n", principal, code); err != nil {
		return fmt.Errorf("failed to write debug delivery: %w", err)
	}
	return nil
}
