package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"wormhole/internal/wormhole"
	"wormhole/pkg/utils"
)

// ErrNoInput is returned by InputCode once the input is exhausted
var ErrNoInput = errors.New("no more input")

// Summary describes a finished transfer
type Summary struct {
	Operation string // "sent" or "received"
	Name      string
	Bytes     int64
	Elapsed   time.Duration
	Path      string // where a received file was written, if any
}

// Throughput in MB/s
func (s Summary) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds() / (1024 * 1024)
}

// ConsoleUI implements InteractiveUI on plain streams. Progress bars go to
// errOut so out only carries what the user asked for.
type ConsoleUI struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	readOnce sync.Once
	lines    chan string
}

// NewConsoleUI creates a new console-based interactive UI
func NewConsoleUI(in io.Reader, out, errOut io.Writer) *ConsoleUI {
	return &ConsoleUI{
		in:     in,
		out:    out,
		errOut: errOut,
		lines:  make(chan string),
	}
}

// ShowMessage displays a message to the user
func (c *ConsoleUI) ShowMessage(message string) {
	fmt.Fprintln(c.errOut, message)
}

func (c *ConsoleUI) ShowCode(code wormhole.Code) {
	fmt.Fprintf(c.errOut, "Wormhole code is: %s\n", code)
	fmt.Fprintf(c.errOut, "On the other computer, please run: wormhole receive %s\n", code)
}

func (c *ConsoleUI) ShowText(text string) {
	fmt.Fprintln(c.out, text)
}

// InputCode prompts until the user enters something shaped like a code
func (c *ConsoleUI) InputCode(ctx context.Context) (wormhole.Code, error) {
	c.readOnce.Do(func() { go c.readLines() })

	for {
		fmt.Fprint(c.errOut, "Enter wormhole code: ")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return "", ErrNoInput
			}
			code, err := wormhole.ParseCode(line)
			if err == nil {
				return code, nil
			}
			fmt.Fprintln(c.errOut, "Invalid code, expected something like 7-guitarist-revenge. Please enter again.")
		}
	}
}

// readLines feeds c.lines until the input ends. It never stops early since a
// pending Read cannot be interrupted.
func (c *ConsoleUI) readLines() {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- strings.TrimSpace(scanner.Text())
	}
}

func (c *ConsoleUI) NewProgress(operation string) *ProgressUI {
	return NewProgressUI(c.errOut, operation)
}

// ShowTransferSummary displays a summary of the completed transfer
func (c *ConsoleUI) ShowTransferSummary(s Summary) {
	fmt.Fprintf(c.errOut, "=============================================\n")
	fmt.Fprintf(c.errOut, "Transfer completed successfully!\n")
	if s.Name != "" {
		fmt.Fprintf(c.errOut, "+ Name: %s\n", s.Name)
	}
	fmt.Fprintf(c.errOut, "+ Total bytes %s: %s\n", s.Operation, utils.FormatFileSize(s.Bytes))
	fmt.Fprintf(c.errOut, "+ Transfer time: %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.errOut, "+ Average throughput: %.2f MB/s\n", s.Throughput())
	if s.Path != "" {
		fmt.Fprintf(c.errOut, "+ Written to: %s\n", s.Path)
	}
	fmt.Fprintf(c.errOut, "=============================================\n")
}
