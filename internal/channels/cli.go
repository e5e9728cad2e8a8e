package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidelark/tidelark/internal/bus"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel is the stdin/stdout REPL. It sends each line to the agent and
// blocks until the reply for that line arrives, printing interim progress
// along the way.
type CLIChannel struct {
	Base
	replies chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel.
func NewCLIChannel(b bus.Bus) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, b, nil),
		replies: make(chan bus.OutboundMessage, 16),
	}
}

func (c *CLIChannel) Name() string { return bus.ChannelCLI }

// Start runs the REPL until ctx is cancelled or stdin closes.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.HandleMessage("user", "direct", line, nil, nil)
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the final reply for the current line arrives.
// Progress and tool hints are printed inline; an empty final reply means the
// agent already answered through the message tool.
func (c *CLIChannel) waitForReply(ctx context.Context) {
	for {
		select {
		case msg := <-c.replies:
			if msg.IsProgress() || msg.IsToolHint() {
				fmt.Printf("  … %s\n", msg.Content)
				continue
			}
			if msg.Content != "" {
				fmt.Printf("\nAgent: %s\n\n", msg.Content)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// Send queues an outbound agent message for the REPL loop to print.
func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	select {
	case c.replies <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
