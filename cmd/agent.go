package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/config"
	"github.com/tidelark/tidelark/internal/container"
	"github.com/tidelark/tidelark/internal/schema"
)

var (
	agentMessage string
	agentSession string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the agent",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
	agentCmd.Flags().StringVarP(&agentSession, "session", "s", "cli:direct", "Session key")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runAgent(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	c, err := container.New(&cfg)
	if err != nil {
		return err
	}

	channel, chatID := parseSessionKey(agentSession)

	if agentMessage != "" {
		return runSingleMessage(c.AgentLoop(), agentSession, channel, chatID)
	}
	return runInteractive(c.AgentLoop(), c.MessageBus(), channel, chatID)
}

// runSingleMessage sends one message to the agent and prints the response.
func runSingleMessage(loop schema.AgentLooper, sessionKey, channel, chatID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintln(os.Stderr, "  … thinking")
	printResponse(loop.ProcessDirect(ctx, agentMessage, sessionKey, channel, chatID))
	return nil
}

// runInteractive reads lines from stdin, sends each through the bus, and
// waits for the reply before prompting again.
func runInteractive(loop schema.AgentLooper, msgBus bus.Bus, channel, chatID string) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenForSignals(cancel)

	go func() { _ = loop.Run(ctx) }()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		sendAndWait(ctx, msgBus, channel, chatID, line)
	}
}

// listenForSignals cancels ctx on SIGINT or SIGTERM and exits.
func listenForSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()
}

// sendAndWait publishes a message onto the inbound bus and blocks until the
// agent publishes the final reply (or ctx is cancelled). An empty final
// reply means the agent already answered through the message tool.
func sendAndWait(ctx context.Context, msgBus bus.Bus, channel, chatID, content string) {
	msgBus.PublishInbound(bus.NewInboundMessage(channel, "user", chatID, content))

	for {
		select {
		case msg := <-msgBus.OutboundChan():
			if msg.IsProgress() || msg.IsToolHint() {
				fmt.Printf("  … %s\n", msg.Content)
				continue
			}
			if msg.Content != "" {
				printResponse(msg.Content)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func printResponse(text string) {
	fmt.Printf("\n%s tidelark\n%s\n\n", logo, text)
}

func parseSessionKey(key string) (channel, chatID string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "cli", key
}
