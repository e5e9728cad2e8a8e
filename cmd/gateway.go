package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/channels"
	"github.com/tidelark/tidelark/internal/config"
	"github.com/tidelark/tidelark/internal/container"
	"github.com/tidelark/tidelark/internal/cron"
	"github.com/tidelark/tidelark/internal/heartbeat"
)

var gatewayNoCLI bool

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the tidelark gateway",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVar(&gatewayNoCLI, "no-cli", false, "Disable the interactive CLI channel")
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	c, err := container.New(&cfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting tidelark gateway...\n", logo)

	loop := c.AgentLoop()
	b := c.MessageBus()

	cronSvc := c.CronService()
	cronSvc.SetOnJob(func(ctx context.Context, job cron.Job) (string, error) {
		channel := job.Payload.Channel
		chatID := job.Payload.ChatID
		if channel == "" {
			channel = bus.ChannelCLI
		}
		if chatID == "" {
			chatID = "direct"
		}
		resp := loop.ProcessDirect(ctx, job.Payload.Message, "cron:"+job.ID, bus.ChannelCron, chatID)
		if resp != "" {
			b.PublishOutbound(bus.NewOutboundMessage(channel, chatID, resp))
		}
		return resp, nil
	})

	hb := heartbeat.NewService(cfg.WorkspacePath(), func(ctx context.Context, content string) error {
		loop.ProcessDirect(ctx, content, "heartbeat:direct", bus.ChannelHeartbeat, "direct")
		return nil
	}, time.Duration(cfg.Heartbeat.IntervalMinutes)*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	channelMgr := channels.NewManager(&cfg, b, !gatewayNoCLI)
	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return cronSvc.Start(gctx) })
	if cfg.Heartbeat.Enabled {
		g.Go(func() error { return hb.Start(gctx) })
	}
	g.Go(func() error { return channelMgr.StartAll(gctx) })

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
