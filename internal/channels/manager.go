package channels

import (
	"context"
	"log/slog"
	"sort"

	"github.com/tidelark/tidelark/internal/bus"
	"github.com/tidelark/tidelark/internal/config"
	"github.com/tidelark/tidelark/internal/schema"
)

// Manager owns all enabled channels and routes outbound messages to them.
type Manager struct {
	channels map[string]schema.Channel
	bus      bus.Bus
}

// NewManager creates a Manager and registers all enabled channels. The CLI
// channel is registered only when interactive is true (the gateway attached
// to a terminal).
func NewManager(cfg *config.Config, b bus.Bus, interactive bool) *Manager {
	m := &Manager{
		channels: make(map[string]schema.Channel),
		bus:      b,
	}

	if interactive {
		m.register(NewCLIChannel(b))
	}
	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegramChannel(&cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlackChannel(&cfg.Channels.Slack, b))
	}
	if cfg.Channels.WhatsApp.Enabled {
		m.register(NewWhatsAppChannel(&cfg.Channels.WhatsApp, b))
	}
	return m
}

func (m *Manager) register(ch schema.Channel) {
	m.channels[ch.Name()] = ch
	slog.Info("channel enabled", "name", ch.Name())
}

// EnabledChannels returns the names of all registered channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every channel concurrently and dispatches outbound
// messages until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, ch := range m.channels {
		go func(n string, c schema.Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound routes each outbound bus message to its channel's Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.bus.OutboundChan():
			ch, ok := m.channels[msg.Channel]
			if !ok {
				slog.Debug("no channel for outbound message", "channel", msg.Channel)
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
