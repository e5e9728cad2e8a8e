// Package bus defines the message types and queues that connect chat
// channels to the agent core.
package bus

import (
	"context"
	"time"
)

// Bus is the contract between chat channels and the agent core.
// Implementations may use buffered channels, pub/sub systems, or any other
// transport; ordering is per-channel FIFO from producer to consumer.
type Bus interface {
	// PublishInbound delivers a message from a channel to the agent.
	// Must not block the producing adapter.
	PublishInbound(msg InboundMessage)
	// PublishOutbound delivers a response from the agent to a channel.
	PublishOutbound(msg OutboundMessage)
	// ConsumeInbound blocks up to timeout for the next inbound message.
	// ok is false on timeout or context cancellation. The agent loop polls
	// with a short timeout so it can observe shutdown between messages.
	ConsumeInbound(ctx context.Context, timeout time.Duration) (msg InboundMessage, ok bool)
	// ConsumeOutbound is the symmetric operation for the channel manager.
	ConsumeOutbound(ctx context.Context, timeout time.Duration) (msg OutboundMessage, ok bool)
	// OutboundChan returns a receive-only channel for select-based consumers.
	OutboundChan() <-chan OutboundMessage
}

// MessageBus is the default in-process Bus backed by buffered Go channels.
//
// Channels push InboundMessages; the agent consumes them, processes, and
// pushes OutboundMessages back for the channel manager to route. Both
// directions are buffered so senders rarely block on a slow consumer.
type MessageBus struct {
	inbound  chan InboundMessage  // channels -> agent
	outbound chan OutboundMessage // agent -> channels
}

// NewMessageBus creates a MessageBus with the given per-direction buffer size.
func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

// PublishInbound sends an InboundMessage to the agent.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// PublishOutbound sends an OutboundMessage to the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// ConsumeInbound blocks up to timeout for the next inbound message.
func (b *MessageBus) ConsumeInbound(ctx context.Context, timeout time.Duration) (InboundMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-timer.C:
		return InboundMessage{}, false
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// ConsumeOutbound blocks up to timeout for the next outbound message.
func (b *MessageBus) ConsumeOutbound(ctx context.Context, timeout time.Duration) (OutboundMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-timer.C:
		return OutboundMessage{}, false
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// OutboundChan returns a receive-only view of the outbound queue.
func (b *MessageBus) OutboundChan() <-chan OutboundMessage {
	return b.outbound
}

// InboundSize returns the number of queued inbound messages.
func (b *MessageBus) InboundSize() int { return len(b.inbound) }

// OutboundSize returns the number of queued outbound messages.
func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
