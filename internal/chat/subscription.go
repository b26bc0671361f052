package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/transport"
	"go.uber.org/multierr"
)

// SubscriptionManager is the sole owner of the push-channel connection
// state and topic set. A subscribe made before the connection completes
// is recorded and sent once connected; on every transition into
// CONNECTED, all active topics are replayed before consumers are
// notified - the transport silently drops events for unsubscribed
// topics, so an incomplete replay would lose events without any error.
//
// Consumers observe state changes only to gate whether derived live
// state is trustworthy. They never resubscribe themselves.
type SubscriptionManager struct {
	channel transport.Channel
	token   string
	backoff time.Duration

	mu           sync.Mutex
	state        transport.State
	activeTopics map[string]struct{}
	sentTopics   map[string]struct{}
	listeners    []func(transport.State)
}

func NewSubscriptionManager(channel transport.Channel, token string, backoff time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		channel:      channel,
		token:        token,
		backoff:      backoff,
		state:        transport.Disconnected,
		activeTopics: make(map[string]struct{}),
		sentTopics:   make(map[string]struct{}),
	}
}

// Run owns the connection lifecycle until the context is cancelled:
// the initial connect, lifecycle watching, and reconnects with a fixed
// backoff.
func (m *SubscriptionManager) Run(ctx context.Context) {
	go m.loop(ctx)
}

func (m *SubscriptionManager) loop(ctx context.Context) {
	m.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			if err := m.channel.Close(); err != nil {
				slog.Warn("Failed to close push channel", "error", err)
			}
			return

		case state, ok := <-m.channel.Lifecycle():
			if !ok {
				return
			}
			switch state {
			case transport.Connected:
				m.handleConnected()

			case transport.Disconnected:
				m.handleDisconnected()

				select {
				case <-ctx.Done():
				case <-time.After(m.backoff):
					m.connect(ctx)
				}
			}
		}
	}
}

// connect dials until one attempt succeeds or the context is done.
// The transition into CONNECTED happens when the channel acks through
// its lifecycle stream, not here.
func (m *SubscriptionManager) connect(ctx context.Context) {
	m.setState(transport.Connecting)

	for {
		err := m.channel.Connect(ctx, m.token)
		if err == nil {
			return
		}
		slog.Error("Push channel connect failed", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.backoff):
		}
	}
}

// handleConnected replays every active topic, then publishes the state
// change. The order matters: no consumer may treat the connection as
// ready before the replay is complete.
func (m *SubscriptionManager) handleConnected() {
	m.mu.Lock()
	m.sentTopics = make(map[string]struct{}, len(m.activeTopics))

	var errs error
	for topic := range m.activeTopics {
		if err := m.channel.SendSubscribe(topic); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		m.sentTopics[topic] = struct{}{}
	}

	m.state = transport.Connected
	replayed := len(m.sentTopics)
	listeners := append([]func(transport.State){}, m.listeners...)
	m.mu.Unlock()

	if errs != nil {
		slog.Error("Failed to replay subscriptions", "error", errs)
	} else {
		slog.Info("Push channel connected", "topics", replayed)
	}

	for _, listener := range listeners {
		listener(transport.Connected)
	}
}

func (m *SubscriptionManager) handleDisconnected() {
	m.mu.Lock()
	m.state = transport.Disconnected
	m.sentTopics = make(map[string]struct{})
	listeners := append([]func(transport.State){}, m.listeners...)
	m.mu.Unlock()

	slog.Info("Push channel disconnected")

	for _, listener := range listeners {
		listener(transport.Disconnected)
	}
}

// Subscribe records the topic immediately regardless of connection
// state - a subscribe made while connecting is not lost. When already
// connected it is also sent now, suppressed if this connection epoch
// already sent it.
func (m *SubscriptionManager) Subscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeTopics[topic] = struct{}{}

	if m.state != transport.Connected {
		return
	}
	if _, sent := m.sentTopics[topic]; sent {
		return
	}
	if err := m.channel.SendSubscribe(topic); err != nil {
		slog.Error("Failed to send subscribe", "topic", topic, "error", err)
		return
	}
	m.sentTopics[topic] = struct{}{}
}

// Unsubscribe removes the topic; unknown topics are a no-op.
func (m *SubscriptionManager) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.activeTopics[topic]; !ok {
		return
	}
	delete(m.activeTopics, topic)
	delete(m.sentTopics, topic)

	if m.state != transport.Connected {
		return
	}
	if err := m.channel.SendUnsubscribe(topic); err != nil {
		slog.Error("Failed to send unsubscribe", "topic", topic, "error", err)
	}
}

func (m *SubscriptionManager) State() transport.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers a consumer callback for connected and
// disconnected transitions.
func (m *SubscriptionManager) OnStateChange(fn func(transport.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Events exposes the channel's event stream to the facade.
func (m *SubscriptionManager) Events() <-chan transport.Event {
	return m.channel.Events()
}

func (m *SubscriptionManager) setState(state transport.State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
