package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSChannel is the push channel over a gateway websocket. One writer
// goroutine owns the connection for writes (gorilla allows a single
// concurrent writer), so subscribes go through the outgoing queue.
type WSChannel struct {
	url string

	events    chan Event
	lifecycle chan State
	outgoing  chan subscribeFrame

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	connected bool
}

func NewWSChannel(url string) *WSChannel {
	return &WSChannel{
		url:       url,
		events:    make(chan Event, 64),
		lifecycle: make(chan State, 8),
		outgoing:  make(chan subscribeFrame, 32),
	}
}

var _ Channel = (*WSChannel)(nil)

func (w *WSChannel) Connect(ctx context.Context, token string) error {
	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		return fmt.Errorf("websocket channel already connected")
	}
	w.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("dial push gateway: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.connected = true
	w.mu.Unlock()

	go w.run(pumpCtx, conn)

	w.lifecycle <- Connected
	return nil
}

func (w *WSChannel) run(ctx context.Context, conn *websocket.Conn) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.read(ctx, conn)
	})

	g.Go(func() error {
		return w.write(ctx, conn)
	})

	err := g.Wait()
	if err != nil && err != context.Canceled {
		slog.Error("Push channel dropped", "error", err)
	}

	w.mu.Lock()
	conn.Close()
	if w.conn == conn {
		w.conn = nil
		w.connected = false
	}
	w.mu.Unlock()

	w.lifecycle <- Disconnected
}

func (w *WSChannel) read(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			var event Event
			if err := conn.ReadJSON(&event); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
					websocket.CloseNoStatusReceived) {
					slog.Error("Websocket close error", "error", err)
				}
				return context.Canceled
			}

			select {
			case w.events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *WSChannel) write(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		case frame := <-w.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(&frame); err != nil {
				return fmt.Errorf("write %s frame for topic %s: %w", frame.Action, frame.Topic, err)
			}
		}
	}
}

func (w *WSChannel) SendSubscribe(topic string) error {
	return w.enqueue(subscribeFrame{Action: "subscribe", Topic: topic})
}

func (w *WSChannel) SendUnsubscribe(topic string) error {
	return w.enqueue(subscribeFrame{Action: "unsubscribe", Topic: topic})
}

func (w *WSChannel) enqueue(frame subscribeFrame) error {
	w.mu.Lock()
	connected := w.connected
	w.mu.Unlock()

	if !connected {
		return fmt.Errorf("push channel is not connected")
	}

	select {
	case w.outgoing <- frame:
		return nil
	default:
		return fmt.Errorf("push channel send queue is full")
	}
}

func (w *WSChannel) Events() <-chan Event {
	return w.events
}

func (w *WSChannel) Lifecycle() <-chan State {
	return w.lifecycle
}

func (w *WSChannel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs error
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.conn != nil {
		errs = multierr.Append(errs, w.conn.Close())
		w.conn = nil
		w.connected = false
	}
	return errs
}
