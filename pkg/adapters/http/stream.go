package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/gorilla/websocket"
)

// Message types sent on the websocket stream.
const (
	MessageStatus    = "status"
	MessageStates    = "states"
	MessageException = "exception"
)

// Envelope wraps every websocket message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// StreamManager fans status, state changes and exceptions out to websocket
// clients. A slow client drops messages instead of blocking the others.
type StreamManager struct {
	mu       sync.RWMutex
	subs     map[chan []byte]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subs: make(map[chan []byte]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Subscribe registers a buffered channel of encoded envelopes.
func (sm *StreamManager) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	sm.mu.Lock()
	sm.subs[ch] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			delete(sm.subs, ch)
			sm.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of connected clients.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subs)
}

// Broadcast sends an envelope to every subscriber.
func (sm *StreamManager) Broadcast(kind string, data any) error {
	raw, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return err
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subs {
		select {
		case ch <- raw:
		default:
			sm.logger.Warn("stream client buffer full, dropping message", "type", kind)
		}
	}
	return nil
}

func (sm *StreamManager) OnStatus(_ context.Context, report domain.StatusReport) error {
	return sm.Broadcast(MessageStatus, report)
}

func (sm *StreamManager) OnStatesChanged(_ context.Context, change domain.StateChange) error {
	return sm.Broadcast(MessageStates, change)
}

func (sm *StreamManager) OnException(_ context.Context, ev domain.ExceptionEvent) error {
	return sm.Broadcast(MessageException, ev)
}

// ServeWS upgrades the request and streams envelopes until the client leaves.
func (sm *StreamManager) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sm.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	msgs, cancel := sm.Subscribe()
	defer cancel()
	sm.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	// the read loop only detects disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			sm.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				sm.logger.Warn("stream write failed", "err", err)
				return
			}
		}
	}
}
