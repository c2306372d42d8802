package agents

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
)

type agentConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *agentConn) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Bridge is the coordinator side of the extension's content scripts. Each tab
// holds one websocket; a newer connection for the same tab replaces the old one.
type Bridge struct {
	logger   arbor.ILogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	handler interfaces.BatchHandler
	conns   map[string]*agentConn
	waiters map[string]chan *models.BatchResult
}

// NewBridge creates a new websocket agent bridge
func NewBridge(logger arbor.ILogger) *Bridge {
	return &Bridge{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Extension pages connect from chrome-extension:// origins
			},
		},
		conns:   make(map[string]*agentConn),
		waiters: make(map[string]chan *models.BatchResult),
	}
}

// SetHandler wires the receiver of PAGE_LOADED and BATCH_RESULT
func (b *Bridge) SetHandler(handler interfaces.BatchHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *Bridge) batchHandler() interfaces.BatchHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handler
}

// Tabs returns the ids of connected tabs
func (b *Bridge) Tabs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tabs := make([]string, 0, len(b.conns))
	for tabID := range b.conns {
		tabs = append(tabs, tabID)
	}
	sort.Strings(tabs)
	return tabs
}

// ServeHTTP upgrades /ws/agent?tab=<id> and runs the read loop until the tab disconnects
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		http.Error(w, "tab query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Str("tab_id", tabID).Msg("Failed to upgrade agent connection")
		return
	}
	conn.SetReadLimit(maxMessageSize)
	// Hijacked connections keep the server's request deadline
	_ = conn.SetReadDeadline(time.Time{})

	ac := &agentConn{conn: conn}
	b.mu.Lock()
	previous := b.conns[tabID]
	b.conns[tabID] = ac
	b.mu.Unlock()
	if previous != nil {
		previous.conn.Close()
	}

	b.logger.Info().Str("tab_id", tabID).Msg("Agent connected")

	defer func() {
		b.mu.Lock()
		if b.conns[tabID] == ac {
			delete(b.conns, tabID)
		}
		b.mu.Unlock()
		conn.Close()
		b.logger.Info().Str("tab_id", tabID).Msg("Agent disconnected")
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Agent connection closed unexpectedly")
			}
			return
		}
		b.dispatch(r.Context(), tabID, ac, msg)
	}
}

func (b *Bridge) dispatch(ctx context.Context, tabID string, ac *agentConn, msg Message) {
	switch msg.Type {
	case models.MessagePing:
		if err := ac.write(Message{Type: models.MessageAck, TabID: tabID, Status: StatusReady}); err != nil {
			b.logger.Debug().Err(err).Str("tab_id", tabID).Msg("Failed to answer ping")
		}

	case models.MessagePageLoaded:
		handler := b.batchHandler()
		if handler == nil {
			return
		}
		if err := handler.PageLoaded(ctx, tabID, msg.URL); err != nil {
			b.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Page load handling failed")
		}

	case models.MessageBatchResult:
		result := msg.Result
		if result == nil {
			result = &models.BatchResult{}
		}
		if result.BatchID == "" {
			result.BatchID = msg.BatchID
		}

		if b.deliverToWaiter(result) {
			return
		}

		ack := &models.BatchAck{Success: true, Warning: "Session not found"}
		if handler := b.batchHandler(); handler != nil {
			var err error
			ack, err = handler.HandleBatchResult(ctx, tabID, result)
			if err != nil {
				ack = &models.BatchAck{Success: false, Error: err.Error()}
			}
		}
		if err := ac.write(Message{Type: models.MessageAck, TabID: tabID, BatchID: result.BatchID, Ack: ack}); err != nil {
			b.logger.Debug().Err(err).Str("tab_id", tabID).Msg("Failed to acknowledge batch result")
		}

	default:
		b.logger.Debug().Str("tab_id", tabID).Str("type", msg.Type).Msg("Ignoring unknown agent message")
	}
}

func (b *Bridge) deliverToWaiter(result *models.BatchResult) bool {
	if result.BatchID == "" {
		return false
	}
	b.mu.Lock()
	ch, ok := b.waiters[result.BatchID]
	if ok {
		delete(b.waiters, result.BatchID)
	}
	b.mu.Unlock()
	if ok {
		ch <- result
	}
	return ok
}

// send writes msg to the tab's agent; a missing or broken connection is ErrTabGone
func (b *Bridge) send(tabID string, msg Message) error {
	b.mu.RLock()
	ac, ok := b.conns[tabID]
	b.mu.RUnlock()
	if !ok {
		return interfaces.ErrTabGone
	}

	msg.TabID = tabID
	if err := ac.write(msg); err != nil {
		b.mu.Lock()
		if b.conns[tabID] == ac {
			delete(b.conns, tabID)
		}
		b.mu.Unlock()
		ac.conn.Close()
		return fmt.Errorf("%w: %v", interfaces.ErrTabGone, err)
	}
	return nil
}

func (b *Bridge) Reload(ctx context.Context, tabID string) error {
	return b.send(tabID, Message{Type: models.MessageReload})
}

func (b *Bridge) RunBatch(ctx context.Context, tabID string, cmd models.BatchCommand) error {
	return b.send(tabID, Message{Type: models.MessageRunBatch, BatchID: cmd.BatchID, Command: &cmd})
}

func (b *Bridge) SetBadge(ctx context.Context, tabID string, text string) error {
	return b.send(tabID, Message{Type: models.MessageBadge, Text: text})
}

func (b *Bridge) Notify(ctx context.Context, tabID string, message string) error {
	return b.send(tabID, Message{Type: models.MessageNotice, Text: message})
}

// Snapshot runs one batch outside watch mode and waits for its result
func (b *Bridge) Snapshot(ctx context.Context, tabID string, filters models.FilterConfig) (*models.BatchResult, error) {
	batchID := uuid.New().String()
	ch := make(chan *models.BatchResult, 1)

	b.mu.Lock()
	b.waiters[batchID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, batchID)
		b.mu.Unlock()
	}()

	cmd := models.BatchCommand{BatchID: batchID, TabID: tabID, Filters: filters, ScrollCount: filters.ScrollCount}
	if err := b.RunBatch(ctx, tabID, cmd); err != nil {
		return nil, err
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for tab %s: %w", tabID, ctx.Err())
	}
}

// Close disconnects every agent
func (b *Bridge) Close() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]*agentConn)
	b.mu.Unlock()

	for _, ac := range conns {
		ac.writeMu.Lock()
		_ = ac.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		ac.writeMu.Unlock()
		ac.conn.Close()
	}
}
