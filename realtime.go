package amigos

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the live channel.
type RealtimeConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	WriteTimeout         time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// EventHandler is the callback for inbound realtime events. Handlers run
// synchronously on the read loop, one event at a time, in receipt order;
// they must not block.
type EventHandler func(event string, payload json.RawMessage)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	event string
	id    uint64
}

type eventDispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]EventHandler

	onConnected    []func()
	onDisconnected []func(reason string)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{handlers: make(map[string]map[uint64]EventHandler)}
}

func (d *eventDispatcher) subscribe(event string, h EventHandler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[uint64]EventHandler)
	}
	d.handlers[event][d.nextID] = h
	return Subscription{event: event, id: d.nextID}
}

func (d *eventDispatcher) unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers[sub.event], sub.id)
}

func (d *eventDispatcher) dispatch(env Envelope) {
	d.mu.RLock()
	hs := make([]EventHandler, 0, len(d.handlers[env.Type]))
	for _, h := range d.handlers[env.Type] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(env.Type, env.Payload)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	hs := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range hs {
		go h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	hs := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range hs {
		go h(reason)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient owns the single live channel of an authenticated session.
// At most one connection is open at a time; connecting as a different user
// supersedes the previous connection. All conversation listeners and the
// global notification listener share this one channel, each filtering the
// same event stream independently.
type RealtimeClient struct {
	url    string
	config *RealtimeConfig
	log    *zap.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	userID           string
	cancelFn         context.CancelFunc

	dispatcher *eventDispatcher
	recon      *reconnector
}

// NewRealtime creates the live channel client for an API client. The channel
// endpoint lives at the backend root, not under /api.
func NewRealtime(c *Client, config *RealtimeConfig) *RealtimeClient {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	base := strings.TrimSuffix(c.BaseURL(), "/api")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)

	return &RealtimeClient{
		url:        base + "/ws",
		config:     &cfg,
		log:        c.Logger(),
		state:      StateDisconnected,
		dispatcher: newEventDispatcher(),
		recon:      newReconnector(&cfg),
	}
}

// On registers a handler for an inbound event and returns its subscription.
func (rt *RealtimeClient) On(event string, h EventHandler) Subscription {
	return rt.dispatcher.subscribe(event, h)
}

// Off removes a previously registered handler. Removing an already removed
// subscription is a no-op.
func (rt *RealtimeClient) Off(sub Subscription) {
	rt.dispatcher.unsubscribe(sub)
}

// OnNewMessage registers a typed handler for incoming chat messages.
func (rt *RealtimeClient) OnNewMessage(h func(Message)) Subscription {
	return rt.On(EventNewMessage, func(_ string, payload json.RawMessage) {
		var m Message
		if json.Unmarshal(payload, &m) == nil {
			h(m)
		}
	})
}

// OnNewNotification registers a typed handler for match notifications. The
// event carries no payload beyond the trigger itself.
func (rt *RealtimeClient) OnNewNotification(h func()) Subscription {
	return rt.On(EventNewNotification, func(string, json.RawMessage) { h() })
}

// OnConnected registers a handler for the connected meta-event.
func (rt *RealtimeClient) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *RealtimeClient) OnDisconnected(h func(reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// UserID returns the user the channel is currently bound to.
func (rt *RealtimeClient) UserID() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.userID
}

// Connect opens the channel for userID and sends the join handshake.
// Connecting while already open for the same user is a no-op; connecting as
// a different user tears the old channel down first.
func (rt *RealtimeClient) Connect(ctx context.Context, userID string) error {
	rt.mu.Lock()
	if rt.state != StateDisconnected {
		if rt.userID == userID {
			// Open, opening, or a reconnect is pending for this user already.
			rt.mu.Unlock()
			return nil
		}
		rt.mu.Unlock()
		rt.Close()
		rt.mu.Lock()
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.userID = userID
	rt.mu.Unlock()

	return rt.dial(ctx)
}

func (rt *RealtimeClient) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, rt.url, nil)
	if err != nil {
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	rt.mu.Lock()
	userID := rt.userID
	rt.mu.Unlock()

	// Join handshake before anything else, so the server routes our events.
	join, _ := json.Marshal(JoinPayload{UserID: userID})
	data, _ := json.Marshal(Envelope{Type: EventJoin, Payload: join, ID: uuid.NewString()})
	wctx, wcancel := context.WithTimeout(ctx, rt.config.WriteTimeout)
	err = conn.Write(wctx, websocket.MessageText, data)
	wcancel()
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("join handshake: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	if rt.cancelFn != nil {
		rt.cancelFn()
	}
	old := rt.conn
	rt.conn = conn
	rt.state = StateConnected
	rt.cancelFn = cancel
	rt.mu.Unlock()
	if old != nil {
		// A racing dial lost; exactly one connection survives.
		old.Close(websocket.StatusNormalClosure, "superseded")
	}
	rt.recon.markConnected()

	rt.log.Debug("realtime connected", zap.String("userId", userID))
	rt.dispatcher.emitConnected()

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx, conn)

	return nil
}

// Close releases the channel. Safe to call when already closed.
func (rt *RealtimeClient) Close() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Emit publishes an event on the channel, fire and forget; no acknowledgment
// is awaited. Each command carries a client-generated id.
func (rt *RealtimeClient) Emit(event string, payload interface{}) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	data, err := json.Marshal(Envelope{Type: event, Payload: body, ID: uuid.NewString()})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (rt *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose || rt.conn != conn
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()

			rt.log.Warn("realtime connection lost", zap.Error(err))
			rt.dispatcher.emitDisconnected(err.Error())

			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect()
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			rt.log.Debug("dropping malformed realtime frame")
			continue
		}
		rt.dispatcher.dispatch(env)
	}
}

func (rt *RealtimeClient) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (rt *RealtimeClient) scheduleReconnect() {
	delay := rt.recon.nextDelay()
	rt.mu.Lock()
	rt.state = StateReconnecting
	rt.mu.Unlock()

	rt.log.Debug("realtime reconnecting",
		zap.Int("attempt", rt.recon.attempt), zap.Duration("delay", delay))

	time.Sleep(delay)

	rt.mu.Lock()
	// The client may have been closed or re-connected while we slept; only
	// the goroutine that claims the connecting state gets to dial.
	if rt.intentionalClose || rt.state != StateReconnecting {
		rt.mu.Unlock()
		return
	}
	rt.state = StateConnecting
	rt.mu.Unlock()

	// dial re-sends the join handshake, so the server re-subscribes us.
	if err := rt.dial(context.Background()); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect()
			return
		}
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
	}
}
