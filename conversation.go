package amigos

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Conversation is the live view of one 1:1 chat. It reconciles the fetched
// history with the connection's event stream into a single ordered,
// append-only transcript: the transcript is seeded with the historical
// messages (oldest first) and live events that pass the peer filter are
// appended in arrival order. Live events that arrive while the history fetch
// is still in flight are buffered and replayed right after the seed, so the
// earliest entries can neither be lost nor reordered.
//
// There is no deduplication key: a message the local user sends appears in
// the transcript only through its live echo, exactly once per delivery.
type Conversation struct {
	localID string
	peer    Peer
	rt      *RealtimeClient
	api     *Client
	log     *zap.Logger

	mu       sync.Mutex
	seeded   bool
	closed   bool
	pending  []Message // live events buffered until the history seed lands
	messages []Message
	sub      Subscription
	onAppend func(Message)
}

func newConversation(rt *RealtimeClient, api *Client, localID string, peer Peer) *Conversation {
	return &Conversation{localID: localID, peer: peer, rt: rt, api: api, log: api.Logger()}
}

// subscribe registers the live filter on the shared channel. Must be called
// before the history fetch is issued.
func (cv *Conversation) subscribe() {
	cv.sub = cv.rt.On(EventNewMessage, func(_ string, payload json.RawMessage) {
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			cv.log.Debug("dropping malformed message event", zap.Error(err))
			return
		}
		cv.accept(m)
	})
}

// accept appends a live event iff it belongs to this conversation's peer
// pair. Events for other conversations sharing the connection are ignored.
func (cv *Conversation) accept(m Message) {
	if !cv.matches(m) {
		return
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.closed {
		return
	}
	if !cv.seeded {
		cv.pending = append(cv.pending, m)
		return
	}
	cv.messages = append(cv.messages, m)
	if cv.onAppend != nil {
		cv.onAppend(m)
	}
}

func (cv *Conversation) matches(m Message) bool {
	return (m.Sender == cv.peer.ID && m.Recipient == cv.localID) ||
		(m.Sender == cv.localID && m.Recipient == cv.peer.ID)
}

// seed installs the fetched history ahead of any buffered live events and
// switches the conversation to direct append mode. Called once; a seed
// arriving after Close is discarded.
func (cv *Conversation) seed(history []Message) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.closed || cv.seeded {
		return
	}
	cv.messages = append(cv.messages, history...)
	cv.messages = append(cv.messages, cv.pending...)
	cv.pending = nil
	cv.seeded = true
}

// Peer returns the other party of the conversation.
func (cv *Conversation) Peer() Peer {
	return cv.peer
}

// Messages returns a snapshot of the transcript, oldest first.
func (cv *Conversation) Messages() []Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]Message, len(cv.messages))
	copy(out, cv.messages)
	return out
}

// OnAppend sets an observer invoked for every message appended through the
// live path. It runs on the realtime read loop and must not block.
func (cv *Conversation) OnAppend(h func(Message)) {
	cv.mu.Lock()
	cv.onAppend = h
	cv.mu.Unlock()
}

// Close unsubscribes the conversation from the live channel and discards any
// delivery that completes afterwards. Safe to call more than once.
func (cv *Conversation) Close() {
	cv.mu.Lock()
	if cv.closed {
		cv.mu.Unlock()
		return
	}
	cv.closed = true
	cv.mu.Unlock()

	cv.rt.Off(cv.sub)
}
