package amigos

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Session binds an authenticated identity to one live channel and the
// process-wide notification counter. The UI layer opens it after login and
// closes it on logout; every conversation screen shares its connection.
type Session struct {
	api    *Client
	rt     *RealtimeClient
	badge  *NotificationCounter
	userID string
	log    *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	subs    []Subscription
	conv    *Conversation
}

// NewSession creates a session for the given user. config may be nil for
// defaults.
func NewSession(api *Client, userID string, config *RealtimeConfig) *Session {
	return &Session{
		api:    api,
		rt:     NewRealtime(api, config),
		badge:  NewNotificationCounter(),
		userID: userID,
		log:    api.Logger(),
	}
}

// Start opens the live channel, registers the global notification listeners
// and reseeds the badge counter from the server-authoritative pending
// request count. A reseed failure is logged and swallowed: the counter stays
// at zero and live events still accumulate.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.rt.Connect(ctx, s.userID); err != nil {
		return fmt.Errorf("open live channel: %w", err)
	}

	// One bump per live event, no matter which conversation, if any, is open.
	s.mu.Lock()
	s.subs = append(s.subs,
		s.rt.OnNewMessage(func(Message) { s.badge.Bump() }),
		s.rt.OnNewNotification(func() { s.badge.Bump() }),
	)
	s.mu.Unlock()

	reqs, err := s.api.Requests(ctx)
	if err != nil {
		s.log.Warn("notification reseed failed", zap.Error(err))
		return nil
	}
	s.badge.Reseed(len(reqs))
	return nil
}

// OpenConversation opens the live view of the 1:1 chat with peer: it
// subscribes to the channel first, then fetches the historical transcript
// and seeds it ahead of anything that arrived in between. At most one
// conversation is active per session; opening a new one closes the previous.
//
// On a history-fetch failure the conversation still opens, live-only with an
// empty transcript, and the error is returned alongside it.
func (s *Session) OpenConversation(ctx context.Context, peer Peer) (*Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session closed")
	}
	prev := s.conv
	conv := newConversation(s.rt, s.api, s.userID, peer)
	s.conv = conv
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	conv.subscribe()

	history, err := s.api.Messages(ctx, peer.ID)
	if err != nil {
		s.log.Warn("history fetch failed", zap.String("peer", peer.ID), zap.Error(err))
		conv.seed(nil)
		return conv, fmt.Errorf("fetch transcript: %w", err)
	}
	conv.seed(history)
	return conv, nil
}

// CloseConversation closes the active conversation, if any.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	conv := s.conv
	s.conv = nil
	s.mu.Unlock()
	if conv != nil {
		conv.Close()
	}
}

// Notifications returns the session's badge counter.
func (s *Session) Notifications() *NotificationCounter {
	return s.badge
}

// Realtime returns the session's live channel.
func (s *Session) Realtime() *RealtimeClient {
	return s.rt
}

// UserID returns the authenticated user the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Close tears the session down: the active conversation, the global
// listeners and the live channel. Pending sends after Close are dropped.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conv := s.conv
	s.conv = nil
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	if conv != nil {
		conv.Close()
	}
	for _, sub := range subs {
		s.rt.Off(sub)
	}
	return s.rt.Close()
}
