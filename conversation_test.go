package amigos_test

import (
	"context"
	"testing"
	"time"

	amigos "github.com/Rapa0/amigos-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, fb *fakeBackend, userID string) *amigos.Session {
	t.Helper()
	s := fb.session(userID)
	require.NoError(t, s.Start(context.Background()))
	fb.awaitJoin()
	return s
}

func bodies(msgs []amigos.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestTranscriptSeedThenLive(t *testing.T) {
	fb := newFakeBackend(t)
	fb.history["user-b"] = []amigos.Message{
		{Sender: "user-a", Recipient: "user-b", Body: "hi", Kind: amigos.KindText},
	}
	s := startSession(t, fb, "user-a")

	conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
	require.NoError(t, err)
	require.Equal(t, []string{"hi"}, bodies(conv.Messages()))

	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "hello", Kind: amigos.KindText,
	})

	require.Eventually(t, func() bool { return len(conv.Messages()) == 2 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hi", "hello"}, bodies(conv.Messages()))
}

func TestPeerFilter(t *testing.T) {
	fb := newFakeBackend(t)
	fb.history["user-b"] = []amigos.Message{
		{Sender: "user-b", Recipient: "user-a", Body: "seed-1", Kind: amigos.KindText},
		{Sender: "user-a", Recipient: "user-b", Body: "seed-2", Kind: amigos.KindText},
	}
	s := startSession(t, fb, "user-a")

	conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
	require.NoError(t, err)

	// Three events for this pair, in both directions; three for strangers
	// sharing the same connection.
	events := []amigos.Message{
		{Sender: "user-b", Recipient: "user-a", Body: "in-1", Kind: amigos.KindText},
		{Sender: "user-c", Recipient: "user-a", Body: "other-1", Kind: amigos.KindText},
		{Sender: "user-a", Recipient: "user-c", Body: "other-2", Kind: amigos.KindText},
		{Sender: "user-a", Recipient: "user-b", Body: "echo-1", Kind: amigos.KindText},
		{Sender: "user-c", Recipient: "user-d", Body: "other-3", Kind: amigos.KindText},
		{Sender: "user-b", Recipient: "user-a", Body: "in-2", Kind: amigos.KindText},
	}
	for _, m := range events {
		fb.push(amigos.EventNewMessage, m)
	}

	// Transcript length = seed + events matching the pair filter.
	require.Eventually(t, func() bool { return len(conv.Messages()) == 5 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"seed-1", "seed-2", "in-1", "echo-1", "in-2"},
		bodies(conv.Messages()))
}

func TestLiveEventDuringHistoryFetch(t *testing.T) {
	fb := newFakeBackend(t)
	fb.history["user-b"] = []amigos.Message{
		{Sender: "user-a", Recipient: "user-b", Body: "hi", Kind: amigos.KindText},
	}
	fb.historyDelay = 400 * time.Millisecond
	s := startSession(t, fb, "user-a")

	type opened struct {
		conv *amigos.Conversation
		err  error
	}
	done := make(chan opened, 1)
	go func() {
		conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
		done <- opened{conv, err}
	}()

	// The subscription is live before the fetch; deliver while the history
	// response is still held open.
	time.Sleep(150 * time.Millisecond)
	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "mid-fetch", Kind: amigos.KindText,
	})

	var o opened
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the conversation to open")
	}
	require.NoError(t, o.err)

	// Buffered and replayed after the seed, exactly once.
	require.Eventually(t, func() bool { return len(o.conv.Messages()) == 2 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"hi", "mid-fetch"}, bodies(o.conv.Messages()))
}

func TestConversationCloseTwice(t *testing.T) {
	fb := newFakeBackend(t)
	s := startSession(t, fb, "user-a")

	conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
	require.NoError(t, err)

	conv.Close()
	conv.Close()

	// Deliveries after close must not mutate the torn-down transcript.
	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "late", Kind: amigos.KindText,
	})
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, conv.Messages())
}

func TestSequentialConversationsNoCrossTalk(t *testing.T) {
	fb := newFakeBackend(t)
	s := startSession(t, fb, "user-a")
	ctx := context.Background()

	convB, err := s.OpenConversation(ctx, amigos.Peer{ID: "user-b"})
	require.NoError(t, err)
	convC, err := s.OpenConversation(ctx, amigos.Peer{ID: "user-c"})
	require.NoError(t, err)

	// An event for the first conversation arriving while the second is open.
	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "for b", Kind: amigos.KindText,
	})

	// The global badge proves the event was delivered.
	require.Eventually(t, func() bool { return s.Notifications().Value() == 1 },
		5*time.Second, 10*time.Millisecond)

	assert.Empty(t, convC.Messages(), "event for another pair must not leak in")
	assert.Empty(t, convB.Messages(), "superseded conversation must stay closed")
}

func TestOpenConversationAfterHistoryFailure(t *testing.T) {
	fb := newFakeBackend(t)
	fb.historyStatus = 500
	s := startSession(t, fb, "user-a")

	conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
	require.Error(t, err)
	require.NotNil(t, conv, "conversation opens live-only on history failure")
	assert.Empty(t, conv.Messages())

	// The live subscription is not blocked by the failed fetch.
	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "still live", Kind: amigos.KindText,
	})
	require.Eventually(t, func() bool { return len(conv.Messages()) == 1 },
		5*time.Second, 10*time.Millisecond)
}

func TestOnAppendObserver(t *testing.T) {
	fb := newFakeBackend(t)
	s := startSession(t, fb, "user-a")

	conv, err := s.OpenConversation(context.Background(), amigos.Peer{ID: "user-b"})
	require.NoError(t, err)

	got := make(chan amigos.Message, 1)
	conv.OnAppend(func(m amigos.Message) { got <- m })

	fb.push(amigos.EventNewMessage, amigos.Message{
		Sender: "user-b", Recipient: "user-a", Body: "ping", Kind: amigos.KindText,
	})

	select {
	case m := <-got:
		assert.Equal(t, "ping", m.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("observer was not invoked")
	}
}
