package amigos

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ImageAsset is a local image selected for sending.
type ImageAsset struct {
	FileName string
	Mime     string
	Data     []byte
}

// SendText emits one text message to the peer. Whitespace-only input is
// silently ignored. The call returns immediately; no acknowledgment is
// awaited, and the message becomes visible in the transcript only when the
// server echoes it back over the live channel. Transport failures are logged
// and swallowed; the transport's own reconnect logic is relied upon.
func (cv *Conversation) SendText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	cv.emit(text, KindText)
}

// SendImage uploads the asset, then emits one image message with the
// returned URL. If caption is non-blank a second, independent text message
// follows; the two are not atomic and may interleave with concurrent events
// from the peer. An upload failure aborts the whole operation: the error is
// returned and nothing is emitted.
func (cv *Conversation) SendImage(ctx context.Context, asset ImageAsset, caption string) error {
	url, err := cv.api.Upload(ctx, asset.FileName, asset.Mime, asset.Data)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	cv.emit(url, KindImage)
	if strings.TrimSpace(caption) != "" {
		cv.emit(caption, KindText)
	}
	return nil
}

func (cv *Conversation) emit(body, kind string) {
	cv.mu.Lock()
	closed := cv.closed
	cv.mu.Unlock()
	if closed {
		cv.log.Debug("dropping send on closed conversation", zap.String("peer", cv.peer.ID))
		return
	}

	msg := Message{
		Sender:    cv.localID,
		Recipient: cv.peer.ID,
		Body:      body,
		Kind:      kind,
	}
	if err := cv.rt.Emit(EventSendMessage, msg); err != nil {
		cv.log.Warn("send failed", zap.String("kind", kind), zap.Error(err))
	}
}
