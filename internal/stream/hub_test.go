package stream

import (
	"testing"

	"github.com/maumtalk/counseling-server/internal/chat"
)

func TestPublishExchangeWithoutSubscriberIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	// Must not panic or block when nobody is listening.
	hub.PublishExchange("user-1", chat.ExchangeEvent{SessionID: "sess-1"})
}

func TestUnregisterUnknownConnectionIsSafe(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	hub.Unregister("user-1", "sess-1", nil)
}
