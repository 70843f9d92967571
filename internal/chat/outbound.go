package chat

import (
	"github.com/google/uuid"

	"community-chat/internal/protocol"
)

// Outbound is one principal's live channel as the core sees it. The
// websocket client implements it; tests substitute buffered fakes.
type Outbound interface {
	ID() uuid.UUID
	Name() string
	// Send enqueues an event without blocking. It reports false when the
	// channel's buffer is full.
	Send(event protocol.ServerEvent) bool
}

// slowCloser is implemented by channels that can be force-closed when
// they stop draining their buffer.
type slowCloser interface {
	CloseSlow()
}
