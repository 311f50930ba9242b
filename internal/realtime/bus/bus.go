package bus

import (
	"context"

	"github.com/lessonforge/lessonforge-backend/internal/sse"
)

// Bus fans version events out to every instance's SSE hub. Publish pushes a
// message to all subscribers; StartForwarder delivers inbound messages to
// the local hub until the context ends.
type Bus interface {
	Publish(ctx context.Context, msg sse.Message) error
	StartForwarder(ctx context.Context, onMsg func(m sse.Message)) error
	Close() error
}
