package services

import (
	"context"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/realtime/bus"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// VersionNotifier pushes version-ledger events to subscribed editors.
type VersionNotifier interface {
	VersionSaved(ctx context.Context, version *types.DocumentVersion)
	RemoteDown(ctx context.Context, documentID, documentType string)
}

type sseNotifier struct {
	log *logger.Logger
	hub *sse.Hub
	bus bus.Bus
}

// NewSSENotifier publishes through the cross-instance bus when one is
// configured (the forwarder feeds each hub), otherwise straight to the
// local hub.
func NewSSENotifier(log *logger.Logger, hub *sse.Hub, eventBus bus.Bus) VersionNotifier {
	return &sseNotifier{
		log: log.With("service", "SSENotifier"),
		hub: hub,
		bus: eventBus,
	}
}

func (n *sseNotifier) publish(ctx context.Context, msg sse.Message) {
	if n.bus != nil {
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.log.Warn("Bus publish failed, falling back to local hub", "error", err)
		} else {
			return
		}
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func (n *sseNotifier) VersionSaved(ctx context.Context, version *types.DocumentVersion) {
	if version == nil {
		return
	}
	event := sse.EventVersionCreated
	if version.ChangeType == types.ChangeTypeRestore {
		event = sse.EventVersionRestored
	}
	n.publish(ctx, sse.Message{
		Channel: sse.DocumentChannel(version.DocumentType, version.DocumentID),
		Event:   event,
		Data:    version,
	})
}

func (n *sseNotifier) RemoteDown(ctx context.Context, documentID, documentType string) {
	n.publish(ctx, sse.Message{
		Channel: sse.DocumentChannel(documentType, documentID),
		Event:   sse.EventRemoteStoreDown,
	})
}
