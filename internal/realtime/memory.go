package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/metrics"
)

// MemoryBus is the in-process fan-out layer. It is sufficient whenever every
// websocket session lives in a single process; clustered deployments wrap it
// with RedisBus so publishes reach every node.
type MemoryBus struct {
	mu     sync.RWMutex
	groups map[string]map[*Session]struct{}
	log    *zap.Logger
}

// NewMemoryBus constructs an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		groups: make(map[string]map[*Session]struct{}),
		log:    logger.WithModule("realtime.bus"),
	}
}

// GroupAdd registers a session under the supplied group key.
func (b *MemoryBus) GroupAdd(group string, s *Session) {
	if group == "" || s == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.groups[group] == nil {
		b.groups[group] = make(map[*Session]struct{})
	}
	b.groups[group][s] = struct{}{}
}

// GroupDiscard removes a session from a group, dropping the group once empty.
func (b *MemoryBus) GroupDiscard(group string, s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if members := b.groups[group]; members != nil {
		delete(members, s)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
}

// Publish delivers the envelope to every session registered under the group at
// call time. Sessions joining mid-publish may or may not receive it.
func (b *MemoryBus) Publish(ctx context.Context, group string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := b.groups[group]
	if len(members) == 0 {
		return nil
	}

	metrics.PublishedEnvelopes.WithLabelValues(GroupKind(group)).Inc()

	for session := range members {
		if !session.enqueue(env) {
			b.log.Warn("dropping backpressured session",
				zap.String("group", group),
				zap.String("user_id", session.UserID()),
			)
			metrics.DroppedEnvelopes.Inc()
			// Tear down asynchronously: close() re-enters the bus lock.
			go session.Close()
		}
	}
	return nil
}

// MemberCount reports how many sessions are registered under a group.
func (b *MemoryBus) MemberCount(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.groups[group])
}
