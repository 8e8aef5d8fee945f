package realtime

import (
	"context"
	"strings"
)

// Bus is the fan-out layer: an opaque-string-keyed broadcast primitive. Any
// number of sessions may register under a group key; Publish delivers to the
// snapshot of sessions registered at call time. Implementations must support
// concurrent registration changes and publishes; envelopes published to the
// same group in sequence are delivered to each subscriber in that order.
type Bus interface {
	GroupAdd(group string, s *Session)
	GroupDiscard(group string, s *Session)
	Publish(ctx context.Context, group string, env Envelope) error
}

// GroupKind extracts the namespace of a group key for metrics labels.
func GroupKind(group string) string {
	if idx := strings.IndexByte(group, ':'); idx > 0 {
		return group[:idx]
	}
	return "unknown"
}
