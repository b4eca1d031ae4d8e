package analytics

import (
	"github.com/rs/zerolog"

	"reputationkit/core"
)

// BridgeHook fans one event stream out to several hooks. A hook that
// panics is logged and skipped; the remaining hooks still see the event.
type BridgeHook struct {
	hooks []Hook
	log   zerolog.Logger
}

func NewBridge(hooks ...Hook) *BridgeHook {
	return &BridgeHook{hooks: hooks, log: zerolog.Nop()}
}

// WithLogger sets the logger used for hook panics.
func (b *BridgeHook) WithLogger(l zerolog.Logger) *BridgeHook {
	b.log = l
	return b
}

// Len is the number of bridged hooks.
func (b *BridgeHook) Len() int { return len(b.hooks) }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		b.deliver(h, e)
	}
}

func (b *BridgeHook) deliver(h Hook, e core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event_type", string(e.Type)).Str("event_id", e.ID).Msg("analytics hook panicked")
		}
	}()
	h.OnEvent(e)
}
