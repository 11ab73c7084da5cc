package activity

import (
	"context"
	"strings"
)

// DefaultChannel tags events from launchers configured without a channel.
const DefaultChannel = "arlaunch"

// Emitter stamps launch events with the launcher's channel before notifying
// its hooks. A nil Emitter drops everything.
type Emitter struct {
	hooks   Hooks
	channel string
}

// NewEmitter binds hooks to a channel; a blank channel means DefaultChannel.
func NewEmitter(channel string, hooks ...ActivityHook) *Emitter {
	if channel = strings.TrimSpace(channel); channel == "" {
		channel = DefaultChannel
	}
	return &Emitter{hooks: Hooks(hooks).Clone(), channel: channel}
}

// Enabled reports whether any hook would see an emitted event.
func (e *Emitter) Enabled() bool {
	return e != nil && len(e.hooks) > 0
}

// Channel returns the channel applied to unlabelled events.
func (e *Emitter) Channel() string {
	if e == nil {
		return DefaultChannel
	}
	return e.channel
}

// Emit notifies the hooks. Events that already name a channel keep it.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}
