// Package usersink records launch events through a go-users ActivitySink.
package usersink

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook is an activity.ActivityHook writing to Sink. Verbs, when set, limits
// the events forwarded.
type Hook struct {
	Sink  usertypes.ActivitySink
	Verbs []string
}

// Notify logs event as an ActivityRecord.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil || !event.Complete() {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if len(h.Verbs) > 0 && !slices.Contains(h.Verbs, event.Verb) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, Record(event))
}

// Record converts a normalized event. Identity fields that are not UUIDs
// become uuid.Nil; a missing actor is taken to be the user. A launch id that
// parses as a UUID is added to the data as "launch_uuid".
func Record(event activity.Event) usertypes.ActivityRecord {
	actor := event.ActorID
	if actor == "" {
		actor = event.UserID
	}

	data := maps.Clone(event.Metadata)
	if launchID, ok := event.Metadata["launch_id"].(string); ok {
		if id := parseUUID(launchID); id != uuid.Nil {
			if data == nil {
				data = map[string]any{}
			}
			data["launch_uuid"] = id
		}
	}

	return usertypes.ActivityRecord{
		ActorID:    parseUUID(actor),
		UserID:     parseUUID(event.UserID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
