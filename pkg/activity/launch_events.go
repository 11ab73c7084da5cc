package activity

import (
	"maps"
	"strings"
	"time"
)

const (
	VerbLaunchInitialized = "ar.launcher.initialized"
	VerbLaunchStarted     = "ar.launcher.started"

	// ObjectTypeLauncher is the object type of every launch event.
	ObjectTypeLauncher = "ar_launcher"
)

// LaunchEventInput is the flat record a launcher reports at its two
// analytics points.
type LaunchEventInput struct {
	LaunchID    string
	TargetKind  string
	TargetID    string
	VariationID string
	Viewer      string
	ModelURL    string
	Anchor      string
	Platform    string
	Browser     string

	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildLaunchInitializedEvent builds the event reported after a successful Init.
func BuildLaunchInitializedEvent(input LaunchEventInput) Event {
	return buildLaunchEvent(VerbLaunchInitialized, input)
}

// BuildLaunchStartedEvent builds the event reported at Start.
func BuildLaunchStartedEvent(input LaunchEventInput) Event {
	return buildLaunchEvent(VerbLaunchStarted, input)
}

func buildLaunchEvent(verb string, input LaunchEventInput) Event {
	metadata := maps.Clone(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	setMeta(metadata, "launch_id", input.LaunchID)
	setMeta(metadata, "target_kind", input.TargetKind)
	setMeta(metadata, "target_id", input.TargetID)
	setMeta(metadata, "variation_id", input.VariationID)
	setMeta(metadata, "viewer", input.Viewer)
	setMeta(metadata, "model_url", input.ModelURL)
	setMeta(metadata, "anchor", input.Anchor)
	setMeta(metadata, "platform", input.Platform)
	setMeta(metadata, "browser", input.Browser)

	objectID := strings.TrimSpace(input.LaunchID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.TargetID)
	}
	if objectID == "" {
		objectID = ObjectTypeLauncher
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypeLauncher,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func setMeta(meta map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		meta[key] = value
	}
}
