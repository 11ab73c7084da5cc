package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEvent(t *testing.T) {
	meta := map[string]any{"viewer": "Scene Viewer"}
	got := NormalizeEvent(Event{
		Verb:       " ar.launcher.started ",
		ActorID:    " actor ",
		TenantID:   " tenant ",
		ObjectType: " ar_launcher ",
		ObjectID:   " 42 ",
		Channel:    " qr ",
		Metadata:   meta,
	})

	if got.Verb != VerbLaunchStarted || got.ObjectType != ObjectTypeLauncher || got.ObjectID != "42" {
		t.Fatalf("unexpected object fields: %+v", got)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" || got.Channel != "qr" {
		t.Fatalf("identity not trimmed: %+v", got)
	}
	if got.OccurredAt.IsZero() || got.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected a UTC timestamp, got %v", got.OccurredAt)
	}
	got.Metadata["viewer"] = "changed"
	if meta["viewer"] != "Scene Viewer" {
		t.Fatalf("metadata must be copied, caller map now %v", meta)
	}
	if NormalizeEvent(Event{Metadata: map[string]any{}}).Metadata != nil {
		t.Fatalf("empty metadata should normalize to nil")
	}
}

func TestEventComplete(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  bool
	}{
		{"complete", Event{Verb: VerbLaunchStarted, ObjectType: ObjectTypeLauncher, ObjectID: "l1"}, true},
		{"blank verb", Event{Verb: " ", ObjectType: ObjectTypeLauncher, ObjectID: "l1"}, false},
		{"no object type", Event{Verb: VerbLaunchStarted, ObjectID: "l1"}, false},
		{"no object id", Event{Verb: VerbLaunchStarted, ObjectType: ObjectTypeLauncher}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.Complete(); got != tc.want {
				t.Fatalf("Complete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHooksDropIncompleteEvents(t *testing.T) {
	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{Verb: VerbLaunchStarted}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected nothing captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyEveryHook(t *testing.T) {
	capture := &CaptureHook{}
	boom := errors.New("sink down")
	var sawCtx bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			sawCtx = ctx != nil
			return boom
		}),
		nil,
		HookFunc(func(context.Context, Event) error { panic("bad hook") }),
		capture,
	}

	var ctx context.Context
	err := hooks.Notify(ctx, Event{Verb: VerbLaunchStarted, ObjectType: ObjectTypeLauncher, ObjectID: "l1"})
	if !errors.Is(err, boom) || !errors.Is(err, ErrHookPanic) {
		t.Fatalf("expected joined sink and panic errors, got %v", err)
	}
	if !sawCtx {
		t.Fatalf("hooks must receive a non-nil context")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("later hooks must still run, got %d events", len(capture.Events))
	}
}

func TestHooksClone(t *testing.T) {
	if Hooks(nil).Clone() != nil || (Hooks{nil, nil}).Clone() != nil {
		t.Fatalf("expected empty hooks to clone to nil")
	}
	capture := &CaptureHook{}
	cloned := Hooks{nil, capture}.Clone()
	if len(cloned) != 1 || cloned[0] != capture {
		t.Fatalf("unexpected clone %v", cloned)
	}
}

func TestEmitter(t *testing.T) {
	event := Event{Verb: VerbLaunchInitialized, ObjectType: ObjectTypeLauncher, ObjectID: "l1"}

	if NewEmitter("web").Enabled() {
		t.Fatalf("emitter without hooks must be disabled")
	}

	capture := &CaptureHook{}
	emitter := NewEmitter(" ", capture)
	if !emitter.Enabled() || emitter.Channel() != DefaultChannel {
		t.Fatalf("expected enabled emitter on %q, got channel %q", DefaultChannel, emitter.Channel())
	}
	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	labelled := event
	labelled.Channel = "qr"
	labelled.OccurredAt = at
	if err := emitter.Emit(context.Background(), labelled); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if capture.Events[0].Channel != DefaultChannel {
		t.Fatalf("expected default channel, got %q", capture.Events[0].Channel)
	}
	if capture.Events[1].Channel != "qr" || !capture.Events[1].OccurredAt.Equal(at) {
		t.Fatalf("explicit channel and time must survive, got %+v", capture.Events[1])
	}

	var nilEmitter *Emitter
	if nilEmitter.Enabled() || nilEmitter.Emit(context.Background(), event) != nil || nilEmitter.Channel() != DefaultChannel {
		t.Fatalf("nil emitter must be a silent no-op")
	}
}

func TestCaptureHookFind(t *testing.T) {
	capture := &CaptureHook{Err: errors.New("recorded anyway")}
	hooks := Hooks{capture}
	_ = hooks.Notify(context.Background(), BuildLaunchInitializedEvent(LaunchEventInput{LaunchID: "l1"}))
	_ = hooks.Notify(context.Background(), BuildLaunchStartedEvent(LaunchEventInput{LaunchID: "l1", Viewer: "Quick Look"}))

	started, ok := capture.Find(VerbLaunchStarted)
	if !ok || started.Metadata["viewer"] != "Quick Look" {
		t.Fatalf("expected started event, got %+v ok=%v", started, ok)
	}
	if _, ok := capture.Find("ar.launcher.missing"); ok {
		t.Fatalf("unexpected match")
	}
}
