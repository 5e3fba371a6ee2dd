package eventbus

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	p := Noop()
	if err := p.Publish(context.Background(), Event{Type: EventInstanceCreated, InstanceID: "x"}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}

func TestMarshalStampsTimestamp(t *testing.T) {
	body, err := marshal(Event{Type: EventInstanceCreated, InstanceID: "abc"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty payload")
	}
	var decoded Event
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Timestamp.IsZero() {
		t.Fatal("expected marshal to stamp a non-zero Timestamp")
	}
}
