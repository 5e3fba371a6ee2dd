package workerproc

import (
	"testing"
	"time"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/pipeline"
)

func faceSolution() *domain.Solution {
	return &domain.Solution{
		SolutionID: "face_detection",
		Nodes: []domain.NodeDescriptor{
			{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
			{NodeType: "face_detector", NameTemplate: "detector_{instanceId}", Parameters: map[string]string{"threshold": "0.7"}},
			{NodeType: "null_sink", NameTemplate: "sink_{instanceId}"},
		},
	}
}

func TestWorker_BuildInitialAndStartStop(t *testing.T) {
	w := New("inst-1", nil)
	req := pipeline.Request{InstanceID: "inst-1", RTSPURL: "rtsp://cam/1"}
	if err := w.BuildInitial(faceSolution(), req); err != nil {
		t.Fatalf("BuildInitial: %v", err)
	}
	if w.State() != "created" {
		t.Fatalf("State = %q, want created", w.State())
	}

	typ, resp := w.handleStart()
	if typ != domain.MsgStartInstanceResponse {
		t.Fatalf("type = %v", typ)
	}
	payload, ok := resp.(domain.ResponsePayload)
	if !ok || !payload.Success {
		t.Fatalf("start response = %+v", resp)
	}
	if w.State() != "running" {
		t.Fatalf("State = %q, want running", w.State())
	}

	typ, resp = w.handleStop()
	if typ != domain.MsgStopInstanceResponse {
		t.Fatalf("type = %v", typ)
	}
	if payload, ok := resp.(domain.ResponsePayload); !ok || !payload.Success {
		t.Fatalf("stop response = %+v", resp)
	}
	if w.State() != "stopped" {
		t.Fatalf("State = %q, want stopped", w.State())
	}
}

func TestWorker_ApplyInPlaceDoesNotRebuild(t *testing.T) {
	w := New("inst-1", nil)
	req := pipeline.Request{InstanceID: "inst-1", RTSPURL: "rtsp://cam/1"}
	if err := w.BuildInitial(faceSolution(), req); err != nil {
		t.Fatalf("BuildInitial: %v", err)
	}
	w.pipelineMu.Lock()
	before := w.nodes
	w.pipelineMu.Unlock()

	typ, resp := w.handleUpdate([]byte(`{"detectionSensitivity":"High"}`))
	if typ != domain.MsgUpdateInstanceResponse {
		t.Fatalf("type = %v", typ)
	}
	if payload, ok := resp.(domain.ResponsePayload); !ok || !payload.Success {
		t.Fatalf("update response = %+v", resp)
	}

	w.pipelineMu.Lock()
	after := w.nodes
	w.pipelineMu.Unlock()
	if len(before) != len(after) || &before[0] != &after[0] && before[0] != after[0] {
		t.Fatalf("in-place update should not replace the node slice")
	}
}

func TestWorker_FPSWindowRollsOff(t *testing.T) {
	w := New("inst-1", nil)
	// Seed a frame older than the one-second window.
	w.fpsMu.Lock()
	w.fpsWindow = []time.Time{time.Now().Add(-2 * time.Second)}
	w.fpsMu.Unlock()
	w.RecordFrame(&Frame{Data: []byte("a")})
	stats := w.statistics()
	if stats["fps"].(int) < 1 {
		t.Fatalf("expected at least one frame recorded, got %v", stats["fps"])
	}
	if stats["fps"].(int) != 1 {
		t.Fatalf("fps = %v, want 1 once the old frame rolls off", stats["fps"])
	}
}

func TestRequiresRebuild(t *testing.T) {
	cases := []struct {
		u    update
		want bool
	}{
		{update{DetectionSensitivity: "High"}, false},
		{update{FrameRateLimit: 10}, false},
		{update{SourceURI: "rtsp://new"}, true},
		{update{Solution: "object_detection"}, true},
	}
	for _, c := range cases {
		if got := requiresRebuild(c.u); got != c.want {
			t.Errorf("requiresRebuild(%+v) = %v, want %v", c.u, got, c.want)
		}
	}
}
