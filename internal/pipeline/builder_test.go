package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func faceSolution() *domain.Solution {
	return &domain.Solution{
		SolutionID: "face_detection",
		Nodes: []domain.NodeDescriptor{
			{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
			{NodeType: "face_detector", NameTemplate: "detector_{instanceId}", Parameters: map[string]string{
				"modelPath": "${MODEL_PATH}",
				"threshold": "${detectionSensitivity}",
			}},
			{NodeType: "null_sink", NameTemplate: "sink_{instanceId}"},
		},
	}
}

func TestBuild_HappyPath(t *testing.T) {
	req := Request{
		InstanceID:           "inst-11111111-1111-1111-1111-111111111111",
		DetectionSensitivity: domain.SensitivityHigh,
		RTSPURL:              "rtsp://x/y",
	}

	result, err := Build(faceSolution(), req, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(result.Nodes))
	}
	if result.Nodes[1].Prev() != result.Nodes[0] {
		t.Fatal("expected detector attached to source")
	}
	if result.Nodes[2].Prev() != result.Nodes[1] {
		t.Fatal("expected sink attached to detector")
	}
	threshold := result.Nodes[1].Params["threshold"]
	if threshold != 0.9 {
		t.Errorf("threshold = %v, want 0.9 (High sensitivity)", threshold)
	}
}

func TestBuild_UnknownNodeType(t *testing.T) {
	sol := &domain.Solution{
		SolutionID: "bad",
		Nodes:      []domain.NodeDescriptor{{NodeType: "not_a_real_type", NameTemplate: "n_{instanceId}"}},
	}
	_, err := Build(sol, Request{InstanceID: "x-111111111111111111111111111111111"}, nil)
	if domain.KindOf(err) != domain.KindPipeline {
		t.Fatalf("expected KindPipeline error, got %v", err)
	}
}

func TestBuild_EmptyRequiredURLFails(t *testing.T) {
	sol := &domain.Solution{
		SolutionID: "bad",
		Nodes:      []domain.NodeDescriptor{{NodeType: "rtsp_source", NameTemplate: "n_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}}},
	}
	_, err := Build(sol, Request{InstanceID: "x-111111111111111111111111111111111", RTSPURL: ""}, nil)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected KindValidation error, got %v", err)
	}
}

func TestBuild_FailureAfterPartialBuildReturnsError(t *testing.T) {
	sol := &domain.Solution{
		SolutionID: "bad",
		Nodes: []domain.NodeDescriptor{
			{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
			{NodeType: "unknown_type", NameTemplate: "bad_{instanceId}"},
		},
	}
	_, err := Build(sol, Request{InstanceID: "x-111111111111111111111111111111111", RTSPURL: "rtsp://x"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSensitivityThreshold(t *testing.T) {
	tests := []struct {
		s    domain.Sensitivity
		want float64
	}{
		{domain.SensitivityLow, 0.5},
		{domain.SensitivityMedium, 0.7},
		{domain.SensitivityHigh, 0.9},
		{domain.Sensitivity(""), 0.7},
	}
	for _, tt := range tests {
		if got := sensitivityThreshold(tt.s); got != tt.want {
			t.Errorf("sensitivityThreshold(%v) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestClampResizeRatio(t *testing.T) {
	tests := []struct {
		in        float64
		want      float64
		wantWarn  bool
	}{
		{0, 0.1, true},
		{-5, 0.1, true},
		{1.5, 1.0, true},
		{0.5, 0.5, false},
		{1.0, 1.0, false},
	}
	for _, tt := range tests {
		got, warn := clampResizeRatio(tt.in)
		if got != tt.want || warn != tt.wantWarn {
			t.Errorf("clampResizeRatio(%v) = (%v,%v), want (%v,%v)", tt.in, got, warn, tt.want, tt.wantWarn)
		}
	}
}

func TestDetectInputType(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"rtsp://cam/stream", "rtsp"},
		{"rtmp://server/app", "rtmp"},
		{"http://host/stream.m3u8", "hls"},
		{"http://host/video.mp4", "http"},
		{"/local/path.mp4", "file"},
	}
	for _, tt := range tests {
		if got := DetectInputType(tt.uri); got != tt.want {
			t.Errorf("DetectInputType(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestBuild_ModelPathSubstitution(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "models", "face")
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		t.Fatal(err)
	}
	modelPath := filepath.Join(modelDir, "yunet.onnx")
	if err := os.WriteFile(modelPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	req := Request{
		InstanceID: "inst-11111111-1111-1111-1111-111111111111",
		RTSPURL:    "rtsp://x/y",
		AdditionalParams: map[string]string{
			"MODEL_PATH": modelPath,
		},
	}

	result, err := Build(faceSolution(), req, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := result.Nodes[1].Params["modelPath"]
	if got != modelPath {
		t.Errorf("modelPath = %v, want %v", got, modelPath)
	}
}
