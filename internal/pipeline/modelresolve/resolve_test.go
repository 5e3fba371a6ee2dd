package modelresolve

import (
	"os"
	"path/filepath"
	"testing"
)

func TestByPath_Absolute(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "yunet.onnx")
	if err := os.WriteFile(model, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	res, ok := ByPath(model)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if res.Path != model {
		t.Errorf("Path = %q, want %q", res.Path, model)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
}

func TestByPath_YunetAlternative(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "yunet.onnx")
	alt := filepath.Join(dir, "face_detection_yunet_2023mar.onnx")
	if err := os.WriteFile(alt, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	res, ok := ByPath(missing)
	if !ok {
		t.Fatal("expected alternative yunet model to be found")
	}
	if res.Path != alt {
		t.Errorf("Path = %q, want %q", res.Path, alt)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected exactly one warning, got %d", len(res.Warnings))
	}
}

func TestByPath_Missing_NoAlternative(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "something_else.onnx")
	if _, ok := ByPath(missing); ok {
		t.Fatal("expected resolution to fail")
	}
}

func TestByName_ExactBeatsContains(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CVEDIX_DATA_ROOT", dir)

	exact := filepath.Join(dir, "face_detector.onnx")
	contains := filepath.Join(dir, "face_detector_v2_extra.onnx")
	os.WriteFile(contains, []byte("x"), 0644)
	os.WriteFile(exact, []byte("x"), 0644)

	res, ok := ByName("face_detector")
	if !ok {
		t.Fatal("expected match")
	}
	if res.Path != exact {
		t.Errorf("Path = %q, want exact match %q", res.Path, exact)
	}
}

func TestByName_WithCategoryPrefix(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CVEDIX_DATA_ROOT", dir)

	model := filepath.Join(dir, "sface.onnx")
	os.WriteFile(model, []byte("x"), 0644)

	res, ok := ByName("face:sface")
	if !ok {
		t.Fatal("expected match")
	}
	if res.Path != model {
		t.Errorf("Path = %q, want %q", res.Path, model)
	}
}
