package node

import "testing"

func TestAttach_LinksPrev(t *testing.T) {
	a := New("source", "rtsp_source", KindSource, nil)
	b := New("detector", "face_detector", KindInference, nil)
	b.Attach(a)
	if b.Prev() != a {
		t.Fatal("expected b.Prev() == a")
	}
	if a.Prev() != nil {
		t.Fatal("expected head node to have no Prev()")
	}
}

func TestDetach_Idempotent(t *testing.T) {
	h := New("sink", "null_sink", KindDestination, nil)
	if err := h.Detach(); err != nil {
		t.Fatalf("first Detach: %v", err)
	}
	if err := h.Detach(); err != nil {
		t.Fatalf("second Detach: %v", err)
	}
}

func TestSetParam_LazyInitializesNilMap(t *testing.T) {
	h := New("detector", "face_detector", KindInference, nil)
	h.SetParam("threshold", 0.7)
	if h.Params["threshold"] != 0.7 {
		t.Fatalf("Params[threshold] = %v, want 0.7", h.Params["threshold"])
	}
}

func TestKindForType(t *testing.T) {
	cases := map[string]Kind{
		"rtsp_source":     KindSource,
		"face_detector":   KindInference,
		"tripwire":        KindAnalytics,
		"rtmp_sink":       KindDestination,
		"totally_unknown": "",
	}
	for typ, want := range cases {
		if got := KindForType(typ); got != want {
			t.Errorf("KindForType(%q) = %q, want %q", typ, got, want)
		}
	}
}

func TestKnownTypes_CoversEveryClassifiedType(t *testing.T) {
	for typ := range KnownTypes {
		if KindForType(typ) == "" {
			t.Errorf("KnownTypes contains %q but KindForType does not classify it", typ)
		}
	}
}
