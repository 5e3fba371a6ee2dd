// Package node defines the opaque processing-node handle the Pipeline
// Builder constructs and attaches. Nodes are opaque to the core except
// for lifecycle methods and parameters (§1 Non-goals) — this package
// stands in for the inference/codec SDK, which is out of scope.
package node

import "sync"

// Kind is the broad category of a node in the source -> inference ->
// analytics -> destination chain.
type Kind string

const (
	KindSource      Kind = "source"
	KindInference   Kind = "inference"
	KindAnalytics   Kind = "analytics"
	KindDestination Kind = "destination"
)

// Handle is one attached node in a built pipeline.
type Handle struct {
	mu sync.Mutex

	Name   string
	Type   string
	Kind   Kind
	Params map[string]interface{}

	prev    *Handle
	started bool
	detached bool
}

// New constructs a detached node handle of the given type/kind.
func New(name, typ string, kind Kind, params map[string]interface{}) *Handle {
	return &Handle{Name: name, Type: typ, Kind: kind, Params: params}
}

// Attach links h after prev in the pipeline chain.
func (h *Handle) Attach(prev *Handle) {
	h.prev = prev
}

// Prev returns the node this one is attached to, or nil for the head.
func (h *Handle) Prev() *Handle { return h.prev }

// Start marks the node active. In-process/subprocess backends drive the
// actual SDK node lifecycle through this same call shape; the concrete
// processing is out of scope here.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
	return nil
}

// Detach tears the node down. Safe to call multiple times.
func (h *Handle) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detached {
		return nil
	}
	h.detached = true
	h.started = false
	return nil
}

// SetParam mutates a single parameter in place, used for in-place hot
// config application (§4.F) that does not require a full rebuild.
func (h *Handle) SetParam(key string, value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Params == nil {
		h.Params = make(map[string]interface{})
	}
	h.Params[key] = value
}

// KindForType maps a node-type tag to its broad Kind; used by the
// builder to classify nodes named by a solution template.
func KindForType(nodeType string) Kind {
	switch nodeType {
	case "rtsp_source", "rtmp_source", "hls_source", "http_source", "file_source":
		return KindSource
	case "face_detector", "object_detector", "vehicle_detector":
		return KindInference
	case "tripwire", "zone", "movement_classifier", "attribute_extractor":
		return KindAnalytics
	case "null_sink", "rtmp_sink", "file_sink", "mqtt_sink":
		return KindDestination
	default:
		return ""
	}
}

// KnownTypes lists every node type the builder can construct; used to
// detect UnknownNodeType up front.
var KnownTypes = map[string]bool{
	"rtsp_source": true, "rtmp_source": true, "hls_source": true, "http_source": true, "file_source": true,
	"face_detector": true, "object_detector": true, "vehicle_detector": true,
	"tripwire": true, "zone": true, "movement_classifier": true, "attribute_extractor": true,
	"null_sink": true, "rtmp_sink": true, "file_sink": true, "mqtt_sink": true,
}
