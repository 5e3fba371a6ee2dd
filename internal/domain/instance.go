package domain

import (
	"regexp"
	"strings"
	"time"
)

// DetectorMode names which detector family a pipeline instance runs.
type DetectorMode string

const (
	DetectorModeFace    DetectorMode = "face"
	DetectorModeObject  DetectorMode = "object"
	DetectorModeVehicle DetectorMode = "vehicle"
	DetectorModeUnknown DetectorMode = "unknown"
)

// Sensitivity is the coarse Low/Medium/High knob exposed to callers; the
// pipeline builder maps it to a numeric threshold (see pipeline package).
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "Low"
	SensitivityMedium Sensitivity = "Medium"
	SensitivityHigh   Sensitivity = "High"
)

func (s Sensitivity) IsValid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// Modality is the sensor kind a source node expects.
type Modality string

const (
	ModalityRGB     Modality = "RGB"
	ModalityThermal Modality = "Thermal"
)

func (m Modality) IsValid() bool {
	switch m {
	case ModalityRGB, ModalityThermal:
		return true
	}
	return false
}

// LooksLikeInstanceID reports whether s has the UUID-ish shape Storage uses
// to decide whether a persisted top-level key is an instance record versus
// an opaque named section: at least 36 characters, containing a hyphen.
func LooksLikeInstanceID(s string) bool {
	return len(s) >= 36 && strings.Contains(s, "-")
}

// Instance is the in-memory and wire representation of one pipeline
// instance's identity, configuration and lifecycle flags.
type Instance struct {
	InstanceID   string `json:"instanceId"`
	DisplayName  string `json:"displayName"`
	Group        string `json:"group,omitempty"`
	Solution     string `json:"solution"`
	SolutionName string `json:"solutionName,omitempty"`

	Persistent    bool `json:"persistent"`
	Loaded        bool `json:"loaded"`
	Running       bool `json:"running"`
	AutoStart     bool `json:"autoStart"`
	AutoRestart   bool `json:"autoRestart"`
	ReadOnly      bool `json:"readOnly"`
	SystemInstance bool `json:"systemInstance"`

	MetadataMode   bool `json:"metadataMode,omitempty"`
	StatisticsMode bool `json:"statisticsMode,omitempty"`
	DiagnosticsMode bool `json:"diagnosticsMode,omitempty"`
	DebugMode      bool `json:"debugMode,omitempty"`

	FrameRateLimit  float64 `json:"frameRateLimit"`
	InputOrientation int    `json:"inputOrientation"`
	InputPixelLimit  int64  `json:"inputPixelLimit"`

	DetectorMode         DetectorMode `json:"detectorMode,omitempty"`
	DetectionSensitivity Sensitivity  `json:"detectionSensitivity,omitempty"`
	MovementSensitivity  Sensitivity  `json:"movementSensitivity,omitempty"`
	Modality             Modality     `json:"modality,omitempty"`

	RTSPURL  string `json:"rtspUrl,omitempty"`
	RTMPURL  string `json:"rtmpUrl,omitempty"`
	FilePath string `json:"filePath,omitempty"`

	AdditionalParams map[string]string `json:"additionalParams,omitempty"`

	RetryCount        int  `json:"retryCount,omitempty"`
	RetryLimitReached bool `json:"retryLimitReached,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the structural invariants from §3 that are cheap to
// check independent of storage (range/format checks). It does not check
// cross-references such as solution existence.
func (i *Instance) Validate() error {
	if i.InstanceID == "" || !LooksLikeInstanceID(i.InstanceID) {
		return NewError(KindValidation, "invalid instance id")
	}
	if len(i.DisplayName) > 255 {
		return NewError(KindValidation, "display name too long")
	}
	if i.FrameRateLimit < 0 || i.FrameRateLimit > 1000 {
		return NewError(KindValidation, "frame rate limit out of range")
	}
	if i.InputOrientation < 0 || i.InputOrientation > 3 {
		return NewError(KindValidation, "input orientation out of range")
	}
	if i.InputPixelLimit < 0 {
		return NewError(KindValidation, "input pixel limit out of range")
	}
	if i.DetectionSensitivity != "" && !i.DetectionSensitivity.IsValid() {
		return NewError(KindValidation, "invalid detection sensitivity")
	}
	if i.MovementSensitivity != "" && !i.MovementSensitivity.IsValid() {
		return NewError(KindValidation, "invalid movement sensitivity")
	}
	if i.Modality != "" && !i.Modality.IsValid() {
		return NewError(KindValidation, "invalid modality")
	}
	if i.Running && !i.Loaded {
		return NewError(KindValidation, "running implies loaded")
	}
	return nil
}

// CreateRequest is the caller-supplied shape for Manager.create.
type CreateRequest struct {
	Name                 string            `json:"name"`
	Group                string            `json:"group,omitempty"`
	Solution             string            `json:"solution"`
	Persistent           bool              `json:"persistent"`
	AutoStart            bool              `json:"autoStart"`
	AutoRestart          bool              `json:"autoRestart"`
	ReadOnly             bool              `json:"readOnly,omitempty"`
	FrameRateLimit       float64           `json:"frameRateLimit,omitempty"`
	InputOrientation     int               `json:"inputOrientation,omitempty"`
	InputPixelLimit      int64             `json:"inputPixelLimit,omitempty"`
	DetectorMode         DetectorMode      `json:"detectorMode,omitempty"`
	DetectionSensitivity Sensitivity       `json:"detectionSensitivity,omitempty"`
	MovementSensitivity  Sensitivity       `json:"movementSensitivity,omitempty"`
	Modality             Modality          `json:"modality,omitempty"`
	AdditionalParams     map[string]string `json:"additionalParams,omitempty"`
}

// Group is a named collection of instances used for bulk operations and
// presentation; see §3 "Group".
type Group struct {
	GroupID     string `json:"groupId"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"isDefault"`
	ReadOnly    bool   `json:"readOnly"`

	InstanceCount int `json:"instanceCount"`
}

var (
	groupIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
)

func (g *Group) Validate() error {
	if !groupIDPattern.MatchString(g.GroupID) {
		return NewError(KindValidation, "invalid group id")
	}
	if !groupNamePattern.MatchString(g.DisplayName) {
		return NewError(KindValidation, "invalid group display name")
	}
	return nil
}

// WorkerState is the Supervisor-tracked lifecycle of a worker subprocess.
type WorkerState string

const (
	WorkerStarting WorkerState = "Starting"
	WorkerReady    WorkerState = "Ready"
	WorkerBusy     WorkerState = "Busy"
	WorkerStopping WorkerState = "Stopping"
	WorkerStopped  WorkerState = "Stopped"
	WorkerCrashed  WorkerState = "Crashed"
)

// WorkerRecord is the Supervisor's per-instance bookkeeping entry. It is
// not persisted; it is rebuilt by spawning on loadPersistentInstances.
type WorkerRecord struct {
	InstanceID    string
	PID           int
	State         WorkerState
	SocketPath    string
	StartedAt     time.Time
	LastHeartbeat time.Time
	RestartCount  int
	LastError     string
}
