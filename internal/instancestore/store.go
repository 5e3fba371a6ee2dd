// Package instancestore implements Instance Storage (§4.E): a single
// JSON document on disk keyed by instance id, with a read-merge-write
// save path that preserves opaque nested configuration sections the
// core never interprets (zones, trackers, tripwires, regions, per-
// model UUID-keyed blocks).
package instancestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oriys/nova/internal/domain"
)

// replaceKeys are top-level fields replaced wholesale on merge: identity
// fields, flags, and runtime stats.
var replaceKeys = []string{
	"InstanceId", "DisplayName", "Solution", "SolutionName", "Group",
	"ReadOnly", "SystemInstance", "AutoStart", "AutoRestart",
	"loaded", "running", "fps", "version",
}

// mergeKeys are nested object fields that are deep-merged (one level)
// rather than replaced.
var mergeKeys = []string{
	"Input", "SolutionManager", "Detector", "Movement",
	"OriginatorInfo", "AdditionalParams", "Output",
}

// preservedSections names the opaque per-feature sections (AnimalTracker,
// Zone, Tripwire, and friends) and the generic lower-case collections the
// core never writes to directly. mergeRecord's copy-then-overlay
// approach already preserves any key, named or UUID-shaped, that the
// incoming record doesn't mention — this list documents which keys that
// property is relied on for.
var preservedSections = []string{
	"AnimalTracker", "DetectorRegions", "DetectorThermal",
	"Global", "LicensePlateTracker", "ObjectAttributeExtraction",
	"ObjectMovementClassifier", "PersonTracker", "Tripwire",
	"VehicleTracker", "Zone",
	"trackers", "zones", "tripwires", "regions", "globals",
}

type document map[string]map[string]interface{}

// Store persists instance records as one JSON file under dir/instances.json.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store writing to dir/instances.json, creating dir if
// missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, "instances.json")}, nil
}

// Path returns the backing instances.json file path, for callers (the
// config-file watcher) that need to observe it directly.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) readDocument() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, nil
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

func (s *Store) writeDocument(doc document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Save performs the read-merge-write described in §4.E: replace
// replaceKeys wholesale, deep-merge mergeKeys one level, and preserve
// any existing UUID-shaped top-level key or allow-listed opaque section
// the new record doesn't mention.
func (s *Store) Save(id string, record map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	existing, ok := doc[id]
	if !ok {
		doc[id] = flattenRecord(record)
		return s.writeDocument(doc)
	}

	merged := mergeRecord(existing, record)
	doc[id] = merged
	return s.writeDocument(doc)
}

func flattenRecord(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func mergeRecord(existing, incoming map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}

	for _, key := range replaceKeys {
		if v, ok := incoming[key]; ok {
			merged[key] = v
		}
	}

	for _, key := range mergeKeys {
		newVal, ok := incoming[key].(map[string]interface{})
		if !ok {
			continue
		}
		existingVal, _ := merged[key].(map[string]interface{})
		if existingVal == nil {
			existingVal = make(map[string]interface{})
		}
		nested := make(map[string]interface{}, len(existingVal)+len(newVal))
		for k, v := range existingVal {
			nested[k] = v
		}
		for k, v := range newVal {
			nested[k] = v
		}
		merged[key] = nested
	}

	// Any other top-level key present in incoming but not in
	// replaceKeys/mergeKeys (e.g. a fresh opaque section) is still
	// applied; preservedSections/UUID-shaped keys only matter when
	// incoming omits them, which the base copy above already handles.
	for k, v := range incoming {
		if isReplaceKey(k) || isMergeKey(k) {
			continue
		}
		merged[k] = v
	}

	return merged
}

func isReplaceKey(k string) bool {
	for _, r := range replaceKeys {
		if r == k {
			return true
		}
	}
	return false
}

func isMergeKey(k string) bool {
	for _, m := range mergeKeys {
		if m == k {
			return true
		}
	}
	return false
}

// Load reads and translates the persisted schema for id into a domain
// Instance. Missing InstanceId, out-of-range frame rate/orientation, or
// an over-long display name fail with KindValidation.
func (s *Store) Load(id string) (*domain.Instance, error) {
	s.mu.Lock()
	doc, err := s.readDocument()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	record, ok := doc[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return recordToInstance(record)
}

// LoadAll walks the document, skipping any key that neither looks like
// an instance record (has InstanceId) nor a UUID, and returns the set of
// valid instance ids.
func (s *Store) LoadAll() ([]string, error) {
	s.mu.Lock()
	doc, err := s.readDocument()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for key, record := range doc {
		if _, ok := record["InstanceId"].(string); ok {
			ids = append(ids, key)
			continue
		}
		if domain.LooksLikeInstanceID(key) {
			ids = append(ids, key)
		}
	}
	return ids, nil
}

// Delete removes the record for id. Idempotent.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	delete(doc, id)
	return s.writeDocument(doc)
}

// Exists reports whether id has a persisted record.
func (s *Store) Exists(id string) (bool, error) {
	s.mu.Lock()
	doc, err := s.readDocument()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	_, ok := doc[id]
	return ok, nil
}

// DecodeRecord translates a raw persisted-schema JSON document (the
// same shape Save/InstanceToRecord produce) into a domain Instance.
// cmd/edge-ai-worker uses this to decode the --config argument the
// Supervisor passes on spawn (§4.G), which carries the record as JSON
// text rather than through the Store file.
func DecodeRecord(data []byte) (*domain.Instance, error) {
	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, domain.Wrap(domain.KindValidation, "decode instance config", err)
	}
	return recordToInstance(record)
}

func recordToInstance(record map[string]interface{}) (*domain.Instance, error) {
	instanceID, _ := record["InstanceId"].(string)
	if instanceID == "" {
		return nil, domain.NewError(domain.KindValidation, "missing InstanceId")
	}

	inst := &domain.Instance{InstanceID: instanceID}
	inst.DisplayName, _ = record["DisplayName"].(string)
	if len(inst.DisplayName) > 255 {
		return nil, domain.NewError(domain.KindValidation, "display name too long")
	}
	inst.Solution, _ = record["Solution"].(string)
	inst.SolutionName, _ = record["SolutionName"].(string)
	inst.Group, _ = record["Group"].(string)
	inst.ReadOnly, _ = record["ReadOnly"].(bool)
	inst.SystemInstance, _ = record["SystemInstance"].(bool)
	inst.AutoStart, _ = record["AutoStart"].(bool)
	inst.AutoRestart, _ = record["AutoRestart"].(bool)
	inst.Loaded, _ = record["loaded"].(bool)
	inst.Running, _ = record["running"].(bool)

	if sm, ok := record["SolutionManager"].(map[string]interface{}); ok {
		if v, ok := sm["frame_rate_limit"].(float64); ok {
			inst.FrameRateLimit = v
		}
		inst.MetadataMode, _ = sm["send_metadata"].(bool)
		inst.StatisticsMode, _ = sm["run_statistics"].(bool)
		inst.DiagnosticsMode, _ = sm["send_diagnostics"].(bool)
		inst.DebugMode, _ = sm["enable_debug"].(bool)
		if v, ok := sm["input_pixel_limit"].(float64); ok {
			inst.InputPixelLimit = int64(v)
		}
	}
	if inst.FrameRateLimit < 0 || inst.FrameRateLimit > 1000 {
		return nil, domain.NewError(domain.KindValidation, "frame rate limit out of range")
	}

	if det, ok := record["Detector"].(map[string]interface{}); ok {
		if v, ok := det["current_preset"].(string); ok {
			inst.DetectorMode = domain.DetectorMode(v)
		}
		if v, ok := det["current_sensitivity_preset"].(string); ok {
			inst.DetectionSensitivity = domain.Sensitivity(v)
		}
	}

	if in, ok := record["Input"].(map[string]interface{}); ok {
		if v, ok := in["inputOrientation"].(float64); ok {
			inst.InputOrientation = int(v)
		}
		if uri, ok := in["uri"].(string); ok {
			mediaType, _ := in["media_type"].(string)
			switch mediaType {
			case "IP Camera":
				inst.RTSPURL = extractRTSPFromGst(uri)
			case "File":
				inst.FilePath = uri
			}
		}
	}
	if inst.InputOrientation < 0 || inst.InputOrientation > 3 {
		return nil, domain.NewError(domain.KindValidation, "input orientation out of range")
	}

	if out, ok := record["Output"].(map[string]interface{}); ok {
		inst.RTMPURL, _ = out["rtmpUrl"].(string)
	}

	if params, ok := record["AdditionalParams"].(map[string]interface{}); ok {
		inst.AdditionalParams = make(map[string]string, len(params))
		for k, v := range params {
			if s, ok := v.(string); ok {
				inst.AdditionalParams[k] = s
			}
		}
	}

	return inst, nil
}

func extractRTSPFromGst(uri string) string {
	const prefix = "gstreamer:///urisourcebin uri="
	if !strings.HasPrefix(uri, prefix) {
		return uri
	}
	rest := uri[len(prefix):]
	if idx := strings.Index(rest, " "); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// InstanceToRecord translates a semantic Instance into the persisted
// PascalCase schema, the inverse of recordToInstance.
func InstanceToRecord(inst *domain.Instance) map[string]interface{} {
	record := map[string]interface{}{
		"InstanceId":     inst.InstanceID,
		"ReadOnly":       inst.ReadOnly,
		"SystemInstance": inst.SystemInstance,
		"AutoStart":      inst.AutoStart,
		"AutoRestart":    inst.AutoRestart,
		"loaded":         inst.Loaded,
		"running":        inst.Running,
	}
	if inst.DisplayName != "" {
		record["DisplayName"] = inst.DisplayName
	}
	if inst.Solution != "" {
		record["Solution"] = inst.Solution
	}
	if inst.SolutionName != "" {
		record["SolutionName"] = inst.SolutionName
	}
	if inst.Group != "" {
		record["Group"] = inst.Group
	}

	solutionManager := map[string]interface{}{
		"frame_rate_limit": inst.FrameRateLimit,
		"send_metadata":    inst.MetadataMode,
		"run_statistics":   inst.StatisticsMode,
		"send_diagnostics": inst.DiagnosticsMode,
		"enable_debug":     inst.DebugMode,
	}
	if inst.InputPixelLimit > 0 {
		solutionManager["input_pixel_limit"] = inst.InputPixelLimit
	}
	record["SolutionManager"] = solutionManager

	if inst.DetectorMode != "" || inst.DetectionSensitivity != "" {
		detector := map[string]interface{}{}
		if inst.DetectorMode != "" {
			detector["current_preset"] = string(inst.DetectorMode)
		}
		if inst.DetectionSensitivity != "" {
			detector["current_sensitivity_preset"] = string(inst.DetectionSensitivity)
		}
		record["Detector"] = detector
	}

	input := map[string]interface{}{}
	if inst.InputOrientation > 0 {
		input["inputOrientation"] = inst.InputOrientation
	}
	if inst.RTSPURL != "" {
		input["media_type"] = "IP Camera"
		input["uri"] = "gstreamer:///urisourcebin uri=" + inst.RTSPURL +
			" ! decodebin ! videoconvert ! video/x-raw, format=NV12 ! appsink drop=true name=cvdsink"
	} else if inst.FilePath != "" {
		input["media_type"] = "File"
		input["uri"] = inst.FilePath
	}
	if len(input) > 0 {
		record["Input"] = input
	}

	if inst.RTMPURL != "" {
		record["Output"] = map[string]interface{}{"rtmpUrl": inst.RTMPURL}
	}

	if len(inst.AdditionalParams) > 0 {
		params := make(map[string]interface{}, len(inst.AdditionalParams))
		for k, v := range inst.AdditionalParams {
			params[k] = v
		}
		record["AdditionalParams"] = params
	}

	return record
}
