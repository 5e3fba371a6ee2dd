package instancestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSave_NewRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id := "11111111-1111-1111-1111-111111111111"
	if err := s.Save(id, map[string]interface{}{"InstanceId": id, "DisplayName": "A"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := s.Exists(id)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestSave_AtomicWriteViaTempRename(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := "11111111-1111-1111-1111-111111111111"
	if err := s.Save(id, map[string]interface{}{"InstanceId": id}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "instances.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file should not remain after rename")
	}
	if _, err := os.Stat(filepath.Join(dir, "instances.json")); err != nil {
		t.Fatalf("expected instances.json to exist: %v", err)
	}
}

func TestSave_MergePreservesUUIDKeyedSectionAndOpaqueSections(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id := "11111111-1111-1111-1111-111111111111"
	uuidSection := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

	initial := map[string]interface{}{
		"InstanceId":  id,
		"DisplayName": "Original",
		uuidSection:   map[string]interface{}{"threshold": 0.8},
		"Zone":        map[string]interface{}{"points": []interface{}{1.0, 2.0}},
	}
	if err := s.Save(id, initial); err != nil {
		t.Fatalf("Save initial: %v", err)
	}

	// Update that only mentions DisplayName; the UUID-keyed section and
	// the opaque Zone section must survive byte-identical.
	update := map[string]interface{}{
		"InstanceId":  id,
		"DisplayName": "Updated",
	}
	if err := s.Save(id, update); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "instances.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	record := doc[id]
	if record["DisplayName"] != "Updated" {
		t.Fatalf("DisplayName = %v, want Updated", record["DisplayName"])
	}
	section, ok := record[uuidSection].(map[string]interface{})
	if !ok || section["threshold"] != 0.8 {
		t.Fatalf("expected UUID-keyed section preserved, got %v", record[uuidSection])
	}
	if _, ok := record["Zone"]; !ok {
		t.Fatal("expected Zone section preserved")
	}
}

func TestSave_MergeKeysDeepMergeRatherThanReplace(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := "11111111-1111-1111-1111-111111111111"

	initial := map[string]interface{}{
		"InstanceId": id,
		"Input":      map[string]interface{}{"uri": "rtsp://a", "media_type": "IP Camera"},
	}
	if err := s.Save(id, initial); err != nil {
		t.Fatalf("Save initial: %v", err)
	}

	update := map[string]interface{}{
		"InstanceId": id,
		"Input":      map[string]interface{}{"inputOrientation": 2.0},
	}
	if err := s.Save(id, update); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	inst, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if inst.InputOrientation != 2 {
		t.Errorf("InputOrientation = %d, want 2", inst.InputOrientation)
	}
	if inst.RTSPURL != "rtsp://a" {
		t.Errorf("RTSPURL = %q, want rtsp://a (must survive the merge)", inst.RTSPURL)
	}
}

func TestLoad_MissingInstanceIdFails(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "instances.json"), []byte(`{"x":{"DisplayName":"no id"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("x"); err == nil {
		t.Fatal("expected error for missing InstanceId")
	}
}

func TestLoadAll_SkipsNonInstanceKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := "11111111-1111-1111-1111-111111111111"
	raw := map[string]map[string]interface{}{
		id:        {"InstanceId": id},
		"globals": {"someSetting": true},
	}
	data, _ := json.Marshal(raw)
	if err := os.WriteFile(filepath.Join(dir, "instances.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("LoadAll = %v, want [%s]", ids, id)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := "11111111-1111-1111-1111-111111111111"
	if err := s.Delete(id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
