// Package modelresolve implements the two model-file resolution
// strategies from §4.D: by explicit path and by name, searching a fixed,
// ordered set of locations derived from environment variables and
// FHS-standard system paths.
package modelresolve

import (
	"os"
	"path/filepath"
	"strings"
)

// candidateExtensions is the fixed extension list tried when resolving
// by name.
var candidateExtensions = []string{".onnx", ".rknn", ".weights", ".pt", ".pth", ".pb", ".tflite"}

// searchRoots returns the ordered list of directories to search, per
// §4.D: CVEDIX_DATA_ROOT, CVEDIX_SDK_ROOT/cvedix_data, ./cvedix_data,
// then fixed system data locations (FHS /usr/share preferred over
// /usr/include), then fixed SDK source locations.
func searchRoots() []string {
	var roots []string

	if v := os.Getenv("CVEDIX_DATA_ROOT"); v != "" {
		roots = append(roots, v)
	}
	if v := os.Getenv("CVEDIX_SDK_ROOT"); v != "" {
		roots = append(roots, filepath.Join(v, "cvedix_data"))
	}
	roots = append(roots, "./cvedix_data")

	roots = append(roots,
		"/usr/share/cvedix/data",
		"/usr/share/cvedix_data",
		"/usr/include/cvedix/data",
	)

	roots = append(roots,
		"/opt/cvedix/sdk/cvedix_data",
		"/opt/cvedix-sdk/cvedix_data",
		"/usr/local/cvedix-sdk/cvedix_data",
	)

	return roots
}

// Warning describes a non-fatal substitution made during resolution
// (e.g. an alternative yunet model used because the requested file was
// missing).
type Warning struct {
	Message string
}

// Result is the outcome of a resolution attempt.
type Result struct {
	Path     string
	Warnings []Warning
}

// ByPath resolves an explicit relative (or bare) model path against the
// search roots. If requested is already absolute and exists, it is
// returned unchanged. For a yunet request whose file is missing, a
// same-directory alternative yunet model is substituted with a warning.
func ByPath(requested string) (Result, bool) {
	if filepath.IsAbs(requested) {
		if fileExists(requested) {
			return Result{Path: requested}, true
		}
		if alt, ok := yunetAlternative(requested); ok {
			return Result{Path: alt, Warnings: []Warning{{Message: "using alternative yunet model: " + alt}}}, true
		}
		return Result{}, false
	}

	for _, root := range searchRoots() {
		candidate := filepath.Join(root, requested)
		if fileExists(candidate) {
			return Result{Path: candidate}, true
		}
	}

	if alt, ok := yunetAlternativeAcrossRoots(requested); ok {
		return Result{Path: alt, Warnings: []Warning{{Message: "using alternative yunet model: " + alt}}}, true
	}

	if path, ok := fetchFromS3(requested); ok {
		return Result{Path: path, Warnings: []Warning{{Message: "fetched model from S3: " + requested}}}, true
	}

	return Result{}, false
}

// ByName resolves a model by bare name (optionally "category:name"),
// generating candidate filenames from the fixed extension list and
// searching the same ordered locations. Exact match beats a
// case-insensitive contains match.
func ByName(name string) (Result, bool) {
	_, base := splitCategory(name)

	var containsMatch string
	for _, root := range searchRoots() {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, ext := range candidateExtensions {
			exact := filepath.Join(root, base+ext)
			if fileExists(exact) {
				return Result{Path: exact}, true
			}
		}
		if containsMatch == "" {
			lowerBase := strings.ToLower(base)
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if strings.Contains(strings.ToLower(e.Name()), lowerBase) {
					containsMatch = filepath.Join(root, e.Name())
				}
			}
		}
	}

	if containsMatch != "" {
		return Result{Path: containsMatch}, true
	}

	for _, ext := range candidateExtensions {
		if path, ok := fetchFromS3(base + ext); ok {
			return Result{Path: path, Warnings: []Warning{{Message: "fetched model from S3: " + base + ext}}}, true
		}
	}

	return Result{}, false
}

func splitCategory(name string) (category, base string) {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func yunetAlternative(requested string) (string, bool) {
	if !strings.Contains(strings.ToLower(requested), "yunet") {
		return "", false
	}
	dir := filepath.Dir(requested)
	return findYunetIn(dir)
}

func yunetAlternativeAcrossRoots(requested string) (string, bool) {
	if !strings.Contains(strings.ToLower(requested), "yunet") {
		return "", false
	}
	for _, root := range searchRoots() {
		dir := filepath.Join(root, filepath.Dir(requested))
		if alt, ok := findYunetIn(dir); ok {
			return alt, true
		}
	}
	return "", false
}

func findYunetIn(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name()), "yunet") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}
