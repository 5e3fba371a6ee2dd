// Package pipeline implements the Pipeline Builder (§4.D): a pure
// function from (solution, request, instanceId) to an ordered,
// non-empty, attached list of node handles.
package pipeline

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/node"
	"github.com/oriys/nova/internal/pipeline/modelresolve"
)

var sdkInitOnce sync.Once

// initSDK configures the default RTSP transport to TCP unless the
// environment already pins one, under a process-wide once-guard. It runs
// on the first Build call rather than in an init().
func initSDK() {
	sdkInitOnce.Do(func() {
		if os.Getenv("GST_RTSP_PROTOCOLS") == "" && os.Getenv("RTSP_TRANSPORT") == "" {
			os.Setenv("GST_RTSP_PROTOCOLS", "tcp")
		}
	})
}

// ParamResolver substitutes "{instanceId}" and "${KEY}" placeholders,
// implemented by solution.Registry.ResolveParam.
type ParamResolver func(value, instanceID string, requestParams map[string]string) string

// Request is the per-instance parameter set the builder consumes,
// derived from domain.CreateRequest plus any additional params.
type Request struct {
	InstanceID           string
	FrameRateLimit       float64
	DetectionSensitivity domain.Sensitivity
	RTSPURL              string
	RTMPURL              string
	FilePath             string
	AdditionalParams     map[string]string
}

// Warning is a non-fatal note emitted during construction (clamped
// parameter, substituted model file, etc).
type Warning struct {
	NodeName string
	Message  string
}

// BuildResult is the output of Build: the attached node chain plus any
// warnings accumulated along the way.
type BuildResult struct {
	Nodes    []*node.Handle
	Warnings []Warning
}

// Build constructs a pipeline from a solution template and request. On
// any node construction error, partially built nodes are detached in
// reverse order and the error is returned; the failure is fatal for the
// whole pipeline (§4.D).
func Build(sol *domain.Solution, req Request, resolve ParamResolver) (*BuildResult, error) {
	initSDK()

	if len(sol.Nodes) == 0 {
		return nil, domain.NewError(domain.KindPipeline, "solution has no nodes")
	}

	result := &BuildResult{}
	var built []*node.Handle

	derived := derivedVars(req)

	for _, desc := range sol.Nodes {
		name := strings.ReplaceAll(desc.NameTemplate, "{instanceId}", req.InstanceID)

		templateParams := mergedTemplateParams(sol, desc)
		params := make(map[string]string, len(templateParams))
		for k, v := range templateParams {
			params[k] = resolveValue(v, req.InstanceID, req.AdditionalParams, derived, resolve)
		}

		handle, warnings, err := constructNode(desc.NodeType, name, params)
		if err != nil {
			teardown(built)
			return nil, err
		}
		result.Warnings = append(result.Warnings, warnings...)

		if len(built) > 0 {
			handle.Attach(built[len(built)-1])
		}
		built = append(built, handle)
	}

	result.Nodes = built
	return result, nil
}

// mergedTemplateParams starts from the solution's default params, then
// overlays the node descriptor's own params, matching "start from the
// template parameters" in §4.D step 2b.
func mergedTemplateParams(sol *domain.Solution, desc domain.NodeDescriptor) map[string]string {
	out := make(map[string]string, len(sol.DefaultParams)+len(desc.Parameters))
	for k, v := range sol.DefaultParams {
		out[k] = v
	}
	for k, v := range desc.Parameters {
		out[k] = v
	}
	return out
}

func derivedVars(req Request) map[string]string {
	return map[string]string{
		"detectionSensitivity": fmt.Sprintf("%.2f", sensitivityThreshold(req.DetectionSensitivity)),
		"frameRateLimit":       strconv.FormatFloat(req.FrameRateLimit, 'f', -1, 64),
		"RTSP_URL":             req.RTSPURL,
		"FILE_PATH":            req.FilePath,
		"RTMP_URL":             req.RTMPURL,
	}
}

// sensitivityThreshold implements the detection-sensitivity mapping:
// Low -> 0.5, Medium -> 0.7, High -> 0.9, otherwise 0.7.
func sensitivityThreshold(s domain.Sensitivity) float64 {
	switch s {
	case domain.SensitivityLow:
		return 0.5
	case domain.SensitivityMedium:
		return 0.7
	case domain.SensitivityHigh:
		return 0.9
	default:
		return 0.7
	}
}

func resolveValue(template, instanceID string, requestParams, derived map[string]string, resolve ParamResolver) string {
	withInstance := strings.ReplaceAll(template, "{instanceId}", instanceID)

	merged := make(map[string]string, len(requestParams)+len(derived))
	for k, v := range requestParams {
		merged[k] = v
	}
	for k, v := range derived {
		if v != "" {
			merged[k] = v
		}
	}

	if strings.Contains(withInstance, "${MODEL_PATH}") {
		return substituteModelPath(withInstance, merged)
	}
	if strings.Contains(withInstance, "${SFACE_MODEL_PATH}") {
		return substituteSFaceModelPath(withInstance, merged)
	}

	if resolve != nil {
		return resolve(withInstance, instanceID, merged)
	}
	return simpleResolve(withInstance, merged)
}

func simpleResolve(value string, params map[string]string) string {
	out := value
	for strings.Contains(out, "${") {
		start := strings.Index(out, "${")
		end := strings.Index(out[start:], "}")
		if end < 0 {
			break
		}
		end += start
		key := out[start+2 : end]
		out = out[:start] + params[key] + out[end+1:]
	}
	return out
}

func substituteModelPath(value string, params map[string]string) string {
	explicit := params["MODEL_PATH"]
	if explicit != "" {
		if res, ok := modelresolve.ByPath(explicit); ok {
			return strings.ReplaceAll(value, "${MODEL_PATH}", res.Path)
		}
	}
	if name := params["MODEL_NAME"]; name != "" {
		if res, ok := modelresolve.ByName(name); ok {
			return strings.ReplaceAll(value, "${MODEL_PATH}", res.Path)
		}
	}
	if res, ok := modelresolve.ByPath("models/face/yunet.onnx"); ok {
		return strings.ReplaceAll(value, "${MODEL_PATH}", res.Path)
	}
	return strings.ReplaceAll(value, "${MODEL_PATH}", "")
}

func substituteSFaceModelPath(value string, params map[string]string) string {
	if res, ok := modelresolve.ByPath("models/face/face_recognition_sface_2021dec.onnx"); ok {
		return strings.ReplaceAll(value, "${SFACE_MODEL_PATH}", res.Path)
	}
	return strings.ReplaceAll(value, "${SFACE_MODEL_PATH}", "")
}

// DetectInputType classifies a source URI as one of
// {rtsp, rtmp, hls, http, file} by scheme and extension.
func DetectInputType(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	switch strings.ToLower(u.Scheme) {
	case "rtsp":
		return "rtsp"
	case "rtmp":
		return "rtmp"
	case "http", "https":
		if strings.HasSuffix(strings.ToLower(u.Path), ".m3u8") {
			return "hls"
		}
		return "http"
	case "file":
		return "file"
	default:
		return "file"
	}
}

func constructNode(nodeType, name string, params map[string]string) (*node.Handle, []Warning, error) {
	if !node.KnownTypes[nodeType] {
		return nil, nil, domain.NewError(domain.KindPipeline, "unknown node type: "+nodeType)
	}
	if name == "" {
		return nil, nil, domain.NewError(domain.KindValidation, "empty node name")
	}

	var warnings []Warning
	typedParams := make(map[string]interface{}, len(params))

	for k, v := range params {
		switch k {
		case "uri", "path":
			if v == "" {
				return nil, nil, domain.NewError(domain.KindValidation, "empty required url for "+name)
			}
			typedParams[k] = v
		case "threshold":
			f, err := parseFloatStrict(v)
			if err != nil {
				return nil, nil, domain.NewError(domain.KindValidation, "invalid numeric parameter "+k)
			}
			clamped, warned := clampUnit(f)
			if warned {
				warnings = append(warnings, Warning{NodeName: name, Message: fmt.Sprintf("clamped %s to %.2f", k, clamped)})
			}
			typedParams[k] = clamped
		case "resizeRatio":
			f, err := parseFloatStrict(v)
			if err != nil {
				return nil, nil, domain.NewError(domain.KindValidation, "invalid numeric parameter "+k)
			}
			clamped, warned := clampResizeRatio(f)
			if warned {
				warnings = append(warnings, Warning{NodeName: name, Message: fmt.Sprintf("clamped %s to %.2f", k, clamped)})
			}
			typedParams[k] = clamped
		default:
			typedParams[k] = v
		}
	}

	kind := node.KindForType(nodeType)
	handle := node.New(name, nodeType, kind, typedParams)
	return handle, warnings, nil
}

func parseFloatStrict(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return f, nil
}

// clampResizeRatio clamps a resize ratio to (0, 1]: values at or below
// zero clamp to 0.1, values above 1.0 clamp to 1.0.
func clampResizeRatio(f float64) (float64, bool) {
	if f <= 0 {
		return 0.1, true
	}
	if f > 1.0 {
		return 1.0, true
	}
	return f, false
}

func clampUnit(f float64) (float64, bool) {
	if f < 0 {
		return 0, true
	}
	if f > 1 {
		return 1, true
	}
	return f, false
}

func teardown(built []*node.Handle) {
	for i := len(built) - 1; i >= 0; i-- {
		_ = built[i].Detach()
	}
}
