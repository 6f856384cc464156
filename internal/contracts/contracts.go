// Package contracts defines the strict v1 wire schemas exchanged over the
// bus — FrameContractV1 published by ingestion, ResultContractV1 published
// by detection — and the validators that bind them to the ring's layout
// invariants.
package contracts

import (
	"encoding/json"
)

// DropReason is a stable, machine-readable validation failure code. The
// values mirror the contract-rule violations a validator can report, plus
// the fixed non-validator codes (stale, ring miss, backpressure) a consumer
// loop assigns to non-validation drops.
type DropReason string

const (
	ReasonContractVersionMismatch DropReason = "contract_version_mismatch"
	ReasonMissingMemory           DropReason = "missing_memory"
	ReasonBadMemoryKey            DropReason = "bad_memory_key"
	ReasonMemorySizeMismatch      DropReason = "memory_size_mismatch"
	ReasonUnsupportedDtype        DropReason = "unsupported_dtype"
	ReasonUnsupportedColorSpace   DropReason = "unsupported_color_space"
	ReasonDimensionOutOfRange     DropReason = "dimension_out_of_range"
	ReasonBadTimestampMs          DropReason = "bad_timestamp_ms"
	ReasonBadMonoMs               DropReason = "bad_mono_ms"
	ReasonBadFrameID              DropReason = "bad_frame_id"
	ReasonBadStreamID             DropReason = "bad_stream_id"
	ReasonBadPTS                  DropReason = "bad_pts"
	ReasonBadBBox                 DropReason = "bad_bbox"
	ReasonBadConfidence           DropReason = "bad_confidence"
	ReasonMissingClassID          DropReason = "missing_class_id"
	ReasonBadTiming               DropReason = "bad_timing"
	ReasonBadModelName            DropReason = "bad_model_name"
	ReasonBadModelInputSize       DropReason = "bad_model_input_size"

	// Fixed non-validator drop reasons assigned by a consumer loop.
	ReasonBadJSON            DropReason = "bad_json"
	ReasonStale              DropReason = "stale"
	ReasonShmMiss            DropReason = "shm_miss"
	ReasonLag                DropReason = "lag"
	ReasonNonFatal           DropReason = "nonfatal"
	ReasonUnhandledException DropReason = "unhandled_exception"

	// Fixed non-validator codes assigned by the live-view correlation step.
	ReasonResultLag                DropReason = "result_lag"
	ReasonResultMalformedTimestamp DropReason = "result_malformed_timestamp"
)

// ValidationError reports why a contract failed validation.
type ValidationError struct {
	Reason  DropReason
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Reason) + ": " + e.Message
}

func fail(reason DropReason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// ContractVersion normalizes the legacy string forms ("1", "v1") accepted
// alongside the integer 1, per spec. MarshalJSON always emits the integer
// form; UnmarshalJSON accepts either and records whether a legacy form was
// seen via the Legacy field so callers can surface a deprecation warning.
type ContractVersion struct {
	Value  int
	Legacy bool
}

// MarshalJSON always emits the canonical integer form.
func (v ContractVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Value)
}

// UnmarshalJSON accepts the integer 1 or the legacy strings "1"/"v1".
func (v *ContractVersion) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		v.Value = asInt
		v.Legacy = false
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		switch asString {
		case "1":
			v.Value = 1
		case "v1":
			v.Value = 1
		default:
			v.Value = 0
		}
		v.Legacy = true
		return nil
	}
	v.Value = 0
	v.Legacy = false
	return nil
}

// Memory describes the ring slot a FrameContractV1 references.
type Memory struct {
	Backend    string `json:"backend"`
	Key        string `json:"key"`
	Size       int64  `json:"size"`
	Generation int64  `json:"generation"`
}

// FrameContractV1 is the JSON message ingestion publishes for every frame
// it writes into the ring.
type FrameContractV1 struct {
	ContractVersion ContractVersion `json:"contract_version"`
	FrameID         string          `json:"frame_id"`
	StreamID        string          `json:"stream_id"`
	CameraID        string          `json:"camera_id"`
	PTS             *float64        `json:"pts,omitempty"`
	TimestampMs     int64           `json:"timestamp_ms"`
	MonoMs          int64           `json:"mono_ms"`
	Memory          Memory          `json:"memory"`
	FrameWidth      int             `json:"frame_width"`
	FrameHeight     int             `json:"frame_height"`
	FrameChannels   int             `json:"frame_channels"`
	FrameDtype      string          `json:"frame_dtype"`
	FrameColorSpace string          `json:"frame_color_space"`
}

// ValidateFrameContractV1 enforces every frame contract rule from spec §4.2,
// returning the first violation encountered. contract_version is normalized
// in place (legacy forms are rewritten to the integer 1) before the rest of
// validation runs, so callers that keep the returned contract carry the
// canonical form forward.
func ValidateFrameContractV1(c *FrameContractV1) *ValidationError {
	if c == nil {
		return fail(ReasonContractVersionMismatch, "nil contract")
	}
	if c.ContractVersion.Value != 1 {
		return fail(ReasonContractVersionMismatch, "contract_version must be 1")
	}
	c.ContractVersion.Value = 1
	c.ContractVersion.Legacy = false

	if c.FrameID == "" {
		return fail(ReasonBadFrameID, "frame_id must not be empty")
	}
	if c.StreamID == "" {
		return fail(ReasonBadStreamID, "stream_id must not be empty")
	}
	if c.Memory.Backend == "" {
		return fail(ReasonMissingMemory, "memory.backend must not be empty")
	}
	if c.Memory.Key == "" {
		return fail(ReasonBadMemoryKey, "memory.key must not be empty")
	}
	if c.Memory.Size < 0 {
		return fail(ReasonMissingMemory, "memory.size must be non-negative")
	}
	if c.FrameWidth < 16 || c.FrameWidth > 10000 {
		return fail(ReasonDimensionOutOfRange, "frame_width out of [16, 10000]")
	}
	if c.FrameHeight < 16 || c.FrameHeight > 10000 {
		return fail(ReasonDimensionOutOfRange, "frame_height out of [16, 10000]")
	}
	if c.FrameChannels != 3 {
		return fail(ReasonUnsupportedDtype, "frame_channels must be 3")
	}
	if c.FrameDtype != "uint8" {
		return fail(ReasonUnsupportedDtype, "frame_dtype must be uint8")
	}
	if c.FrameColorSpace != "bgr" {
		return fail(ReasonUnsupportedColorSpace, "frame_color_space must be bgr")
	}
	expectedSize := int64(c.FrameWidth) * int64(c.FrameHeight) * int64(c.FrameChannels)
	if c.Memory.Size != expectedSize {
		return fail(ReasonMemorySizeMismatch, "memory.size must equal frame_width*frame_height*frame_channels")
	}
	if c.TimestampMs <= 0 {
		return fail(ReasonBadTimestampMs, "timestamp_ms must be positive")
	}
	if c.MonoMs <= 0 {
		return fail(ReasonBadMonoMs, "mono_ms must be positive")
	}
	return nil
}

// Detection is a single object detection within a ResultContractV1.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"conf"`
	ClassID    *int       `json:"class_id"`
	ClassName  string     `json:"class_name,omitempty"`
	TrackID    string     `json:"track_id,omitempty"`
}

// Model describes the detector that produced a ResultContractV1.
type Model struct {
	Name      string  `json:"name"`
	Version   string  `json:"version,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	InputSize []int   `json:"input_size,omitempty"`
}

// Timing reports the processing latency breakdown for a ResultContractV1.
type Timing struct {
	InferenceMs float64  `json:"inference_ms"`
	ModelMs     *float64 `json:"model_ms,omitempty"`
	TrackMs     *float64 `json:"track_ms,omitempty"`
}

// ResultContractV1 is the JSON message detection publishes for every frame
// it finishes processing.
type ResultContractV1 struct {
	ContractVersion ContractVersion `json:"contract_version"`
	FrameID         string          `json:"frame_id"`
	StreamID        string          `json:"stream_id"`
	CameraID        string          `json:"camera_id"`
	TimestampMs     int64           `json:"timestamp_ms"`
	MonoMs          int64           `json:"mono_ms"`
	Detections      []Detection     `json:"detections"`
	Model           Model           `json:"model"`
	Timing          Timing          `json:"timing"`
}

// ValidateResultContractV1 enforces every result contract rule from spec
// §4.2, returning the first violation encountered.
func ValidateResultContractV1(c *ResultContractV1) *ValidationError {
	if c == nil {
		return fail(ReasonContractVersionMismatch, "nil contract")
	}
	if c.ContractVersion.Value != 1 {
		return fail(ReasonContractVersionMismatch, "contract_version must be 1")
	}
	c.ContractVersion.Value = 1
	c.ContractVersion.Legacy = false

	if c.FrameID == "" {
		return fail(ReasonBadFrameID, "frame_id must not be empty")
	}
	if c.StreamID == "" {
		return fail(ReasonBadStreamID, "stream_id must not be empty")
	}
	if c.CameraID == "" {
		return fail(ReasonBadStreamID, "camera_id must not be empty")
	}
	if c.TimestampMs <= 0 {
		return fail(ReasonBadTimestampMs, "timestamp_ms must be positive")
	}
	if c.MonoMs <= 0 {
		return fail(ReasonBadMonoMs, "mono_ms must be positive")
	}
	for i := range c.Detections {
		d := &c.Detections[i]
		if d.BBox[2] <= d.BBox[0] || d.BBox[3] <= d.BBox[1] {
			return fail(ReasonBadBBox, "bbox must describe a positive-area rectangle")
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return fail(ReasonBadConfidence, "conf must be in [0, 1]")
		}
		if d.ClassID == nil {
			return fail(ReasonMissingClassID, "class_id is required")
		}
	}
	if c.Model.Name == "" {
		return fail(ReasonBadModelName, "model.name must not be empty")
	}
	if n := len(c.Model.InputSize); n != 0 && n != 2 && n != 3 {
		return fail(ReasonBadModelInputSize, "model.input_size must have 2 or 3 elements")
	}
	if c.Timing.InferenceMs < 0 {
		return fail(ReasonBadTiming, "timing.inference_ms must be non-negative")
	}
	return nil
}
