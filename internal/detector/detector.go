// Package detector narrows the real object detector down to the contract
// the consumer loop actually needs, modeled on internal/radar.Scanner's
// vehicleSource narrow-interface pattern: the external collaborator (a
// trained model serving process) is never imported here, only the
// interface shape a consumer depends on.
package detector

import (
	"context"
	"image"
)

// Detection is one raw inference result, prior to track matching.
type Detection struct {
	BBox       [4]float64
	Confidence float64
	ClassID    int
	ClassName  string
}

// Detector runs object detection inference over a decoded frame.
type Detector interface {
	Infer(ctx context.Context, img image.Image) ([]Detection, error)
	ModelName() string
	ModelVersion() string
	Threshold() float64
	InputSize() []int
}

// Fixture is a deterministic, in-process Detector used by tests and local
// development in place of the real model-serving collaborator: it always
// returns a fixed detection set, regardless of frame content.
type Fixture struct {
	Detections []Detection
	Name       string
	Version    string
	Thresh     float64
	Size       []int
	Err        error
}

// Infer returns the fixture's configured detection set, or its configured
// error if one is set.
func (f *Fixture) Infer(ctx context.Context, img image.Image) ([]Detection, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]Detection, len(f.Detections))
	copy(out, f.Detections)
	return out, nil
}

func (f *Fixture) ModelName() string {
	if f.Name == "" {
		return "fixture-detector"
	}
	return f.Name
}

func (f *Fixture) ModelVersion() string { return f.Version }
func (f *Fixture) Threshold() float64   { return f.Thresh }
func (f *Fixture) InputSize() []int     { return f.Size }
