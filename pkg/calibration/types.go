package calibration

import (
	"encoding/json"
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
)

// Properties are the keys every calibration object must carry.
var Properties = []string{
	"pitch",
	"slope",
	"center",
	"viewCone",
	"invView",
	"verticalAngle",
	"DPI",
	"screenW",
	"screenH",
	"flipImageX",
	"flipImageY",
	"flipSubp",
}

// Calibration holds the raw per-device lenticular calibration.
type Calibration struct {
	Pitch         float32 `json:"pitch"`
	Slope         float32 `json:"slope"`
	Center        float32 `json:"center"`
	ViewCone      float32 `json:"viewCone"`
	InvView       float32 `json:"invView"`
	VerticalAngle float32 `json:"verticalAngle"`
	DPI           float32 `json:"DPI"`
	ScreenW       float32 `json:"screenW"`
	ScreenH       float32 `json:"screenH"`
	FlipImageX    float32 `json:"flipImageX"`
	FlipImageY    float32 `json:"flipImageY"`
	FlipSubp      float32 `json:"flipSubp"`
}

// ForShader is the subset of calibration, post-processed, that a shader needs.
type ForShader struct {
	Pitch      float32    `json:"pitch"`
	Tilt       float32    `json:"tilt"`
	Center     float32    `json:"center"`
	Subp       float32    `json:"subp"`
	Resolution [2]float32 `json:"resolution"`
}

// MissingPropertyError is returned by Parse when a required key is absent.
type MissingPropertyError struct {
	Property string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("calibration does not contain %s", e.Property)
}

type valueField struct {
	Value *float64 `json:"value"`
}

// HasAllProperties reports whether the JSON object in raw carries every key
// in Properties. It does not look at the values.
func HasAllProperties(raw []byte) (bool, string) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, ""
	}
	for _, p := range Properties {
		if _, ok := m[p]; !ok {
			return false, p
		}
	}
	return true, ""
}

// Parse decodes a calibration object where every property is wrapped as
// {"value": n}.
func Parse(raw []byte) (*Calibration, error) {
	var m map[string]valueField
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal calibration")
	}

	values := make(map[string]float32, len(Properties))
	for _, p := range Properties {
		f, ok := m[p]
		if !ok || f.Value == nil {
			return nil, &MissingPropertyError{Property: p}
		}
		values[p] = float32(*f.Value)
	}

	return &Calibration{
		Pitch:         values["pitch"],
		Slope:         values["slope"],
		Center:        values["center"],
		ViewCone:      values["viewCone"],
		InvView:       values["invView"],
		VerticalAngle: values["verticalAngle"],
		DPI:           values["DPI"],
		ScreenW:       values["screenW"],
		ScreenH:       values["screenH"],
		FlipImageX:    values["flipImageX"],
		FlipImageY:    values["flipImageY"],
		FlipSubp:      values["flipSubp"],
	}, nil
}

// RecalculatedPitch converts the pitch from lenticules per inch to
// lenticules per screen width, corrected for the slant.
func (c Calibration) RecalculatedPitch() float32 {
	return float32(float64(c.Pitch) * float64(c.ScreenW/c.DPI) * math.Cos(math.Atan(1.0/float64(c.Slope))))
}

func (c Calibration) Tilt() float32 {
	t := c.ScreenH / (c.ScreenW * c.Slope)
	if c.FlipImageX == 1 {
		return -t
	}
	return t
}

func (c Calibration) Subp() float32 {
	return 1.0 / (c.ScreenW * 3.0)
}

func (c Calibration) ForShader() ForShader {
	return ForShader{
		Pitch:      c.RecalculatedPitch(),
		Tilt:       c.Tilt(),
		Center:     c.Center,
		Subp:       c.Subp(),
		Resolution: [2]float32{c.ScreenW, c.ScreenH},
	}
}
