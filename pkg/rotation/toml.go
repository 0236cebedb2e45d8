package rotation

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/version"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

type tomlMetadata struct {
	CoordinateSystem string `toml:"coordinate_system"`
	IndexOrder       string `toml:"index_order"`
	AngleUnits       string `toml:"angle_units"`
	Timestamp        string `toml:"timestamp"`
	VolumeLabel      string `toml:"volume_label"`
}

type tomlStep struct {
	Axis         string  `toml:"axis"`
	Angle        float64 `toml:"angle"`
	Visible      bool    `toml:"visible"`
	Name         string  `toml:"name"`
	NameEditable bool    `toml:"name_editable"`
	Deletable    bool    `toml:"deletable"`
}

type tomlDocument struct {
	MPROrigin  []float64    `toml:"mpr_origin"`
	Metadata   tomlMetadata `toml:"metadata"`
	AnglesList []tomlStep   `toml:"angles_list"`
}

// ToTOML serializes the sequence in its own declared convention and units,
// preceded by a comment naming the producing software version
func (s *Sequence) ToTOML() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	doc := tomlDocument{
		MPROrigin: []float64{s.Origin.X, s.Origin.Y, s.Origin.Z},
		Metadata: tomlMetadata{
			CoordinateSystem: s.Metadata.CoordinateSystem,
			IndexOrder:       string(s.Metadata.IndexOrder),
			AngleUnits:       string(s.Metadata.AngleUnits),
			Timestamp:        s.Metadata.Timestamp,
			VolumeLabel:      s.Metadata.VolumeLabel,
		},
		AnglesList: make([]tomlStep, 0, len(s.Steps)),
	}
	for _, step := range s.Steps {
		doc.AnglesList = append(doc.AnglesList, tomlStep{
			Axis:         string(step.Axis),
			Angle:        step.Angle,
			Visible:      step.Visible,
			Name:         step.Name,
			NameEditable: step.NameEditable,
			Deletable:    step.Deletable,
		})
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by %s\n", version.Producer())
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return "", errors.Wrap(err, "failed to encode rotation sequence")
	}
	return buf.String(), nil
}

// FromTOML parses a rotation file. Older shapes are normalized by
// normalizeLegacy; everything else must be well formed.
func FromTOML(content string) (*Sequence, error) {
	var doc map[string]interface{}
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse rotation TOML")
	}
	if err := normalizeLegacy(doc); err != nil {
		return nil, err
	}
	return decodeDocument(doc)
}

// FromUI builds a sequence from the front end's JSON state, which is always
// ITK convention and radians: {"angles_list": [...], "mpr_origin": [x, y, z]}.
func FromUI(data map[string]interface{}, volumeLabel string) (*Sequence, error) {
	seq := NewSequence(volumeLabel)
	doc := map[string]interface{}{
		"metadata": map[string]interface{}{
			"coordinate_system": seq.Metadata.CoordinateSystem,
			"index_order":       string(seq.Metadata.IndexOrder),
			"angle_units":       string(seq.Metadata.AngleUnits),
			"timestamp":         seq.Metadata.Timestamp,
			"volume_label":      volumeLabel,
		},
		"angles_list": data["angles_list"],
		"mpr_origin":  data["mpr_origin"],
	}
	if err := normalizeLegacy(doc); err != nil {
		return nil, err
	}
	return decodeDocument(doc)
}

// ToUI is the inverse of FromUI: the result is in ITK convention and radians
// whatever the sequence is stored in
func (s *Sequence) ToUI() map[string]interface{} {
	n := convertedUnits(s.Normalized(), orientation.Radians)
	steps := make([]interface{}, 0, len(n.Steps))
	for _, step := range n.Steps {
		steps = append(steps, map[string]interface{}{
			"axis":          string(step.Axis),
			"angle":         step.Angle,
			"visible":       step.Visible,
			"name":          step.Name,
			"name_editable": step.NameEditable,
			"deletable":     step.Deletable,
		})
	}
	return map[string]interface{}{
		"angles_list": steps,
		"mpr_origin":  []interface{}{n.Origin.X, n.Origin.Y, n.Origin.Z},
	}
}
