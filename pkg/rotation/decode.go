package rotation

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// decodeDocument turns a generic (already legacy-normalized) document into a
// Sequence. Missing or unknown conventions and units are errors.
func decodeDocument(doc map[string]interface{}) (*Sequence, error) {
	metaRaw, ok := doc["metadata"]
	if !ok {
		return nil, errors.Wrap(ErrInvalidMetadata, "missing metadata table")
	}
	meta, ok := metaRaw.(map[string]interface{})
	if !ok {
		return nil, errors.Wrap(ErrInvalidMetadata, "metadata must be a table")
	}
	metadata, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	steps, err := decodeSteps(doc["angles_list"])
	if err != nil {
		return nil, err
	}

	origin, err := decodeOrigin(doc["mpr_origin"])
	if err != nil {
		return nil, err
	}

	seq := &Sequence{Metadata: metadata, Steps: steps, Origin: origin}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

func decodeMetadata(meta map[string]interface{}) (Metadata, error) {
	var m Metadata

	cs, err := optionalString(meta, "coordinate_system", CoordinateSystem)
	if err != nil {
		return m, errors.Wrap(ErrInvalidMetadata, err.Error())
	}
	if cs != CoordinateSystem {
		return m, errors.Wrapf(ErrInvalidMetadata, "coordinate_system must be %q, got %q", CoordinateSystem, cs)
	}
	m.CoordinateSystem = cs

	order, ok := meta["index_order"].(string)
	if !ok {
		return m, errors.Wrap(ErrInvalidMetadata, "index_order is missing or not a string")
	}
	if m.IndexOrder, err = orientation.ParseAxisConvention(order); err != nil {
		return m, errors.Wrap(ErrInvalidMetadata, err.Error())
	}

	units, ok := meta["angle_units"].(string)
	if !ok {
		return m, errors.Wrap(ErrInvalidMetadata, "angle_units is missing or not a string")
	}
	if m.AngleUnits, err = orientation.ParseAngleUnits(units); err != nil {
		return m, errors.Wrap(ErrInvalidMetadata, err.Error())
	}

	if m.Timestamp, err = optionalString(meta, "timestamp", ""); err != nil {
		return m, errors.Wrap(ErrInvalidMetadata, err.Error())
	}
	if m.VolumeLabel, err = optionalString(meta, "volume_label", ""); err != nil {
		return m, errors.Wrap(ErrInvalidMetadata, err.Error())
	}
	return m, nil
}

func decodeSteps(raw interface{}) ([]Step, error) {
	if raw == nil {
		return []Step{}, nil
	}

	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []map[string]interface{}:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidStep, "angles_list must be a list, got %T", raw)
	}

	steps := make([]Step, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Wrapf(ErrInvalidStep, "step %d must be a table, got %T", i, item)
		}
		step, err := decodeStep(m)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func decodeStep(m map[string]interface{}) (Step, error) {
	var step Step

	axisName, ok := m["axis"].(string)
	if !ok {
		return step, errors.Wrap(ErrInvalidStep, "axis is missing or not a string")
	}
	axis, err := orientation.ParseEulerAxis(axisName)
	if err != nil {
		return step, errors.Wrap(ErrInvalidStep, err.Error())
	}
	step.Axis = axis

	angleRaw, ok := m["angle"]
	if !ok {
		return step, errors.Wrap(ErrInvalidStep, "angle is missing")
	}
	if step.Angle, ok = toFloat(angleRaw); !ok {
		return step, errors.Wrapf(ErrInvalidStep, "angle must be a number, got %T", angleRaw)
	}

	if step.Visible, err = optionalBool(m, "visible", true); err != nil {
		return step, errors.Wrap(ErrInvalidStep, err.Error())
	}
	if step.Name, err = optionalString(m, "name", ""); err != nil {
		return step, errors.Wrap(ErrInvalidStep, err.Error())
	}
	if step.NameEditable, err = optionalBool(m, "name_editable", true); err != nil {
		return step, errors.Wrap(ErrInvalidStep, err.Error())
	}
	if step.Deletable, err = optionalBool(m, "deletable", true); err != nil {
		return step, errors.Wrap(ErrInvalidStep, err.Error())
	}
	return step, nil
}

func decodeOrigin(raw interface{}) (r3.Vec, error) {
	if raw == nil {
		return r3.Vec{}, nil
	}

	var values []interface{}
	switch v := raw.(type) {
	case []interface{}:
		values = v
	case []float64:
		for _, f := range v {
			values = append(values, f)
		}
	default:
		return r3.Vec{}, errors.Wrapf(ErrInvalidOrigin, "must be a list, got %T", raw)
	}
	if len(values) != 3 {
		return r3.Vec{}, errors.Wrapf(ErrInvalidOrigin, "must have exactly 3 components, got %d", len(values))
	}

	var xyz [3]float64
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return r3.Vec{}, errors.Wrapf(ErrInvalidOrigin, "component %d must be a number, got %T", i, v)
		}
		xyz[i] = f
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func optionalString(m map[string]interface{}, key, def string) (string, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalBool(m map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}
