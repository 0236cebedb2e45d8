package rotation

import (
	"github.com/pkg/errors"
)

// normalizeLegacy is the one compatibility shim for older rotation data. It
// rewrites, in place, every older shape into the canonical one before any
// field is decoded:
//
//   - step "axes" is renamed to "axis"
//   - step "angles" is renamed to "angle"
//   - a step angle held in a single-element list is unwrapped
//   - metadata "axis_convention" is renamed to "index_order"
//   - metadata "units" is renamed to "angle_units"
//   - "mpr_origin" written as an {x, y, z} table becomes a 3-element array
//
// When both the old and the new name are present the new one wins. Anything
// else is left for the strict decoder to accept or reject.
func normalizeLegacy(doc map[string]interface{}) error {
	if meta, ok := doc["metadata"].(map[string]interface{}); ok {
		renameKey(meta, "axis_convention", "index_order")
		renameKey(meta, "units", "angle_units")
	}

	if origin, ok := doc["mpr_origin"].(map[string]interface{}); ok {
		doc["mpr_origin"] = []interface{}{origin["x"], origin["y"], origin["z"]}
	}

	var steps []interface{}
	switch list := doc["angles_list"].(type) {
	case []interface{}:
		steps = list
	case []map[string]interface{}:
		steps = make([]interface{}, 0, len(list))
		for _, m := range list {
			steps = append(steps, m)
		}
		doc["angles_list"] = steps
	default:
		return nil
	}
	for i, item := range steps {
		step, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if err := normalizeLegacyStep(step); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}
	return nil
}

func normalizeLegacyStep(step map[string]interface{}) error {
	renameKey(step, "axes", "axis")
	renameKey(step, "angles", "angle")

	switch list := step["angle"].(type) {
	case []interface{}:
		if len(list) != 1 {
			return errors.Wrapf(ErrInvalidStep, "angle list must hold exactly one value, got %d", len(list))
		}
		step["angle"] = list[0]
	case []float64:
		if len(list) != 1 {
			return errors.Wrapf(ErrInvalidStep, "angle list must hold exactly one value, got %d", len(list))
		}
		step["angle"] = list[0]
	}
	return nil
}

func renameKey(m map[string]interface{}, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
	}
	delete(m, from)
}
