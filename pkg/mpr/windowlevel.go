package mpr

import "strings"

// WindowLevel is a display intensity range given as width and centre
type WindowLevel struct {
	Name   string  `json:"name"`
	Window float64 `json:"window"`
	Level  float64 `json:"level"`
}

func (w WindowLevel) Lower() float64 {
	return w.Level - w.Window/2
}

func (w WindowLevel) Upper() float64 {
	return w.Level + w.Window/2
}

// Presets are the standard CT windows, numbered from 1 in this order
var Presets = []WindowLevel{
	{"Abdomen", 400, 40},
	{"Lung", 1500, -700},
	{"Liver", 100, 110},
	{"Bone", 1500, 500},
	{"Brain", 85, 42},
	{"Stroke", 36, 28},
	{"Vascular", 800, 200},
	{"Subdural", 160, 60},
	{"Normalized", 0, 1},
}

// DefaultWindowLevel is the window new planes start with
var DefaultWindowLevel = Presets[0]

// PresetByID looks up a preset by its 1-based number
func PresetByID(id int) (WindowLevel, bool) {
	if id < 1 || id > len(Presets) {
		return WindowLevel{}, false
	}
	return Presets[id-1], true
}

// PresetByName looks up a preset ignoring case
func PresetByName(name string) (WindowLevel, bool) {
	for _, p := range Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return WindowLevel{}, false
}
