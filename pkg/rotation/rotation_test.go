package rotation

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/version"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

func makeTestSequence(order orientation.AxisConvention, units orientation.AngleUnits) *Sequence {
	seq := NewSequenceAt("CCTA", time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))
	seq.Metadata.IndexOrder = order
	seq.Metadata.AngleUnits = units
	seq.Steps = []Step{
		{Axis: orientation.AxisX, Angle: 0.1234567890123, Visible: true, Name: "tilt", NameEditable: true, Deletable: true},
		{Axis: orientation.AxisY, Angle: -1.5707963267948966, Visible: false, Name: "", NameEditable: false, Deletable: true},
		{Axis: orientation.AxisZ, Angle: 33.3333333333333, Visible: true, Name: "spin \"quoted\"", NameEditable: true, Deletable: false},
	}
	seq.Origin = r3.Vec{X: 10.5, Y: -20.25, Z: 1e-7}
	return seq
}

func TestNewSequenceDefaults(t *testing.T) {
	seq := NewSequenceAt("CCTA", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	if seq.Metadata.CoordinateSystem != "LPS" {
		t.Errorf("Expected LPS, got %s", seq.Metadata.CoordinateSystem)
	}
	if seq.Metadata.IndexOrder != orientation.ITK {
		t.Errorf("Expected ITK default, got %s", seq.Metadata.IndexOrder)
	}
	if seq.Metadata.AngleUnits != orientation.Radians {
		t.Errorf("Expected radians default, got %s", seq.Metadata.AngleUnits)
	}
	if seq.Metadata.Timestamp != "2025-01-02T03:04:05.000Z" {
		t.Errorf("Unexpected timestamp %s", seq.Metadata.Timestamp)
	}
	if len(seq.Steps) != 0 {
		t.Errorf("Expected no steps, got %d", len(seq.Steps))
	}
	if seq.Origin != (r3.Vec{}) {
		t.Errorf("Expected zero origin, got %v", seq.Origin)
	}
	if err := seq.Validate(); err != nil {
		t.Errorf("Default sequence should validate: %v", err)
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	for _, order := range []orientation.AxisConvention{orientation.ITK, orientation.ROMA} {
		for _, units := range []orientation.AngleUnits{orientation.Degrees, orientation.Radians} {
			t.Run(fmt.Sprintf("%s_%s", order, units), func(t *testing.T) {
				seq := makeTestSequence(order, units)

				content, err := seq.ToTOML()
				if err != nil {
					t.Fatalf("ToTOML failed: %v", err)
				}
				restored, err := FromTOML(content)
				if err != nil {
					t.Fatalf("FromTOML failed: %v\n%s", err, content)
				}
				if !seq.Equal(restored, 1e-10) {
					t.Errorf("Round trip mismatch\noriginal: %+v\nrestored: %+v", seq, restored)
				}
			})
		}
	}
}

func TestTOMLEmptySequenceRoundTrip(t *testing.T) {
	seq := NewSequenceAt("", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	content, err := seq.ToTOML()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := FromTOML(content)
	if err != nil {
		t.Fatalf("FromTOML failed: %v\n%s", err, content)
	}
	if !seq.Equal(restored, 0) {
		t.Errorf("Empty sequence did not round trip: %+v", restored)
	}
}

func TestTOMLLayout(t *testing.T) {
	seq := makeTestSequence(orientation.ROMA, orientation.Degrees)
	content, err := seq.ToTOML()
	if err != nil {
		t.Fatal(err)
	}

	wantHeader := "# Generated by " + version.Producer() + "\n"
	if !strings.HasPrefix(content, wantHeader) {
		t.Errorf("Expected header %q, got %q", wantHeader, strings.SplitN(content, "\n", 2)[0])
	}

	var doc map[string]interface{}
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		t.Fatalf("Output is not valid TOML: %v", err)
	}
	meta, ok := doc["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected metadata table, got %T", doc["metadata"])
	}
	if meta["index_order"] != "roma" || meta["angle_units"] != "degrees" || meta["coordinate_system"] != "LPS" {
		t.Errorf("Unexpected metadata %v", meta)
	}
	if origin, ok := doc["mpr_origin"].([]interface{}); !ok || len(origin) != 3 {
		t.Errorf("Expected 3-element mpr_origin array, got %v", doc["mpr_origin"])
	}
	steps, ok := doc["angles_list"].([]interface{})
	if !ok || len(steps) != 3 {
		t.Fatalf("Expected 3 angles_list tables, got %v", doc["angles_list"])
	}
	first := steps[0].(map[string]interface{})
	for _, key := range []string{"axis", "angle", "visible", "name", "name_editable", "deletable"} {
		if _, ok := first[key]; !ok {
			t.Errorf("Step table is missing %q", key)
		}
	}
}

func TestFromTOMLLegacyShapes(t *testing.T) {
	content := `
mpr_origin = { x = 1.0, y = 2.0, z = 3.0 }

[metadata]
coordinate_system = "LPS"
axis_convention = "itk"
units = "radians"
timestamp = "2024-11-02T10:00:00"
volume_label = "CCTA"

[[angles_list]]
axes = "Y"
angles = [0.5]
visible = false

[[angles_list]]
axis = "Z"
angle = [1]
`
	seq, err := FromTOML(content)
	if err != nil {
		t.Fatalf("FromTOML failed on legacy input: %v", err)
	}
	if seq.Metadata.IndexOrder != orientation.ITK || seq.Metadata.AngleUnits != orientation.Radians {
		t.Errorf("Legacy metadata names not normalized: %+v", seq.Metadata)
	}
	if seq.Origin != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Expected origin (1,2,3), got %v", seq.Origin)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(seq.Steps))
	}
	if seq.Steps[0].Axis != orientation.AxisY || seq.Steps[0].Angle != 0.5 || seq.Steps[0].Visible {
		t.Errorf("Unexpected first step %+v", seq.Steps[0])
	}
	if seq.Steps[1].Axis != orientation.AxisZ || seq.Steps[1].Angle != 1 {
		t.Errorf("Unexpected second step %+v", seq.Steps[1])
	}
	if !seq.Steps[1].Visible || !seq.Steps[1].NameEditable || !seq.Steps[1].Deletable {
		t.Errorf("Expected default flags on second step, got %+v", seq.Steps[1])
	}
}

func TestFromTOMLRejectsMalformed(t *testing.T) {
	base := func(meta, steps, origin string) string {
		return "mpr_origin = " + origin + "\n\n[metadata]\n" + meta + "\n" + steps
	}
	goodMeta := "index_order = \"itk\"\nangle_units = \"degrees\"\n"
	goodStep := "[[angles_list]]\naxis = \"X\"\nangle = 10.0\n"

	cases := []struct {
		name    string
		content string
		target  error
	}{
		{"missing index_order", base("angle_units = \"degrees\"\n", goodStep, "[0.0, 0.0, 0.0]"), ErrInvalidMetadata},
		{"unknown index_order", base("index_order = \"ras\"\nangle_units = \"degrees\"\n", goodStep, "[0.0, 0.0, 0.0]"), ErrInvalidMetadata},
		{"missing units", base("index_order = \"itk\"\n", goodStep, "[0.0, 0.0, 0.0]"), ErrInvalidMetadata},
		{"unknown units", base("index_order = \"itk\"\nangle_units = \"turns\"\n", goodStep, "[0.0, 0.0, 0.0]"), ErrInvalidMetadata},
		{"wrong coordinate system", base("coordinate_system = \"RAS\"\n"+goodMeta, goodStep, "[0.0, 0.0, 0.0]"), ErrInvalidMetadata},
		{"bad axis", base(goodMeta, "[[angles_list]]\naxis = \"W\"\nangle = 1.0\n", "[0.0, 0.0, 0.0]"), ErrInvalidStep},
		{"missing axis", base(goodMeta, "[[angles_list]]\nangle = 1.0\n", "[0.0, 0.0, 0.0]"), ErrInvalidStep},
		{"string angle", base(goodMeta, "[[angles_list]]\naxis = \"X\"\nangle = \"ten\"\n", "[0.0, 0.0, 0.0]"), ErrInvalidStep},
		{"two element angle list", base(goodMeta, "[[angles_list]]\naxis = \"X\"\nangle = [1.0, 2.0]\n", "[0.0, 0.0, 0.0]"), ErrInvalidStep},
		{"short origin", base(goodMeta, goodStep, "[0.0, 0.0]"), ErrInvalidOrigin},
		{"text origin", base(goodMeta, goodStep, "[\"a\", 0.0, 0.0]"), ErrInvalidOrigin},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := FromTOML(c.content)
			if !errors.Is(err, c.target) {
				t.Errorf("Expected %v, got %v", c.target, err)
			}
		})
	}

	if _, err := FromTOML("angles_list = ["); err == nil {
		t.Error("Expected syntax error")
	}
	if _, err := FromTOML("mpr_origin = [0.0, 0.0, 0.0]\n"); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("Expected missing metadata to be rejected, got %v", err)
	}
}

func TestConventionRoundTrip(t *testing.T) {
	seq := makeTestSequence(orientation.ITK, orientation.Radians)
	original := seq.Clone()

	if err := seq.ConvertConvention(orientation.ROMA); err != nil {
		t.Fatal(err)
	}
	if seq.Metadata.IndexOrder != orientation.ROMA {
		t.Errorf("Expected roma, got %s", seq.Metadata.IndexOrder)
	}
	wantAxes := []orientation.EulerAxis{orientation.AxisZ, orientation.AxisY, orientation.AxisX}
	for i, step := range seq.Steps {
		if step.Axis != wantAxes[i] {
			t.Errorf("Step %d: expected axis %s, got %s", i, wantAxes[i], step.Axis)
		}
		if step.Angle != -original.Steps[i].Angle {
			t.Errorf("Step %d: expected negated angle %g, got %g", i, -original.Steps[i].Angle, step.Angle)
		}
	}
	if seq.Origin != (r3.Vec{X: original.Origin.Z, Y: original.Origin.Y, Z: original.Origin.X}) {
		t.Errorf("Expected origin components 0 and 2 swapped, got %v", seq.Origin)
	}
	if seq.ITKOrigin() != original.Origin {
		t.Errorf("ITKOrigin should undo the swap, got %v", seq.ITKOrigin())
	}

	if err := seq.ConvertConvention(orientation.ITK); err != nil {
		t.Fatal(err)
	}
	if !seq.Equal(original, 0) {
		t.Errorf("ITK->ROMA->ITK did not restore the sequence: %+v", seq)
	}

	if err := seq.ConvertConvention("lps"); !errors.Is(err, orientation.ErrInvalidConvention) {
		t.Errorf("Expected ErrInvalidConvention, got %v", err)
	}
	if !seq.Equal(original, 0) {
		t.Error("Failed conversion must leave the sequence untouched")
	}
}

func TestConvertUnits(t *testing.T) {
	seq := NewSequence("CCTA")
	seq.Steps = []Step{NewStep(orientation.AxisX), NewStep(orientation.AxisZ)}
	seq.Steps[0].Angle = math.Pi
	seq.Steps[1].Angle = -math.Pi / 4
	seq.Origin = r3.Vec{X: 1, Y: 2, Z: 3}

	if err := seq.ConvertUnits(orientation.Degrees); err != nil {
		t.Fatal(err)
	}
	if math.Abs(seq.Steps[0].Angle-180) > 1e-12 || math.Abs(seq.Steps[1].Angle+45) > 1e-12 {
		t.Errorf("Unexpected degree angles %g, %g", seq.Steps[0].Angle, seq.Steps[1].Angle)
	}
	if seq.Origin != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Unit conversion must not move the origin, got %v", seq.Origin)
	}

	if err := seq.ConvertUnits(orientation.Radians); err != nil {
		t.Fatal(err)
	}
	if math.Abs(seq.Steps[0].Angle-math.Pi) > 1e-12 {
		t.Errorf("Expected pi after converting back, got %g", seq.Steps[0].Angle)
	}
	if err := seq.ConvertUnits("grad"); !errors.Is(err, orientation.ErrInvalidUnits) {
		t.Errorf("Expected ErrInvalidUnits, got %v", err)
	}
}

func TestNormalizedLeavesOriginalUntouched(t *testing.T) {
	seq := makeTestSequence(orientation.ROMA, orientation.Degrees)
	n := seq.Normalized()

	if n.Metadata.IndexOrder != orientation.ITK || n.Metadata.AngleUnits != orientation.Degrees {
		t.Errorf("Unexpected normalized metadata %+v", n.Metadata)
	}
	if seq.Metadata.IndexOrder != orientation.ROMA {
		t.Error("Normalized must not mutate the receiver")
	}
	if n.Steps[0].Axis != orientation.AxisZ || n.Steps[0].Angle != -seq.Steps[0].Angle {
		t.Errorf("Unexpected normalized step %+v", n.Steps[0])
	}
	if n.Origin != seq.ITKOrigin() {
		t.Errorf("Normalized origin %v should equal ITKOrigin %v", n.Origin, seq.ITKOrigin())
	}
}

func TestWithAngles(t *testing.T) {
	seq := makeTestSequence(orientation.ITK, orientation.Degrees)
	out := seq.WithAngles(StepAngles{0: 45, 2: -10, 7: 99})

	if out.Steps[0].Angle != 45 || out.Steps[2].Angle != -10 {
		t.Errorf("Overrides not applied: %+v", out.Steps)
	}
	if out.Steps[1].Angle != seq.Steps[1].Angle {
		t.Error("Step without override should keep its angle")
	}
	if seq.Steps[0].Angle == 45 {
		t.Error("WithAngles must not mutate the receiver")
	}
}

func TestEditing(t *testing.T) {
	seq := NewSequence("CCTA")
	for _, axis := range []orientation.EulerAxis{"X", "y", "Z"} {
		if _, err := seq.AddStep(axis); err != nil {
			t.Fatalf("AddStep(%s) failed: %v", axis, err)
		}
	}
	if seq.Steps[1].Axis != orientation.AxisY {
		t.Errorf("Expected lower-case axis to be accepted as Y, got %s", seq.Steps[1].Axis)
	}
	if _, err := seq.AddStep("Q"); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("Expected ErrInvalidStep, got %v", err)
	}

	if !seq.SetStepAngle(2, 30) || seq.Steps[2].Angle != 30 {
		t.Error("SetStepAngle failed")
	}
	if seq.SetStepAngle(5, 1) {
		t.Error("SetStepAngle out of range should report a miss")
	}
	if !seq.SetStepVisible(0, false) || seq.Steps[0].Visible {
		t.Error("SetStepVisible failed")
	}

	seq.Steps[1].NameEditable = false
	if _, err := seq.RenameStep(1, "fixed"); !errors.Is(err, ErrNameNotEditable) {
		t.Errorf("Expected ErrNameNotEditable, got %v", err)
	}
	if found, err := seq.RenameStep(0, "long axis"); !found || err != nil || seq.Steps[0].Name != "long axis" {
		t.Errorf("RenameStep failed: %v %v", found, err)
	}

	seq.Steps[0].Deletable = false
	if _, err := seq.RemoveStep(0); !errors.Is(err, ErrNotDeletable) {
		t.Errorf("Expected ErrNotDeletable, got %v", err)
	}
	if found, err := seq.RemoveStep(1); !found || err != nil {
		t.Fatalf("RemoveStep failed: %v %v", found, err)
	}
	if len(seq.Steps) != 2 || seq.Steps[1].Axis != orientation.AxisZ {
		t.Errorf("Unexpected steps after removal: %+v", seq.Steps)
	}
	if found, _ := seq.RemoveStep(9); found {
		t.Error("RemoveStep out of range should report a miss")
	}

	seq.Reset()
	if len(seq.Steps) != 0 {
		t.Errorf("Expected reset to clear steps, got %d", len(seq.Steps))
	}
}

func TestUIRoundTrip(t *testing.T) {
	ui := map[string]interface{}{
		"angles_list": []interface{}{
			map[string]interface{}{"axes": "X", "angles": []interface{}{0.25}, "visible": true, "name": "a"},
			map[string]interface{}{"axis": "Z", "angle": 0},
		},
		"mpr_origin": []interface{}{1.0, 2.0, 3.0},
	}
	seq, err := FromUI(ui, "CCTA")
	if err != nil {
		t.Fatalf("FromUI failed: %v", err)
	}
	if len(seq.Steps) != 2 || seq.Steps[0].Angle != 0.25 || seq.Steps[1].Axis != orientation.AxisZ {
		t.Errorf("Unexpected steps %+v", seq.Steps)
	}
	if seq.Metadata.VolumeLabel != "CCTA" {
		t.Errorf("Expected volume label CCTA, got %s", seq.Metadata.VolumeLabel)
	}

	// A degree/ROMA sequence is reported to the UI as ITK/radians
	if err := seq.ConvertUnits(orientation.Degrees); err != nil {
		t.Fatal(err)
	}
	if err := seq.ConvertConvention(orientation.ROMA); err != nil {
		t.Fatal(err)
	}
	back, err := FromUI(seq.ToUI(), "CCTA")
	if err != nil {
		t.Fatalf("FromUI(ToUI()) failed: %v", err)
	}
	if back.Steps[0].Axis != orientation.AxisX || math.Abs(back.Steps[0].Angle-0.25) > 1e-12 {
		t.Errorf("Unexpected step after UI round trip %+v", back.Steps[0])
	}
	if back.Origin != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Unexpected origin after UI round trip %v", back.Origin)
	}

	if _, err := FromUI(map[string]interface{}{"mpr_origin": []interface{}{1.0}}, "CCTA"); !errors.Is(err, ErrInvalidOrigin) {
		t.Errorf("Expected ErrInvalidOrigin, got %v", err)
	}
}

func TestUITypedStepListUsesLegacyNames(t *testing.T) {
	ui := map[string]interface{}{
		"angles_list": []map[string]interface{}{
			{"axes": "Y", "angles": []float64{-0.5}},
			{"axis": "X", "angle": 1.0, "visible": false},
		},
	}
	seq, err := FromUI(ui, "CCTA")
	if err != nil {
		t.Fatalf("FromUI failed: %v", err)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(seq.Steps))
	}
	if seq.Steps[0].Axis != orientation.AxisY || seq.Steps[0].Angle != -0.5 {
		t.Errorf("Expected legacy Y step of -0.5, got %+v", seq.Steps[0])
	}
	if seq.Steps[1].Axis != orientation.AxisX || seq.Steps[1].Visible {
		t.Errorf("Unexpected second step %+v", seq.Steps[1])
	}
}

func ExampleFilePath() {
	p, err := FilePath("CCTA", "2025-03-14T09:26:53Z")
	fmt.Println(p, err)

	_, err = FilePath("../etc", "x")
	fmt.Println(err != nil)
	// Output:
	// CCTA/2025-03-14T09:26:53Z.toml <nil>
	// true
}
