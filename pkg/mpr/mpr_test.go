package mpr

import (
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

const tol = 1e-9

func vecEqual(a, b r3.Vec) bool {
	return scalar.EqualWithinAbs(a.X, b.X, tol) &&
		scalar.EqualWithinAbs(a.Y, b.Y, tol) &&
		scalar.EqualWithinAbs(a.Z, b.Z, tol)
}

func degreeSequence(steps ...rotation.Step) *rotation.Sequence {
	seq := rotation.NewSequence("CCTA")
	seq.Metadata.AngleUnits = orientation.Degrees
	seq.Steps = steps
	return seq
}

func step(axis orientation.EulerAxis, angle float64) rotation.Step {
	s := rotation.NewStep(axis)
	s.Angle = angle
	return s
}

// makeTestVolume has its centre at (10, 20, 30)
func makeTestVolume(t *testing.T, nframes int) *Volume {
	var frames []*models.Image
	for f := 0; f < nframes; f++ {
		img := models.NewImage([3]int{3, 5, 7}, [3]float64{1, 1, 1}, [3]float64{9, 18, 27})
		for i := range img.Voxels {
			img.Voxels[i] = float64(i + f)
		}
		frames = append(frames, img)
	}
	vol, err := NewVolume("CCTA", frames, DefaultWindowLevel)
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}
	return vol
}

func TestEmptySequenceGivesBaseTransforms(t *testing.T) {
	origin := r3.Vec{X: 1, Y: 2, Z: 3}
	for _, seq := range []*rotation.Sequence{nil, rotation.NewSequence("CCTA")} {
		views, err := ComputeViews(seq, origin)
		if err != nil {
			t.Fatal(err)
		}
		for _, view := range Views {
			base, _ := BaseTransform(view)
			m := views[view]
			if !mat.EqualApprox(orientation.ResliceRotation(m), base, tol) {
				t.Errorf("%s: expected base transform\n%v\ngot\n%v", view, mat.Formatted(base), mat.Formatted(m))
			}
			if orientation.ResliceOrigin(m) != origin {
				t.Errorf("%s: expected origin %v, got %v", view, origin, orientation.ResliceOrigin(m))
			}
			if m.At(3, 3) != 1 || m.At(3, 0) != 0 {
				t.Errorf("%s: bad last row", view)
			}
		}
	}
}

func TestInvisibleStepIsIdentity(t *testing.T) {
	hidden := step(orientation.AxisX, 73)
	hidden.Visible = false

	c, err := CumulativeRotation(degreeSequence(hidden))
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(c, orientation.Identity3(), tol) {
		t.Errorf("Expected identity, got\n%v", mat.Formatted(c))
	}

	// A hidden step in the middle leaves the others composed in order
	withHidden, _ := CumulativeRotation(degreeSequence(step(orientation.AxisZ, 20), hidden, step(orientation.AxisY, 40)))
	without, _ := CumulativeRotation(degreeSequence(step(orientation.AxisZ, 20), step(orientation.AxisY, 40)))
	if !mat.EqualApprox(withHidden, without, tol) {
		t.Error("Hidden step changed the composition of the visible ones")
	}
}

func TestCumulativeRotationOrder(t *testing.T) {
	c, err := CumulativeRotation(degreeSequence(step(orientation.AxisX, 90), step(orientation.AxisZ, 90)))
	if err != nil {
		t.Fatal(err)
	}

	var want mat.Dense
	want.Mul(
		orientation.EulerAngleToRotationMatrix(orientation.AxisX, 90, orientation.Degrees),
		orientation.EulerAngleToRotationMatrix(orientation.AxisZ, 90, orientation.Degrees),
	)
	if !mat.EqualApprox(c, &want, tol) {
		t.Errorf("Expected Rx*Rz\n%v\ngot\n%v", mat.Formatted(&want), mat.Formatted(c))
	}

	// Rx(90) * Rz(90) takes +X to +Z
	got := orientation.MulVec3(c, r3.Vec{X: 1})
	if !vecEqual(got, r3.Vec{Z: 1}) {
		t.Errorf("Expected (0,0,1), got %v", got)
	}
}

func TestRadiansAndDegreesAgree(t *testing.T) {
	deg, _ := CumulativeRotation(degreeSequence(step(orientation.AxisY, 30)))

	rad := rotation.NewSequence("CCTA")
	rad.Steps = []rotation.Step{step(orientation.AxisY, orientation.Degrees.ToRadians(30))}
	radC, _ := CumulativeRotation(rad)

	if !mat.EqualApprox(deg, radC, tol) {
		t.Error("Degree and radian sequences of the same rotation differ")
	}
}

func TestROMASequenceMatchesITK(t *testing.T) {
	itk := degreeSequence(step(orientation.AxisX, 25), step(orientation.AxisY, -10))
	itk.Origin = r3.Vec{X: 1, Y: 2, Z: 3}

	roma := itk.Clone()
	if err := roma.ConvertConvention(orientation.ROMA); err != nil {
		t.Fatal(err)
	}

	a, err := ComputeViews(itk, itk.Origin)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ComputeViews(roma, roma.Origin)
	if err != nil {
		t.Fatal(err)
	}
	for _, view := range Views {
		if !mat.EqualApprox(a[view], b[view], tol) {
			t.Errorf("%s: ROMA and ITK views differ\n%v\n%v", view, mat.Formatted(a[view]), mat.Formatted(b[view]))
		}
	}
}

func TestComputeViewsRejectsInvalidSequence(t *testing.T) {
	seq := rotation.NewSequence("CCTA")
	seq.Metadata.AngleUnits = "turns"
	if _, err := ComputeViews(seq, r3.Vec{}); !errors.Is(err, rotation.ErrInvalidMetadata) {
		t.Errorf("Expected ErrInvalidMetadata, got %v", err)
	}
}

func TestScrollVector(t *testing.T) {
	cases := []struct {
		view View
		seq  *rotation.Sequence
		want r3.Vec
	}{
		{Axial, nil, r3.Vec{Z: 1}},
		{Sagittal, nil, r3.Vec{X: 1}},
		{Coronal, nil, r3.Vec{Y: 1}},
		{Sagittal, degreeSequence(step(orientation.AxisZ, 90)), r3.Vec{Y: 1}},
		{Axial, degreeSequence(step(orientation.AxisX, 90)), r3.Vec{Y: -1}},
	}
	for _, c := range cases {
		got, err := ScrollVector(c.view, c.seq)
		if err != nil {
			t.Fatal(err)
		}
		if !vecEqual(got, c.want) {
			t.Errorf("%s: expected %v, got %v", c.view, c.want, got)
		}
	}

	if _, err := ScrollVector("oblique", nil); !errors.Is(err, ErrInvalidView) {
		t.Errorf("Expected ErrInvalidView, got %v", err)
	}
}

func TestDrag(t *testing.T) {
	bounds := [6]float64{0, 10, 0, 10, 0, 10}
	origin := r3.Vec{X: 5, Y: 5, Z: 5}

	got, err := Drag(origin, Axial, 20, nil, Unbounded, bounds)
	if err != nil {
		t.Fatal(err)
	}
	if !vecEqual(got, r3.Vec{X: 5, Y: 5, Z: 25}) {
		t.Errorf("Unbounded drag: expected (5,5,25), got %v", got)
	}

	got, _ = Drag(origin, Axial, 20, nil, Clamp, bounds)
	if !vecEqual(got, r3.Vec{X: 5, Y: 5, Z: 10}) {
		t.Errorf("Clamped drag: expected (5,5,10), got %v", got)
	}

	got, _ = Drag(origin, Coronal, -2.5, nil, Clamp, bounds)
	if !vecEqual(got, r3.Vec{X: 5, Y: 2.5, Z: 5}) {
		t.Errorf("Coronal drag: expected (5,2.5,5), got %v", got)
	}

	// ROMA origins are swapped in and back out again
	roma := rotation.NewSequence("CCTA")
	roma.Metadata.IndexOrder = orientation.ROMA
	got, _ = Drag(r3.Vec{X: 1, Y: 2, Z: 3}, Sagittal, 1, roma, Unbounded, bounds)
	if !vecEqual(got, r3.Vec{X: 1, Y: 2, Z: 4}) {
		t.Errorf("ROMA drag: expected (1,2,4), got %v", got)
	}

	if _, err := Drag(origin, "bad", 1, nil, Unbounded, bounds); err == nil {
		t.Error("Expected error for unknown view")
	}
}

func TestParsers(t *testing.T) {
	if v, err := ParseView("Sagittal"); err != nil || v != Sagittal {
		t.Errorf("ParseView: %v %v", v, err)
	}
	if _, err := ParseView("oblique"); err == nil {
		t.Error("Expected ParseView to fail")
	}
	if p, err := ParseOriginPolicy(""); err != nil || p != Unbounded {
		t.Errorf("Expected empty policy to be unbounded, got %v %v", p, err)
	}
	if p, err := ParseOriginPolicy("CLAMP"); err != nil || p != Clamp {
		t.Errorf("ParseOriginPolicy: %v %v", p, err)
	}
	if _, err := ParseOriginPolicy("wrap"); err == nil {
		t.Error("Expected ParseOriginPolicy to fail")
	}
}

func TestVolumeCentreScenario(t *testing.T) {
	vol := makeTestVolume(t, 1)

	centre, ok := vol.Center(0)
	if !ok || !vecEqual(centre, r3.Vec{X: 10, Y: 20, Z: 30}) {
		t.Fatalf("Expected centre (10,20,30), got %v", centre)
	}

	planes, ok := vol.Planes(0)
	if !ok {
		t.Fatal("Expected planes for frame 0")
	}
	axial := planes.Axial.Matrix
	if !vecEqual(orientation.ResliceOrigin(axial), r3.Vec{X: 10, Y: 20, Z: 30}) {
		t.Errorf("Expected axial origin (10,20,30), got %v", orientation.ResliceOrigin(axial))
	}
	las, _ := orientation.AxcodeTransformMatrix("LPS", "LAS")
	if !mat.EqualApprox(orientation.ResliceRotation(axial), las, tol) {
		t.Errorf("Expected LPS->LAS block, got\n%v", mat.Formatted(axial))
	}
	if planes.Axial.Window != 400 || planes.Axial.Level != 40 {
		t.Errorf("Expected default abdomen window, got %g/%g", planes.Axial.Window, planes.Axial.Level)
	}
}

func TestFrameCache(t *testing.T) {
	vol := makeTestVolume(t, 4)
	cache := vol.Cache()

	p0, ok := cache.GetOrCreate(0)
	if !ok {
		t.Fatal("Expected frame 0")
	}
	again, _ := cache.GetOrCreate(0)
	if again != p0 {
		t.Error("GetOrCreate should return the cached planes")
	}
	if _, ok := cache.GetOrCreate(4); ok {
		t.Error("Frame 4 does not exist")
	}
	if _, ok := cache.GetOrCreate(-1); ok {
		t.Error("Frame -1 does not exist")
	}
	cache.GetOrCreate(2)

	frames := cache.CachedFrames()
	if len(frames) != 2 || frames[0] != 0 || frames[1] != 2 {
		t.Errorf("Expected cached frames [0 2], got %v", frames)
	}

	seq := degreeSequence(step(orientation.AxisZ, 0))
	origin := r3.Vec{X: 1, Y: 2, Z: 3}
	if err := vol.UpdateSlicePositions(2, origin, seq, rotation.StepAngles{0: 90}); err != nil {
		t.Fatal(err)
	}

	want, _ := ComputeViews(seq.WithAngles(rotation.StepAngles{0: 90}), origin)
	for _, f := range []int{0, 2} {
		p, _ := cache.Peek(f)
		for _, plane := range p.All() {
			if !mat.EqualApprox(plane.Matrix, want[plane.View], tol) {
				t.Errorf("Frame %d %s not updated", f, plane.View)
			}
		}
	}
	p0Axial, _ := cache.Peek(0)
	p2Axial, _ := cache.Peek(2)
	if p0Axial.Axial.Matrix == p2Axial.Axial.Matrix {
		t.Error("Frames should not share matrix storage")
	}
	if _, ok := cache.Peek(1); ok {
		t.Error("Updating should not create uncached frames")
	}

	// Window/level leaves the matrices alone
	before := mat.DenseCopyOf(p0.Coronal.Matrix)
	vol.UpdateMPRWindowLevel(0, 1500, -700)
	if p0.Coronal.Window != 1500 || p0.Coronal.Level != -700 {
		t.Errorf("Window/level not applied: %g/%g", p0.Coronal.Window, p0.Coronal.Level)
	}
	if !mat.Equal(before, p0.Coronal.Matrix) {
		t.Error("Window/level changed the reslice matrix")
	}
	p2, _ := cache.Peek(2)
	if p2.Coronal.Window != 400 {
		t.Error("Window/level should apply only to the requested frame")
	}

	// Misses are no-ops
	vol.UpdateMPRWindowLevel(3, 1, 1)
	if err := vol.UpdateSlicePositions(9, origin, seq, nil); err != nil {
		t.Errorf("Expected missing frame to be a no-op, got %v", err)
	}
}

func TestUpdateAllCachedFramesInvalidSequence(t *testing.T) {
	vol := makeTestVolume(t, 1)
	p, _ := vol.Planes(0)
	before := mat.DenseCopyOf(p.Axial.Matrix)

	bad := rotation.NewSequence("CCTA")
	bad.Steps = []rotation.Step{{Axis: "W"}}
	if err := vol.Cache().UpdateAllCachedFrames(r3.Vec{}, bad, nil); err == nil {
		t.Error("Expected invalid sequence to fail")
	}
	if !mat.Equal(before, p.Axial.Matrix) {
		t.Error("Failed update must leave the planes untouched")
	}
}

func TestVolumeKeepsSourceDirection(t *testing.T) {
	img := models.NewImage([3]int{2, 2, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	img.Direction = [3][3]float64{{-1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	vol, err := NewVolume("Flipped", []*models.Image{img}, DefaultWindowLevel)
	if err != nil {
		t.Fatal(err)
	}

	d, ok := vol.Direction(0)
	if !ok || d.At(0, 0) != -1 {
		t.Errorf("Expected source direction, got %v", d)
	}
	if vol.Frames[0].Direction != [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		t.Errorf("Expected identity direction after reset, got %v", vol.Frames[0].Direction)
	}
	if _, ok := vol.Direction(1); ok {
		t.Error("Expected miss for frame 1")
	}

	oblique := models.NewImage([3]int{2, 2, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	oblique.Direction = [3][3]float64{{0.6, 0.8, 0}, {-0.8, 0.6, 0}, {0, 0, 1}}
	if _, err := NewVolume("Oblique", []*models.Image{oblique}, DefaultWindowLevel); !errors.Is(err, orientation.ErrNotAxisAligned) {
		t.Errorf("Expected ErrNotAxisAligned, got %v", err)
	}
	if _, err := NewVolume("bad label", []*models.Image{img}, DefaultWindowLevel); err == nil {
		t.Error("Expected invalid label to fail")
	}
	if _, err := NewVolume("Empty", nil, DefaultWindowLevel); err == nil {
		t.Error("Expected empty volume to fail")
	}
}

func TestWindowLevelPresets(t *testing.T) {
	lung, ok := PresetByName("lung")
	if !ok {
		t.Fatal("Expected lung preset")
	}
	if lung.Lower() != -1450 || lung.Upper() != 50 {
		t.Errorf("Expected lung range [-1450, 50], got [%g, %g]", lung.Lower(), lung.Upper())
	}
	if p, ok := PresetByID(4); !ok || p.Name != "Bone" {
		t.Errorf("Expected preset 4 to be Bone, got %v", p)
	}
	if _, ok := PresetByID(10); ok {
		t.Error("Expected no preset 10")
	}
	if len(Presets) != 9 {
		t.Errorf("Expected 9 presets, got %d", len(Presets))
	}
}
