package mpr

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

// Volume is a labelled cine series of 3D frames with its MPR plane cache.
// Frames are stored with identity direction; the direction each frame was
// loaded with is kept in SourceDirections.
type Volume struct {
	Label            string
	Frames           []*models.Image
	SourceDirections [][3][3]float64

	cache *FrameCache
}

// NewVolume validates label and frames and resets every frame's direction so
// reslicing can work in index-aligned physical space. An oblique frame is an
// error.
func NewVolume(label string, frames []*models.Image, wl WindowLevel) (*Volume, error) {
	if err := models.ValidateLabel(label); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("volume %s has no frames", label)
	}

	v := &Volume{Label: label}
	for i, frame := range frames {
		if err := frame.Validate(); err != nil {
			return nil, errors.Wrapf(err, "volume %s frame %d", label, i)
		}
		reset, err := orientation.ResetDirection(frame)
		if err != nil {
			return nil, errors.Wrapf(err, "volume %s frame %d", label, i)
		}
		v.Frames = append(v.Frames, reset)
		v.SourceDirections = append(v.SourceDirections, frame.Direction)
	}
	v.cache = NewFrameCache(v.Frames, wl)
	return v, nil
}

func (v *Volume) NumFrames() int {
	return len(v.Frames)
}

// Frame returns frame i, or false if the volume has no such frame
func (v *Volume) Frame(i int) (*models.Image, bool) {
	if i < 0 || i >= len(v.Frames) {
		return nil, false
	}
	return v.Frames[i], true
}

// Center is the physical centre of frame
func (v *Volume) Center(frame int) (r3.Vec, bool) {
	img, ok := v.Frame(frame)
	if !ok {
		return r3.Vec{}, false
	}
	return img.Center(), true
}

// Bounds is the physical extent of frame as [xmin, xmax, ymin, ymax, zmin, zmax]
func (v *Volume) Bounds(frame int) ([6]float64, bool) {
	img, ok := v.Frame(frame)
	if !ok {
		return [6]float64{}, false
	}
	return img.Bounds(), true
}

// Direction is the direction matrix frame was loaded with
func (v *Volume) Direction(frame int) (*mat.Dense, bool) {
	if frame < 0 || frame >= len(v.SourceDirections) {
		return nil, false
	}
	d := v.SourceDirections[frame]
	return mat.NewDense(3, 3, []float64{
		d[0][0], d[0][1], d[0][2],
		d[1][0], d[1][1], d[1][2],
		d[2][0], d[2][1], d[2][2],
	}), true
}

// Planes returns the reslice planes of frame, creating them if needed
func (v *Volume) Planes(frame int) (*Planes, bool) {
	return v.cache.GetOrCreate(frame)
}

// Cache exposes the frame cache
func (v *Volume) Cache() *FrameCache {
	return v.cache
}

// UpdateSlicePositions makes sure frame is cached and then recomputes every
// cached frame from origin, seq and angles. A missing frame is a no-op.
func (v *Volume) UpdateSlicePositions(frame int, origin r3.Vec, seq *rotation.Sequence, angles rotation.StepAngles) error {
	if _, ok := v.cache.GetOrCreate(frame); !ok {
		return nil
	}
	return v.cache.UpdateAllCachedFrames(origin, seq, angles)
}

// UpdateMPRWindowLevel sets the window of frame's planes. A frame that has no
// planes yet is a no-op.
func (v *Volume) UpdateMPRWindowLevel(frame int, window, level float64) {
	v.cache.SetWindowLevel(frame, window, level)
}
