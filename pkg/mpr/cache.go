package mpr

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

// ReslicePlane is the display state of one view of one frame: the image it
// cuts, where and how it cuts it, and the intensity window it is shown with
type ReslicePlane struct {
	View   View
	Frame  int
	Image  *models.Image
	Matrix *mat.Dense
	Window float64
	Level  float64
}

// Planes are the three reslice planes of a frame
type Planes struct {
	Axial    *ReslicePlane
	Sagittal *ReslicePlane
	Coronal  *ReslicePlane
}

// Get returns the plane of view, or nil for an unknown view
func (p *Planes) Get(view View) *ReslicePlane {
	switch view {
	case Axial:
		return p.Axial
	case Sagittal:
		return p.Sagittal
	case Coronal:
		return p.Coronal
	}
	return nil
}

// All returns the planes in display order
func (p *Planes) All() []*ReslicePlane {
	return []*ReslicePlane{p.Axial, p.Sagittal, p.Coronal}
}

func (p *Planes) setMatrices(views ViewMatrices) {
	for _, plane := range p.All() {
		plane.Matrix = views[plane.View]
	}
}

// FrameCache lazily creates the planes of each frame and keeps every cached
// frame's matrices in step with the current rotation and origin, so switching
// frames during playback never shows a stale orientation. Entries are never
// evicted; a cine loop has tens of frames.
//
// FrameCache is not safe for concurrent use.
type FrameCache struct {
	frames []*models.Image
	planes map[int]*Planes
	wl     WindowLevel
}

// NewFrameCache creates a cache over frames. New planes start with wl.
func NewFrameCache(frames []*models.Image, wl WindowLevel) *FrameCache {
	return &FrameCache{
		frames: frames,
		planes: map[int]*Planes{},
		wl:     wl,
	}
}

// GetOrCreate returns the planes of frame, creating them at the frame centre
// with no rotation on first access. A frame the volume does not have gives
// (nil, false).
func (c *FrameCache) GetOrCreate(frame int) (*Planes, bool) {
	if p, ok := c.planes[frame]; ok {
		return p, true
	}
	if frame < 0 || frame >= len(c.frames) {
		return nil, false
	}

	img := c.frames[frame]
	views, err := ComputeViews(nil, img.Center())
	if err != nil {
		// An empty sequence always validates
		return nil, false
	}

	p := &Planes{}
	for _, view := range Views {
		plane := &ReslicePlane{
			View:   view,
			Frame:  frame,
			Image:  img,
			Matrix: views[view],
			Window: c.wl.Window,
			Level:  c.wl.Level,
		}
		switch view {
		case Axial:
			p.Axial = plane
		case Sagittal:
			p.Sagittal = plane
		case Coronal:
			p.Coronal = plane
		}
	}
	c.planes[frame] = p
	return p, true
}

// Peek returns the cached planes of frame without creating them
func (c *FrameCache) Peek(frame int) (*Planes, bool) {
	p, ok := c.planes[frame]
	return p, ok
}

// CachedFrames returns the cached frame indices in ascending order
func (c *FrameCache) CachedFrames() []int {
	frames := make([]int, 0, len(c.planes))
	for f := range c.planes {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	return frames
}

// UpdateAllCachedFrames recomputes, in place, the matrices of every cached
// frame from origin, seq and the per-step angle overrides. Nothing is changed
// if the sequence is invalid.
func (c *FrameCache) UpdateAllCachedFrames(origin r3.Vec, seq *rotation.Sequence, angles rotation.StepAngles) error {
	if seq != nil && len(angles) > 0 {
		seq = seq.WithAngles(angles)
	}
	views, err := ComputeViews(seq, origin)
	if err != nil {
		return err
	}
	for _, p := range c.planes {
		// Frames never share matrix storage
		own := ViewMatrices{}
		for v, m := range views {
			own[v] = mat.DenseCopyOf(m)
		}
		p.setMatrices(own)
	}
	return nil
}

// SetWindowLevel updates the intensity window of every plane of frame and
// leaves the matrices alone. It reports false for a frame that is not cached.
func (c *FrameCache) SetWindowLevel(frame int, window, level float64) bool {
	p, ok := c.planes[frame]
	if !ok {
		return false
	}
	for _, plane := range p.All() {
		plane.Window = window
		plane.Level = level
	}
	return true
}

// SetDefaultWindowLevel changes the window used for planes created from now on
func (c *FrameCache) SetDefaultWindowLevel(wl WindowLevel) {
	c.wl = wl
}
