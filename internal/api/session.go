package api

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/pkg/cine"
	"github.com/sudomakeinstall/cardio/pkg/mpr"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
	"github.com/sudomakeinstall/cardio/pkg/visualization"
)

var (
	ErrNoVolume           = errors.New("no volume is selected")
	ErrUnknownVolume      = errors.New("unknown volume")
	ErrPlaying            = errors.New("not allowed while the cine loop is playing")
	ErrNoSuchStep         = errors.New("no such rotation step")
	ErrFrameOutOfRange    = errors.New("frame out of range")
	ErrFileVolumeMismatch = errors.New("rotation file belongs to another volume")
)

// VolumeEntry is a loaded volume and whether the front end lists it
type VolumeEntry struct {
	Volume  *mpr.Volume
	Visible bool
}

// VolumeInfo describes a listed volume
type VolumeInfo struct {
	Label     string `json:"label"`
	NumFrames int    `json:"num_frames"`
}

// Options configure a Session
type Options struct {
	Store       rotation.Store
	Policy      mpr.OriginPolicy
	WindowLevel mpr.WindowLevel
	IndexOrder  orientation.AxisConvention
	AngleUnits  orientation.AngleUnits
	BPM         float64
	Log         logger.ILogger

	// Now stamps saved rotation files; defaults to time.Now
	Now func() time.Time
}

// State is a snapshot of the session sent to the front end. Revision grows
// with every change so clients can drop out-of-order pushes.
type State struct {
	Revision     uint64                 `json:"revision"`
	Volume       string                 `json:"volume"`
	Frame        int                    `json:"frame"`
	NumFrames    int                    `json:"num_frames"`
	Sequence     *rotation.Sequence     `json:"sequence"`
	UI           map[string]interface{} `json:"ui"`
	WindowLevel  mpr.WindowLevel        `json:"window_level"`
	OriginPolicy mpr.OriginPolicy       `json:"origin_policy"`
	Playing      bool                   `json:"playing"`
	BPM          float64                `json:"bpm"`
	Views        []ViewState            `json:"views"`
}

// ViewState is one plane as the front end draws it
type ViewState struct {
	View   mpr.View  `json:"view"`
	Matrix []float64 `json:"matrix"`
	Scroll []float64 `json:"scroll"`
	Window float64   `json:"window"`
	Level  float64   `json:"level"`
}

// StepPatch holds the fields of a rotation step an update changes
type StepPatch struct {
	Angle   *float64 `json:"angle"`
	Visible *bool    `json:"visible"`
	Name    *string  `json:"name"`
}

// Session is the single viewing session of a cardio process: the selected
// volume and frame, the rotation sequence and the display window. Every
// change holds the session lock through recomputing the planes, and the
// listener only hears about it after the lock is released.
type Session struct {
	opts    Options
	volumes []VolumeEntry

	mu       sync.Mutex
	revision uint64
	active   *mpr.Volume
	frame    int
	seq      *rotation.Sequence
	wl       mpr.WindowLevel
	player   *cine.Player
	listener func(State)

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewSession creates a session over volumes and selects the first one
func NewSession(volumes []VolumeEntry, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("session needs a rotation store")
	}
	if opts.Log == nil {
		opts.Log = &logger.NullLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BPM <= 0 {
		opts.BPM = cine.DefaultBPM
	}
	if opts.WindowLevel == (mpr.WindowLevel{}) {
		opts.WindowLevel = mpr.DefaultWindowLevel
	}

	seen := map[string]bool{}
	for _, v := range volumes {
		if seen[v.Volume.Label] {
			return nil, errors.Errorf("volume label %s is used twice", v.Volume.Label)
		}
		seen[v.Volume.Label] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{opts: opts, volumes: volumes, wl: opts.WindowLevel, ctx: ctx, cancel: cancel}
	if len(volumes) > 0 {
		if err := s.selectVolume(volumes[0].Volume); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

// SetListener registers fn to receive the state after every change
func (s *Session) SetListener(fn func(State)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Close stops playback and waits for the loop to finish
func (s *Session) Close() {
	s.mu.Lock()
	if s.player != nil {
		s.player.Pause()
	}
	s.mu.Unlock()
	s.cancel()
	s.running.Wait()
}

// Volumes lists the visible volumes in load order
func (s *Session) Volumes() []VolumeInfo {
	result := []VolumeInfo{}
	for _, v := range s.volumes {
		if v.Visible {
			result = append(result, VolumeInfo{Label: v.Volume.Label, NumFrames: v.Volume.NumFrames()})
		}
	}
	return result
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() State {
	st := State{
		Revision:     s.revision,
		WindowLevel:  s.wl,
		OriginPolicy: s.opts.Policy,
		BPM:          s.opts.BPM,
	}
	if s.active == nil {
		return st
	}
	st.Volume = s.active.Label
	st.Frame = s.frame
	st.NumFrames = s.active.NumFrames()
	st.Sequence = s.seq.Clone()
	st.UI = s.seq.ToUI()
	st.Playing = s.player.Playing()
	st.BPM = s.player.BPM()
	if views, err := s.views(); err == nil {
		st.Views = views
	}
	return st
}

// update runs fn under the lock and, if it succeeds, tells the listener
// about the new state once the lock is released
func (s *Session) update(fn func() error) (State, error) {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	s.revision++
	st := s.snapshot()
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(st)
	}
	return st, nil
}

// updateActive is update for changes that need a selected volume
func (s *Session) updateActive(fn func() error) (State, error) {
	return s.update(func() error {
		if s.active == nil {
			return ErrNoVolume
		}
		return fn()
	})
}

// apply recomputes every cached plane from next and commits it. On error the
// planes and the current sequence are unchanged.
func (s *Session) apply(next *rotation.Sequence) error {
	if err := s.active.UpdateSlicePositions(s.frame, next.Origin, next, nil); err != nil {
		return err
	}
	s.active.UpdateMPRWindowLevel(s.frame, s.wl.Window, s.wl.Level)
	s.seq = next
	resliceUpdates.Inc()
	return nil
}

func (s *Session) findVolume(label string) (*mpr.Volume, error) {
	for _, v := range s.volumes {
		if v.Volume.Label == label {
			return v.Volume, nil
		}
	}
	return nil, errors.Wrap(ErrUnknownVolume, label)
}

// centredSequence is an empty sequence in the configured convention and units
// with its origin at the centre of frame
func (s *Session) centredSequence(vol *mpr.Volume, frame int) (*rotation.Sequence, error) {
	seq := rotation.NewSequenceAt(vol.Label, s.opts.Now())
	centre, _ := vol.Center(frame)
	seq.SetITKOrigin(centre)
	if s.opts.IndexOrder != "" {
		if err := seq.ConvertConvention(s.opts.IndexOrder); err != nil {
			return nil, err
		}
	}
	if s.opts.AngleUnits != "" {
		if err := seq.ConvertUnits(s.opts.AngleUnits); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

func (s *Session) selectVolume(vol *mpr.Volume) error {
	seq, err := s.centredSequence(vol, 0)
	if err != nil {
		return err
	}
	bpm := s.opts.BPM
	if s.player != nil {
		bpm = s.player.BPM()
	}
	player, err := cine.NewPlayer(vol.NumFrames(), bpm, s.showFrame, s.opts.Log)
	if err != nil {
		return err
	}

	prevActive, prevFrame := s.active, s.frame
	s.active, s.frame = vol, 0
	vol.Cache().SetDefaultWindowLevel(s.wl)
	if err := s.apply(seq); err != nil {
		s.active, s.frame = prevActive, prevFrame
		return err
	}
	s.player = player
	s.opts.Log.Infof("Selected volume %s with %d frames", vol.Label, vol.NumFrames())
	return nil
}

// SelectVolume switches to the volume with label, starting from frame 0 with
// no rotation and the origin at the volume centre
func (s *Session) SelectVolume(label string) (State, error) {
	return s.update(func() error {
		vol, err := s.findVolume(label)
		if err != nil {
			return err
		}
		if s.player != nil && s.player.Playing() {
			return ErrPlaying
		}
		return s.selectVolume(vol)
	})
}

// SetFrame shows frame of the current volume. It is refused while playing.
func (s *Session) SetFrame(frame int) (State, error) {
	return s.updateActive(func() error {
		if s.player.Playing() {
			return ErrPlaying
		}
		if frame < 0 || frame >= s.active.NumFrames() {
			return errors.Wrapf(ErrFrameOutOfRange, "frame %d of %d", frame, s.active.NumFrames())
		}
		s.player.SetFrame(frame)
		return s.moveToFrame(frame)
	})
}

func (s *Session) moveToFrame(frame int) error {
	prev := s.frame
	s.frame = frame
	if err := s.apply(s.seq); err != nil {
		s.frame = prev
		return err
	}
	return nil
}

// showFrame is the cine render callback
func (s *Session) showFrame(frame int) {
	_, err := s.updateActive(func() error {
		return s.moveToFrame(frame)
	})
	if err != nil {
		s.opts.Log.Errorf("Failed to show cine frame %d: %v", frame, err)
	}
}

// AddRotation appends a zero-angle step about axis
func (s *Session) AddRotation(axis string) (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		if _, err := next.AddStep(orientation.EulerAxis(axis)); err != nil {
			return err
		}
		return s.apply(next)
	})
}

// UpdateRotation changes the fields of step index that patch sets. The angle
// is in the sequence's own units.
func (s *Session) UpdateRotation(index int, patch StepPatch) (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		if index < 0 || index >= len(next.Steps) {
			return errors.Wrapf(ErrNoSuchStep, "step %d", index)
		}
		if patch.Angle != nil {
			next.SetStepAngle(index, *patch.Angle)
		}
		if patch.Visible != nil {
			next.SetStepVisible(index, *patch.Visible)
		}
		if patch.Name != nil {
			if _, err := next.RenameStep(index, *patch.Name); err != nil {
				return err
			}
		}
		return s.apply(next)
	})
}

// RemoveRotation deletes step index
func (s *Session) RemoveRotation(index int) (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		found, err := next.RemoveStep(index)
		if err != nil {
			return err
		}
		if !found {
			return errors.Wrapf(ErrNoSuchStep, "step %d", index)
		}
		return s.apply(next)
	})
}

// ResetRotations removes every step and keeps the origin
func (s *Session) ResetRotations() (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		next.Reset()
		return s.apply(next)
	})
}

// ResetAll removes every step, moves the origin back to the frame centre and
// restores the configured window
func (s *Session) ResetAll() (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		next.Reset()
		centre, _ := s.active.Center(s.frame)
		next.SetITKOrigin(centre)

		prevWL := s.wl
		s.wl = s.opts.WindowLevel
		s.active.Cache().SetDefaultWindowLevel(s.wl)
		if err := s.apply(next); err != nil {
			s.wl = prevWL
			s.active.Cache().SetDefaultWindowLevel(prevWL)
			return err
		}
		return nil
	})
}

// SetConvention re-expresses the sequence in the given index order and angle
// units. Either may be empty to leave it unchanged. The planes do not move.
func (s *Session) SetConvention(indexOrder, angleUnits string) (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		if indexOrder != "" {
			if err := next.ConvertConvention(orientation.AxisConvention(indexOrder)); err != nil {
				return err
			}
		}
		if angleUnits != "" {
			if err := next.ConvertUnits(orientation.AngleUnits(angleUnits)); err != nil {
				return err
			}
		}
		return s.apply(next)
	})
}

// Drag scrolls view by delta mm along its normal
func (s *Session) Drag(view string, delta float64) (State, error) {
	return s.updateActive(func() error {
		v, err := mpr.ParseView(view)
		if err != nil {
			return err
		}
		bounds, _ := s.active.Bounds(s.frame)
		moved, err := mpr.Drag(s.seq.Origin, v, delta, s.seq, s.opts.Policy, bounds)
		if err != nil {
			return err
		}
		next := s.seq.Clone()
		next.Origin = moved
		return s.apply(next)
	})
}

// SetOrigin moves the origin, given in the sequence's component order
func (s *Session) SetOrigin(origin r3.Vec) (State, error) {
	return s.updateActive(func() error {
		next := s.seq.Clone()
		next.Origin = origin
		return s.apply(next)
	})
}

// SetWindowLevel changes the window of the current frame and of every frame
// shown from now on
func (s *Session) SetWindowLevel(wl mpr.WindowLevel) (State, error) {
	return s.updateActive(func() error {
		s.wl = wl
		s.active.Cache().SetDefaultWindowLevel(wl)
		for _, f := range s.active.Cache().CachedFrames() {
			s.active.UpdateMPRWindowLevel(f, wl.Window, wl.Level)
		}
		return nil
	})
}

// Views returns the current planes of the shown frame
func (s *Session) Views() ([]ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views()
}

func (s *Session) views() ([]ViewState, error) {
	if s.active == nil {
		return nil, ErrNoVolume
	}
	planes, ok := s.active.Planes(s.frame)
	if !ok {
		return nil, errors.Wrapf(ErrFrameOutOfRange, "frame %d", s.frame)
	}

	result := make([]ViewState, 0, len(mpr.Views))
	for _, plane := range planes.All() {
		scroll, err := mpr.ScrollVector(plane.View, s.seq)
		if err != nil {
			return nil, err
		}
		vs := ViewState{
			View:   plane.View,
			Scroll: []float64{scroll.X, scroll.Y, scroll.Z},
			Window: plane.Window,
			Level:  plane.Level,
		}
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				vs.Matrix = append(vs.Matrix, plane.Matrix.At(r, c))
			}
		}
		result = append(result, vs)
	}
	return result, nil
}

// RenderView samples one plane of the shown frame into a greyscale image
func (s *Session) RenderView(view string, width, height int) (image.Image, error) {
	v, err := mpr.ParseView(view)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNoVolume
	}
	planes, ok := s.active.Planes(s.frame)
	if !ok {
		return nil, errors.Wrapf(ErrFrameOutOfRange, "frame %d", s.frame)
	}
	plane := planes.Get(v)
	viewer := visualization.NewViewer(plane.Image)
	img, err := viewer.ExtractSlice(plane.Matrix, visualization.SliceOptions{
		Width:  width,
		Height: height,
		Window: plane.Window,
		Level:  plane.Level,
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Save writes the sequence to the store under a fresh timestamp and returns
// its path
func (s *Session) Save() (string, State, error) {
	var saved string
	st, err := s.updateActive(func() error {
		next := s.seq.Clone()
		next.Metadata.Timestamp = s.opts.Now().UTC().Format(rotation.TimestampFormat)
		p, err := rotation.Save(s.opts.Store, next)
		if err != nil {
			return err
		}
		s.seq = next
		saved = p
		s.opts.Log.Infof("Saved rotations to %s", p)
		return nil
	})
	return saved, st, err
}

// ListRotations lists the saved rotation files of a volume
func (s *Session) ListRotations(label string) ([]string, error) {
	if _, err := s.findVolume(label); err != nil {
		return nil, err
	}
	return rotation.List(s.opts.Store, label)
}

// Load replaces the sequence with the rotation file at path, which must
// belong to the current volume
func (s *Session) Load(path string) (State, error) {
	return s.updateActive(func() error {
		seq, err := rotation.Load(s.opts.Store, path)
		if err != nil {
			return err
		}
		if seq.Metadata.VolumeLabel != s.active.Label {
			return errors.Wrapf(ErrFileVolumeMismatch, "%s is for %s, not %s", path, seq.Metadata.VolumeLabel, s.active.Label)
		}
		if err := s.apply(seq); err != nil {
			return err
		}
		s.opts.Log.Infof("Loaded rotations from %s", path)
		return nil
	})
}

// Play starts the cine loop, optionally at a new bpm. Playing an already
// playing loop only changes the rate.
func (s *Session) Play(bpm float64) (State, error) {
	return s.updateActive(func() error {
		if bpm != 0 {
			if err := s.player.SetBPM(bpm); err != nil {
				return MakeBadRequestError(err)
			}
		}
		if s.player.Playing() {
			return nil
		}
		s.player.SetFrame(s.frame)

		s.running.Add(1)
		if err := s.player.Start(s.ctx, s.playbackStopped); err != nil {
			s.running.Done()
			return err
		}
		return nil
	})
}

func (s *Session) playbackStopped(err error) {
	defer s.running.Done()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.opts.Log.Errorf("Cine playback stopped: %v", err)
	}
}

// Pause stops the cine loop on the frame it is showing
func (s *Session) Pause() (State, error) {
	return s.updateActive(func() error {
		s.player.Pause()
		return nil
	})
}
