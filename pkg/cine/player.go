// Package cine plays a volume's frames as a loop timed to a heart rate
package cine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/logger"
)

// DefaultBPM is the heart rate a new player starts at
const DefaultBPM = 60.0

// SleepChunk bounds how long a paused player keeps running
const SleepChunk = 20 * time.Millisecond

// ErrAlreadyPlaying is returned by Run on a player that is already running
var ErrAlreadyPlaying = errors.New("cine player is already playing")

// RenderFunc shows a frame. It runs on its own goroutine and the player
// starts no other render until it returns.
type RenderFunc func(frame int)

// Player computes the frame to show from elapsed wall-clock time, so a slow
// render drops frames instead of slowing the loop down
type Player struct {
	nframes int
	render  RenderFunc
	log     logger.ILogger

	mu    sync.Mutex
	bpm   float64
	frame int

	// run guards playing and gen. Each Run takes a new gen and keeps
	// looping only while it still owns the current one.
	run     sync.Mutex
	playing bool
	gen     uint64

	inFlight atomic.Bool

	// now is replaceable in tests
	now func() time.Time
}

// NewPlayer creates a paused player over nframes frames
func NewPlayer(nframes int, bpm float64, render RenderFunc, log logger.ILogger) (*Player, error) {
	if nframes <= 0 {
		return nil, errors.Errorf("cine loop needs at least one frame, got %d", nframes)
	}
	if err := validateBPM(bpm); err != nil {
		return nil, err
	}
	return &Player{
		nframes: nframes,
		render:  render,
		log:     log,
		bpm:     bpm,
		now:     time.Now,
	}, nil
}

func validateBPM(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return errors.Errorf("bpm must be a positive number, got %v", bpm)
	}
	return nil
}

// FPS is the playback rate: one heartbeat per pass through the loop
func FPS(bpm float64, nframes int) float64 {
	return bpm / 60 * float64(nframes)
}

// FrameAt is the frame shown elapsed after start frame 0 at bpm
func FrameAt(elapsed time.Duration, bpm float64, nframes int) int {
	n := int(math.Floor(elapsed.Seconds() * FPS(bpm, nframes)))
	return ((n % nframes) + nframes) % nframes
}

func (p *Player) BPM() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bpm
}

// SetBPM changes the rate. A running loop picks it up from the current frame.
func (p *Player) SetBPM(bpm float64) error {
	if err := validateBPM(bpm); err != nil {
		return err
	}
	p.mu.Lock()
	p.bpm = bpm
	p.mu.Unlock()
	return nil
}

// Frame is the frame most recently handed to the renderer
func (p *Player) Frame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// SetFrame moves a paused player. It reports false while playing.
func (p *Player) SetFrame(frame int) bool {
	if p.Playing() {
		return false
	}
	p.mu.Lock()
	p.frame = ((frame % p.nframes) + p.nframes) % p.nframes
	p.mu.Unlock()
	return true
}

// Step moves a paused player delta frames with wrap-around
func (p *Player) Step(delta int) bool {
	return p.SetFrame(p.Frame() + delta)
}

func (p *Player) Playing() bool {
	p.run.Lock()
	defer p.run.Unlock()
	return p.playing
}

// Pause stops a running loop at its next sleep chunk
func (p *Player) Pause() {
	p.run.Lock()
	p.playing = false
	p.run.Unlock()
}

// begin claims a new generation, failing if a loop already plays
func (p *Player) begin() (uint64, bool) {
	p.run.Lock()
	defer p.run.Unlock()
	if p.playing {
		return 0, false
	}
	p.playing = true
	p.gen++
	return p.gen, true
}

// active reports whether the loop of generation gen should keep playing
func (p *Player) active(gen uint64) bool {
	p.run.Lock()
	defer p.run.Unlock()
	return p.playing && p.gen == gen
}

// finish clears playing unless a newer loop has taken over
func (p *Player) finish(gen uint64) {
	p.run.Lock()
	if p.gen == gen {
		p.playing = false
	}
	p.run.Unlock()
}

// Run plays until Pause is called or ctx is done, continuing from the current
// frame. It waits for any in-flight render before returning.
func (p *Player) Run(ctx context.Context) error {
	gen, ok := p.begin()
	if !ok {
		return ErrAlreadyPlaying
	}
	return p.loop(ctx, gen)
}

// Start is Run on a new goroutine. The player reports Playing as soon as
// Start returns; done, if not nil, receives the loop's result. A loop still
// winding down from an earlier Pause exits without playing further frames.
func (p *Player) Start(ctx context.Context, done func(error)) error {
	gen, ok := p.begin()
	if !ok {
		return ErrAlreadyPlaying
	}
	go func() {
		err := p.loop(ctx, gen)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (p *Player) loop(ctx context.Context, gen uint64) error {
	var renders sync.WaitGroup
	defer renders.Wait()
	defer p.finish(gen)

	startFrame := p.Frame()
	bpm := p.BPM()
	start := p.now()
	last := startFrame
	p.log.Debugf("Cine playback started at frame %d, %.1f bpm", startFrame, bpm)

	for p.active(gen) {
		select {
		case <-ctx.Done():
			p.log.Debugf("Cine playback cancelled at frame %d", last)
			return ctx.Err()
		default:
		}

		// A rate change restarts timing from the frame on screen
		if current := p.BPM(); current != bpm {
			bpm = current
			startFrame = last
			start = p.now()
		}

		elapsed := p.now().Sub(start)
		frame := (startFrame + FrameAt(elapsed, bpm, p.nframes)) % p.nframes
		if frame != last && p.inFlight.CompareAndSwap(false, true) {
			if !p.active(gen) {
				p.inFlight.Store(false)
				break
			}
			last = frame
			p.mu.Lock()
			p.frame = frame
			p.mu.Unlock()

			renders.Add(1)
			go func() {
				defer renders.Done()
				defer p.inFlight.Store(false)
				p.render(frame)
			}()
		}

		wait := untilNextFrame(elapsed, bpm, p.nframes)
		if frame != last {
			// Render still busy, retry soon
			wait = SleepChunk
		}
		p.sleep(ctx, gen, wait)
	}
	p.log.Debugf("Cine playback paused at frame %d", last)
	return nil
}

// untilNextFrame is the time from elapsed to the next frame boundary
func untilNextFrame(elapsed time.Duration, bpm float64, nframes int) time.Duration {
	period := time.Duration(float64(time.Second) / FPS(bpm, nframes))
	if period <= 0 {
		return SleepChunk
	}
	d := period - elapsed%period
	if d <= 0 || d > period {
		d = period
	}
	return d
}

// sleep waits d in chunks of at most SleepChunk, returning early on pause or
// cancellation
func (p *Player) sleep(ctx context.Context, gen uint64, d time.Duration) {
	for d > 0 && p.active(gen) {
		chunk := d
		if chunk > SleepChunk {
			chunk = SleepChunk
		}
		t := time.NewTimer(chunk)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		d -= chunk
	}
}
