// Package pipeline owns the detector and the tracking controller and runs
// one detect-then-control tick per input frame.
//
// All state is confined to the goroutine running Run. Other goroutines
// change settings by submitting closures, which run between ticks.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"spot-tracker/internal/frame"
	"spot-tracker/internal/monitoring"
	"spot-tracker/internal/spot"
	"spot-tracker/internal/track"
)

// DefaultStatusEvery is the status publishing interval in ticks.
const DefaultStatusEvery = 15

// decodeErrorLogs limits how many JPEG decode failures are logged.
const decodeErrorLogs = 5

// ErrStopped is returned by Submit once Run has returned.
var ErrStopped = errors.New("pipeline stopped")

// Input is one frame to process. Frame takes precedence over JPEG. Width
// and Height describe JPEG input for the compressed fallback and default
// to the controller geometry.
type Input struct {
	Frame  *frame.Frame
	JPEG   []byte
	Width  int
	Height int
}

// Config for the pipeline
type Config struct {
	StatusEvery int // ticks between status publications, default 15

	// CompressedFallback estimates the spot from raw JPEG bytes when a
	// frame cannot be decoded.
	CompressedFallback bool
}

// Status is a snapshot published to the status sink.
type Status struct {
	Tracker      track.Status
	Detection    spot.Result
	Detector     spot.Stats
	LostCount    int // consecutive frames without a detection
	Threshold    int
	Ticks        uint64
	DecodeErrors uint64
}

// Pipeline runs the tracking loop
type Pipeline struct {
	det *spot.Detector
	ctl *track.Controller
	cfg Config

	cmds    chan command
	stopped chan struct{}
	once    sync.Once
	sink    func(Status)

	ticks        uint64
	decodeErrors uint64
	lastResult   spot.Result

	mu   sync.RWMutex
	last Status
}

type command struct {
	fn   func(*Pipeline)
	done chan struct{}
}

// New creates a pipeline around det and ctl. Both must not be used
// elsewhere afterwards.
func New(det *spot.Detector, ctl *track.Controller, cfg Config) *Pipeline {
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = DefaultStatusEvery
	}
	p := &Pipeline{
		det:     det,
		ctl:     ctl,
		cfg:     cfg,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
	p.last = p.status()
	return p
}

// SetStatusSink registers the status callback. It must be called before
// Run. The sink runs on the pipeline goroutine and must not block.
func (p *Pipeline) SetStatusSink(sink func(Status)) {
	p.sink = sink
}

// SetCompressedFallback toggles the compressed-domain fallback. Only use it
// from submitted closures once Run has started.
func (p *Pipeline) SetCompressedFallback(on bool) {
	p.cfg.CompressedFallback = on
}

// Detector returns the detector. Only use it from submitted closures.
func (p *Pipeline) Detector() *spot.Detector { return p.det }

// Controller returns the controller. Only use it from submitted closures.
func (p *Pipeline) Controller() *track.Controller { return p.ctl }

// Run processes inputs until ctx is done or inputs is closed.
func (p *Pipeline) Run(ctx context.Context, inputs <-chan Input) error {
	defer p.once.Do(func() { close(p.stopped) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-p.cmds:
			cmd.fn(p)
			close(cmd.done)
			p.publish()
		case in, ok := <-inputs:
			if !ok {
				return nil
			}
			p.Tick(in)
			if p.ticks%uint64(p.cfg.StatusEvery) == 0 {
				p.publish()
			}
		}
	}
}

// Submit runs fn on the pipeline goroutine between ticks and waits for it
// to finish.
func (p *Pipeline) Submit(ctx context.Context, fn func(*Pipeline)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case p.cmds <- cmd:
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs detection and control for one input. Run calls it for every
// input; call it directly only when not using Run.
func (p *Pipeline) Tick(in Input) spot.Result {
	p.ticks++

	var res spot.Result
	var w, h int
	switch {
	case in.Frame != nil:
		res = p.det.Detect(in.Frame)
		w, h = in.Frame.Width, in.Frame.Height
	case len(in.JPEG) > 0:
		res, w, h = p.detectJPEG(in)
	default:
		res = p.det.Detect(nil)
	}
	p.lastResult = res

	p.ctl.Process(track.Observation{
		Found:       res.Found,
		X:           res.X,
		Y:           res.Y,
		FrameWidth:  w,
		FrameHeight: h,
	})
	return res
}

func (p *Pipeline) detectJPEG(in Input) (spot.Result, int, int) {
	f, err := frame.DecodeJPEG(in.JPEG)
	if err == nil {
		return p.det.Detect(f), f.Width, f.Height
	}

	p.decodeErrors++
	if p.decodeErrors <= decodeErrorLogs {
		monitoring.Logf("[PIPE] %v (%d bytes)", err, len(in.JPEG))
	}
	if !p.cfg.CompressedFallback {
		return p.det.Detect(nil), 0, 0
	}

	w, h := in.Width, in.Height
	if w <= 0 || h <= 0 {
		cfg := p.ctl.Config()
		w, h = cfg.Width, cfg.Height
	}
	return p.det.DetectCompressed(in.JPEG, w, h), w, h
}

// Snapshot returns the most recently published status. It is safe for
// concurrent use.
func (p *Pipeline) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Pipeline) status() Status {
	return Status{
		Tracker:      p.ctl.Status(),
		Detection:    p.lastResult,
		Detector:     p.det.Stats(),
		LostCount:    p.det.LostCount(),
		Threshold:    p.det.Config().BrightnessThreshold,
		Ticks:        p.ticks,
		DecodeErrors: p.decodeErrors,
	}
}

func (p *Pipeline) publish() {
	st := p.status()
	p.mu.Lock()
	p.last = st
	p.mu.Unlock()
	if p.sink != nil {
		p.sink(st)
	}
}

// FromJPEG adapts a channel of JPEG frames into pipeline inputs. The
// returned channel closes when src closes or ctx is done.
func FromJPEG(ctx context.Context, src <-chan []byte) <-chan Input {
	out := make(chan Input)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- Input{JPEG: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// FromFrames adapts a channel of decoded frames into pipeline inputs.
func FromFrames(ctx context.Context, src <-chan *frame.Frame) <-chan Input {
	out := make(chan Input)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- Input{Frame: f}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
