package livefeed

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/runloop"
	"github.com/snarg/freescanner-live/internal/scanner"
)

// defaultCallLength is used when a call carries no timing information.
const defaultCallLength = 5 * time.Second

// PlaybackHandler receives player callbacks on the run loop.
type PlaybackHandler struct {
	Progress func(seconds float64)
	Ended    func()
}

// Player plays one call at a time. Play replaces whatever is playing.
type Player interface {
	Play(call *scanner.Call, h PlaybackHandler)
	Stop()
	SetPaused(paused bool)
}

// TimedPlayer simulates playback: it reports progress once a second and
// ends after the call's estimated length. Used when no audio output is
// configured.
type TimedPlayer struct {
	sched    runloop.Scheduler
	fallback time.Duration

	h        PlaybackHandler
	tick     runloop.Timer
	active   bool
	paused   bool
	elapsed  time.Duration
	duration time.Duration
}

func NewTimedPlayer(sched runloop.Scheduler) *TimedPlayer {
	return &TimedPlayer{sched: sched, fallback: defaultCallLength}
}

func (p *TimedPlayer) Play(call *scanner.Call, h PlaybackHandler) {
	p.Stop()
	p.h = h
	p.active = true
	p.elapsed = 0
	p.duration = call.Duration()
	if p.duration <= 0 {
		p.duration = p.fallback
	}
	if !p.paused {
		p.schedule()
	}
}

func (p *TimedPlayer) Stop() {
	if p.tick != nil {
		p.tick.Stop()
		p.tick = nil
	}
	p.active = false
}

func (p *TimedPlayer) SetPaused(paused bool) {
	p.paused = paused
	if paused {
		if p.tick != nil {
			p.tick.Stop()
			p.tick = nil
		}
		return
	}
	if p.active && p.tick == nil {
		p.schedule()
	}
}

func (p *TimedPlayer) schedule() {
	p.tick = p.sched.AfterFunc(time.Second, p.advance)
}

func (p *TimedPlayer) advance() {
	p.tick = nil
	p.elapsed += time.Second
	if p.elapsed >= p.duration {
		p.active = false
		if p.h.Ended != nil {
			p.h.Ended()
		}
		return
	}
	if p.h.Progress != nil {
		p.h.Progress(p.elapsed.Seconds())
	}
	p.schedule()
}

// CommandPlayer pipes each call's audio into an external command such as
// "ffplay -nodisp -autoexit -". Progress is reported once a second while the
// command runs; the call ends when the command exits.
type CommandPlayer struct {
	sched   runloop.Scheduler
	command string
	log     zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc

	progress *TimedPlayer
	paused   bool
}

func NewCommandPlayer(sched runloop.Scheduler, command string, log zerolog.Logger) *CommandPlayer {
	return &CommandPlayer{
		sched:    sched,
		command:  command,
		log:      log,
		progress: &TimedPlayer{sched: sched, fallback: 24 * time.Hour},
	}
}

func (p *CommandPlayer) Play(call *scanner.Call, h PlaybackHandler) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "sh", "-c", p.command)
	cmd.Stdin = bytes.NewReader(call.Audio)

	if err := cmd.Start(); err != nil {
		cancel()
		p.log.Warn().Err(err).Str("command", p.command).Int("call_id", call.ID).Msg("audio player failed to start")
		p.sched.Post(func() {
			if h.Ended != nil {
				h.Ended()
			}
		})
		return
	}

	p.mu.Lock()
	p.cmd = cmd
	p.cancel = cancel
	p.mu.Unlock()

	// Progress ticks only; the process exit ends the call.
	p.progress.Play(&scanner.Call{}, PlaybackHandler{Progress: h.Progress})
	if p.paused {
		p.progress.SetPaused(true)
		suspend(cmd)
	}

	go func() {
		err := cmd.Wait()
		p.sched.Post(func() {
			p.mu.Lock()
			current := p.cmd == cmd
			if current {
				p.cmd = nil
				p.cancel = nil
			}
			p.mu.Unlock()
			if !current {
				return
			}
			cancel()
			p.progress.Stop()
			if err != nil && ctx.Err() == nil {
				p.log.Warn().Err(err).Int("call_id", call.ID).Msg("audio player exited with error")
			}
			if h.Ended != nil {
				h.Ended()
			}
		})
	}()
}

func (p *CommandPlayer) Stop() {
	p.progress.Stop()
	p.mu.Lock()
	cmd, cancel := p.cmd, p.cancel
	p.cmd, p.cancel = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		resume(cmd)
		cancel()
	}
}

func (p *CommandPlayer) SetPaused(paused bool) {
	p.paused = paused
	p.progress.SetPaused(paused)
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return
	}
	if paused {
		suspend(cmd)
	} else {
		resume(cmd)
	}
}
