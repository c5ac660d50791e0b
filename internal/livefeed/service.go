// Package livefeed is the scanner service: it turns server frames into
// scanner events, owns the live feed map, hold and pause state, plays the
// call queue, and carries out the user's outbound actions.
//
// Every method except QueueLength must be called on the run loop.
package livefeed

import (
	"encoding/base64"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/runloop"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/wsclient"
)

// skipDelay is how long Skip waits before the next call when asked to.
const skipDelay = time.Second

// Sender delivers frames to the scanner server.
type Sender interface {
	Send(m wsclient.Message) error
}

// CallSink receives calls that were played or downloaded, for archiving
// and logging. Implementations must not block.
type CallSink interface {
	CallPlayed(call *scanner.Call)
	CallDownloaded(call *scanner.Call)
}

// Sinks fans calls out to several sinks in order.
type Sinks []CallSink

func (ss Sinks) CallPlayed(call *scanner.Call) {
	for _, s := range ss {
		s.CallPlayed(call)
	}
}

func (ss Sinks) CallDownloaded(call *scanner.Call) {
	for _, s := range ss {
		s.CallDownloaded(call)
	}
}

type Options struct {
	Sched  runloop.Scheduler
	Sender Sender
	Player Player
	Pins   *PinStore
	Beeper Beeper
	Sink   CallSink
	// Autostart starts the live feed the first time a config arrives.
	Autostart bool
	Log       zerolog.Logger
}

type pair struct{ system, talkgroup int }

type Service struct {
	sched  runloop.Scheduler
	sender Sender
	player Player
	pins   *PinStore
	beeper Beeper
	sink   CallSink
	bus    *EventBus
	log    zerolog.Logger

	autostart   bool
	autostarted bool

	config     *scanner.Config
	lfMap      scanner.LivefeedMap
	categories []scanner.Category
	mode       scanner.LivefeedMode

	holdSys       bool
	holdTg        bool
	heldSystem    int
	heldTalkgroup int

	paused  bool
	queue   []*scanner.Call
	current *scanner.Call
	last    *scanner.Call
	gen     uint64

	avoidTimers map[pair]runloop.Timer
	skipTimer   runloop.Timer

	queueLen atomic.Int64
}

func New(opts Options) *Service {
	player := opts.Player
	if player == nil {
		player = NewTimedPlayer(opts.Sched)
	}
	pins := opts.Pins
	if pins == nil {
		pins = NewPinStore("")
	}
	return &Service{
		sched:       opts.Sched,
		sender:      opts.Sender,
		player:      player,
		pins:        pins,
		beeper:      opts.Beeper,
		sink:        opts.Sink,
		bus:         NewEventBus(),
		log:         opts.Log,
		autostart:   opts.Autostart,
		lfMap:       make(scanner.LivefeedMap),
		mode:        scanner.ModeOffline,
		avoidTimers: make(map[pair]runloop.Timer),
	}
}

// Subscribe registers an event handler. See EventBus.Subscribe.
func (s *Service) Subscribe(h func(scanner.Event)) func() {
	return s.bus.Subscribe(h)
}

// QueueLength is safe to call from any goroutine.
func (s *Service) QueueLength() int {
	return int(s.queueLen.Load())
}

func (s *Service) Config() *scanner.Config { return s.config }

func (s *Service) Mode() scanner.LivefeedMode { return s.mode }

func (s *Service) publish(e scanner.Event) {
	s.bus.Publish(e)
}

func (s *Service) send(cmd string, payload any, flag string) {
	if s.sender == nil {
		return
	}
	m, err := wsclient.NewMessage(cmd, payload, flag)
	if err != nil {
		s.log.Error().Err(err).Str("command", cmd).Msg("failed to encode frame")
		return
	}
	if err := s.sender.Send(m); err != nil {
		s.log.Warn().Err(err).Str("command", cmd).Msg("failed to send frame")
	}
}

// HandleConnect runs when the websocket comes up.
func (s *Service) HandleConnect() {
	s.publish(scanner.Event{Linked: scanner.Some(true)})
	s.send(wsclient.CommandVersion, nil, "")
	s.send(wsclient.CommandConfig, nil, "")
}

// HandleDisconnect runs when the websocket goes down.
func (s *Service) HandleDisconnect() {
	s.publish(scanner.Event{Linked: scanner.Some(false)})
}

// HandleMessage routes one server frame.
func (s *Service) HandleMessage(m wsclient.Message) {
	metrics.WSMessagesTotal.WithLabelValues(m.Command).Inc()

	switch m.Command {
	case wsclient.CommandCall:
		var call scanner.Call
		if err := m.Decode(&call); err != nil {
			s.log.Warn().Err(err).Msg("malformed call")
			return
		}
		s.handleCall(&call, m.Flag)

	case wsclient.CommandConfig:
		var cfg scanner.Config
		if err := m.Decode(&cfg); err != nil {
			s.log.Warn().Err(err).Msg("malformed config")
			return
		}
		s.handleConfig(&cfg)

	case wsclient.CommandExpired:
		s.publish(scanner.Event{Expired: scanner.Some(true)})

	case wsclient.CommandListCall:
		var list scanner.PlaybackList
		if err := m.Decode(&list); err != nil {
			s.log.Warn().Err(err).Msg("malformed playback list")
			return
		}
		s.publish(scanner.Event{PlaybackList: scanner.Some(&list)})

	case wsclient.CommandListenersCount:
		var n int
		if err := m.Decode(&n); err != nil {
			s.log.Warn().Err(err).Msg("malformed listeners count")
			return
		}
		s.publish(scanner.Event{Listeners: scanner.Some(n)})

	case wsclient.CommandMax:
		s.publish(scanner.Event{TooMany: scanner.Some(true)})

	case wsclient.CommandPin:
		s.publish(scanner.Event{Auth: scanner.Some(true)})

	case wsclient.CommandVersion:
		var v struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(m.Payload, &v); err == nil && v.Version != "" {
			s.log.Info().Str("server_version", v.Version).Msg("scanner server version")
		}

	default:
		s.log.Debug().Str("command", m.Command).Msg("ignoring unknown command")
	}
}

func (s *Service) handleConfig(cfg *scanner.Config) {
	s.config = cfg

	next := make(scanner.LivefeedMap)
	seen := make(map[pair]bool)
	for _, sys := range cfg.Systems {
		for _, tg := range sys.Talkgroups {
			lf, ok := s.lfMap.Lookup(sys.ID, tg.ID)
			if !ok {
				lf = scanner.Livefeed{Active: true}
			}
			next.Set(sys.ID, tg.ID, lf)
			seen[pair{sys.ID, tg.ID}] = true
		}
	}
	for p, t := range s.avoidTimers {
		if !seen[p] {
			t.Stop()
			delete(s.avoidTimers, p)
		}
	}
	s.lfMap = next
	s.categories = buildCategories(cfg, s.lfMap)

	s.publish(scanner.Event{
		Categories: scanner.Some(s.categories),
		Config:     scanner.Some(cfg),
		Map:        scanner.Some(s.lfMap.Clone()),
	})

	if s.mode == scanner.ModeOnline {
		s.sendLivefeedMap()
	}
	if s.autostart && !s.autostarted {
		s.autostarted = true
		if s.mode == scanner.ModeOffline {
			s.StartLivefeed()
		}
	}
}

func (s *Service) handleCall(call *scanner.Call, flag string) {
	switch flag {
	case wsclient.FlagPlay:
		s.playNow(call)
		s.publish(scanner.Event{PlaybackPending: scanner.Opt[int]{Present: true}})
		return
	case wsclient.FlagDownload:
		if s.sink != nil {
			s.sink.CallDownloaded(call)
		}
		return
	}

	if s.mode != scanner.ModeOnline || !s.accepts(call) {
		return
	}
	s.queue = append(s.queue, call)
	s.queueLen.Store(int64(len(s.queue)))
	if s.current == nil && !s.paused && s.skipTimer == nil {
		s.playNext()
		return
	}
	s.publish(scanner.Event{Queue: scanner.Some(len(s.queue))})
}

// accepts reports whether a live call passes the avoid and hold filters.
func (s *Service) accepts(call *scanner.Call) bool {
	if s.IsAvoided(call) && !s.IsPatched(call) {
		return false
	}
	if s.holdSys && call.System != s.heldSystem {
		return false
	}
	if s.holdTg && (call.System != s.heldSystem || call.Talkgroup != s.heldTalkgroup) {
		return false
	}
	return true
}

// filterQueue drops queued calls that no longer pass the filters.
func (s *Service) filterQueue() {
	kept := s.queue[:0]
	for _, c := range s.queue {
		if s.accepts(c) {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	s.queueLen.Store(int64(len(s.queue)))
}

func (s *Service) clearQueue() {
	s.queue = nil
	s.queueLen.Store(0)
}

func (s *Service) play(call *scanner.Call) {
	s.gen++
	gen := s.gen
	s.current = call
	s.last = call
	metrics.CallsPlayedTotal.Inc()

	s.publish(scanner.Event{
		Call:  scanner.Some(call),
		Queue: scanner.Some(len(s.queue)),
		Time:  scanner.Some(0.0),
	})
	if s.sink != nil {
		s.sink.CallPlayed(call)
	}

	s.player.Play(call, PlaybackHandler{
		Progress: func(seconds float64) {
			if gen == s.gen {
				s.publish(scanner.Event{Time: scanner.Some(seconds)})
			}
		},
		Ended: func() {
			if gen == s.gen {
				s.ended()
			}
		},
	})
}

func (s *Service) ended() {
	s.gen++
	s.current = nil
	s.publish(scanner.Event{Call: scanner.Some[*scanner.Call](nil), Time: scanner.Some(0.0)})
	if !s.paused {
		s.playNext()
	}
}

func (s *Service) playNext() {
	if len(s.queue) == 0 {
		return
	}
	call := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.queueLen.Store(int64(len(s.queue)))
	s.play(call)
}

// playNow interrupts the current call.
func (s *Service) playNow(call *scanner.Call) {
	s.halt()
	s.play(call)
}

// halt stops the player without publishing.
func (s *Service) halt() {
	s.gen++
	s.player.Stop()
	if s.skipTimer != nil {
		s.skipTimer.Stop()
		s.skipTimer = nil
	}
}

// Authenticate submits the access code.
func (s *Service) Authenticate(password string) {
	metrics.ActionsTotal.WithLabelValues("authenticate").Inc()
	s.send(wsclient.CommandPin, base64.StdEncoding.EncodeToString([]byte(password)), "")
}

// HoldSystem restricts the live feed to the system of the current or last
// call, or releases an existing hold.
func (s *Service) HoldSystem() {
	metrics.ActionsTotal.WithLabelValues("hold-system").Inc()
	call := s.reference()
	if call == nil && !s.holdSys {
		return
	}
	if s.holdSys {
		s.holdSys = false
	} else {
		s.holdSys = true
		s.holdTg = false
		s.heldSystem = call.System
	}
	s.applyHold()
}

// HoldTalkgroup restricts the live feed to the talkgroup of the current or
// last call, or releases an existing hold.
func (s *Service) HoldTalkgroup() {
	metrics.ActionsTotal.WithLabelValues("hold-talkgroup").Inc()
	call := s.reference()
	if call == nil && !s.holdTg {
		return
	}
	if s.holdTg {
		s.holdTg = false
	} else {
		s.holdTg = true
		s.holdSys = false
		s.heldSystem = call.System
		s.heldTalkgroup = call.Talkgroup
	}
	s.applyHold()
}

func (s *Service) applyHold() {
	s.filterQueue()
	if s.mode == scanner.ModeOnline {
		s.sendLivefeedMap()
	}
	s.publish(scanner.Event{
		HoldSys: scanner.Some(s.holdSys),
		HoldTg:  scanner.Some(s.holdTg),
		Queue:   scanner.Some(len(s.queue)),
	})
}

// reference is the call that call-relative actions apply to.
func (s *Service) reference() *scanner.Call {
	if s.current != nil {
		return s.current
	}
	return s.last
}

// Livefeed toggles the live feed. Leaving playback mode goes offline.
func (s *Service) Livefeed() {
	metrics.ActionsTotal.WithLabelValues("livefeed").Inc()
	switch s.mode {
	case scanner.ModeOnline:
		s.StopLivefeed()
	case scanner.ModePlayback:
		s.Stop()
		s.mode = scanner.ModeOffline
		s.publish(scanner.Event{LivefeedMode: scanner.Some(s.mode)})
	default:
		s.StartLivefeed()
	}
}

func (s *Service) StartLivefeed() {
	if s.mode == scanner.ModePlayback {
		s.Stop()
	}
	s.mode = scanner.ModeOnline
	s.sendLivefeedMap()
	s.publish(scanner.Event{LivefeedMode: scanner.Some(s.mode)})
}

func (s *Service) StopLivefeed() {
	s.mode = scanner.ModeOffline
	s.send(wsclient.CommandLivefeedMap, json.RawMessage("null"), "")
	s.Stop()
	s.publish(scanner.Event{LivefeedMode: scanner.Some(s.mode)})
}

// sendLivefeedMap tells the server which talkgroups to stream, narrowed to
// the held system or talkgroup.
func (s *Service) sendLivefeedMap() {
	wire := s.lfMap.Wire()
	switch {
	case s.holdTg:
		wire = map[int]map[int]bool{s.heldSystem: {s.heldTalkgroup: true}}
	case s.holdSys:
		wire = map[int]map[int]bool{s.heldSystem: wire[s.heldSystem]}
	}
	s.send(wsclient.CommandLivefeedMap, wire, "")
}

// Pause toggles pause. The playing call is suspended and the queue holds.
func (s *Service) Pause() {
	metrics.ActionsTotal.WithLabelValues("pause").Inc()
	s.paused = !s.paused
	s.player.SetPaused(s.paused)
	s.publish(scanner.Event{Pause: scanner.Some(s.paused)})
	if !s.paused && s.current == nil {
		s.playNext()
	}
}

// Replay plays the current call again, or the last one.
func (s *Service) Replay() {
	metrics.ActionsTotal.WithLabelValues("replay").Inc()
	if call := s.reference(); call != nil {
		s.playNow(call)
	}
}

// Play plays the given call now. Calls without audio are fetched first.
func (s *Service) Play(call *scanner.Call) {
	metrics.ActionsTotal.WithLabelValues("play").Inc()
	if call == nil {
		return
	}
	if len(call.Audio) == 0 {
		s.send(wsclient.CommandCall, call.ID, wsclient.FlagPlay)
		s.publish(scanner.Event{PlaybackPending: scanner.Some(call.ID)})
		return
	}
	s.playNow(call)
}

// LoadAndPlay enters playback mode and fetches a call by id.
func (s *Service) LoadAndPlay(id int) {
	metrics.ActionsTotal.WithLabelValues("load-and-play").Inc()
	if s.mode == scanner.ModeOnline {
		s.send(wsclient.CommandLivefeedMap, json.RawMessage("null"), "")
	}
	s.Stop()
	s.mode = scanner.ModePlayback
	s.send(wsclient.CommandCall, id, wsclient.FlagPlay)
	s.publish(scanner.Event{
		LivefeedMode:    scanner.Some(s.mode),
		PlaybackPending: scanner.Some(id),
	})
}

// SearchCalls asks the server for a page of archived calls.
func (s *Service) SearchCalls(opts scanner.SearchOptions) {
	metrics.ActionsTotal.WithLabelValues("search").Inc()
	s.send(wsclient.CommandListCall, opts, "")
}

// Skip ends the current call and moves to the next queued one.
func (s *Service) Skip(opts scanner.SkipOptions) {
	metrics.ActionsTotal.WithLabelValues("skip").Inc()
	s.halt()
	if s.current != nil {
		s.current = nil
		s.publish(scanner.Event{Call: scanner.Some[*scanner.Call](nil), Time: scanner.Some(0.0)})
	}
	if s.paused {
		return
	}
	if opts.Delay {
		s.skipTimer = s.sched.AfterFunc(skipDelay, func() {
			s.skipTimer = nil
			if s.current == nil && !s.paused {
				s.playNext()
			}
		})
		return
	}
	s.playNext()
}

// Stop ends playback and empties the queue.
func (s *Service) Stop() {
	metrics.ActionsTotal.WithLabelValues("stop").Inc()
	s.halt()
	s.clearQueue()
	if s.current != nil {
		s.current = nil
		s.publish(scanner.Event{Call: scanner.Some[*scanner.Call](nil), Time: scanner.Some(0.0)})
	}
	s.publish(scanner.Event{Queue: scanner.Some(0)})
}

// ReadPin returns the cached access code, or "".
func (s *Service) ReadPin() string {
	pin, err := s.pins.Read()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cached pin")
	}
	return pin
}

func (s *Service) SavePin(pin string) {
	if err := s.pins.Save(pin); err != nil {
		s.log.Warn().Err(err).Msg("failed to save pin")
	}
}

func (s *Service) ClearPin() {
	if err := s.pins.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear pin")
	}
}

// Beep emits an audible cue. An empty style means activate. Nothing is
// emitted when the server disabled keypad beeps.
func (s *Service) Beep(style scanner.BeepStyle) {
	if style == "" {
		style = scanner.BeepActivate
	}
	if s.config == nil || !s.config.KeypadBeeps.Present {
		return
	}
	metrics.BeepsTotal.WithLabelValues(string(style)).Inc()
	if s.beeper != nil {
		s.beeper.Beep(style)
	}
}
