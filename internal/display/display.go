// Package display keeps the live-feed display state: the current, previous
// and recent calls, the derived display strings, and the gated user
// actions. It mirrors what a scanner's front panel shows.
//
// Event handling, actions and timer callbacks must all run on the run loop.
// Snapshot and Subscribe are safe from any goroutine.
package display

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/runloop"
	"github.com/snarg/freescanner-live/internal/scanner"
)

var ErrUnknownAction = errors.New("unknown action")

const (
	historySize  = 5
	replayWindow = time.Second

	timeFormat24 = "15:04"
	timeFormat12 = "3:04 PM"

	idleTalkgroupName = "FreeScanner Live"
)

// EventSource delivers scanner events.
type EventSource interface {
	Subscribe(h func(scanner.Event)) (cancel func())
}

// Actions are the outbound requests and local queries the display uses.
type Actions interface {
	Authenticate(password string)
	Avoid(opts scanner.AvoidOptions)
	HoldSystem()
	HoldTalkgroup()
	Livefeed()
	Pause()
	Replay()
	Play(call *scanner.Call)
	Skip(opts scanner.SkipOptions)
	Stop()

	IsAvoided(call *scanner.Call) bool
	IsAvoidedTimer(call *scanner.Call) int
	IsPatched(call *scanner.Call) bool

	ReadPin() string
	SavePin(pin string)
	ClearPin()
	Beep(style scanner.BeepStyle)
}

// Snapshot is an immutable copy of everything the display shows.
type Snapshot struct {
	Auth             bool   `json:"auth"`
	AuthError        string `json:"authError,omitempty"`
	AuthInputEnabled bool   `json:"authInputEnabled"`
	// FocusAuth is set on the snapshot that follows an action redirected to
	// the access code input.
	FocusAuth bool `json:"focusAuth,omitempty"`

	Avoided  bool   `json:"avoided"`
	Branding string `json:"branding"`
	Email    string `json:"email"`

	Call              *scanner.Call   `json:"call,omitempty"`
	CallDate          *time.Time      `json:"callDate,omitempty"`
	CallError         string          `json:"callError"`
	CallFrequency     string          `json:"callFrequency"`
	CallHistory       []*scanner.Call `json:"callHistory"`
	CallPrevious      *scanner.Call   `json:"callPrevious,omitempty"`
	CallProgress      time.Time       `json:"callProgress"`
	CallQueue         int             `json:"callQueue"`
	CallSpike         string          `json:"callSpike"`
	CallSystem        string          `json:"callSystem"`
	CallTag           string          `json:"callTag"`
	CallTalkgroup     string          `json:"callTalkgroup"`
	CallTalkgroupID   string          `json:"callTalkgroupId"`
	CallTalkgroupName string          `json:"callTalkgroupName"`
	CallTime          float64         `json:"callTime"`
	CallUnit          string          `json:"callUnit"`

	Clock      time.Time `json:"clock"`
	TimeFormat string    `json:"timeFormat"`
	Dimmed     bool      `json:"dimmed"`

	HoldSys bool `json:"holdSys"`
	HoldTg  bool `json:"holdTg"`

	LedStyle string `json:"ledStyle"`

	Linked             bool `json:"linked"`
	Listeners          int  `json:"listeners"`
	ShowListenersCount bool `json:"showListenersCount"`

	LivefeedOffline bool `json:"livefeedOffline"`
	LivefeedOnline  bool `json:"livefeedOnline"`
	LivefeedPaused  bool `json:"livefeedPaused"`
	PlaybackMode    bool `json:"playbackMode"`

	Map          scanner.LivefeedMap `json:"map"`
	Patched      bool                `json:"patched"`
	ReplayOffset int                 `json:"replayOffset"`
	TempAvoid    int                 `json:"tempAvoid"`
}

// Display owns the live-feed display state.
type Display struct {
	source  EventSource
	actions Actions
	sched   runloop.Scheduler
	log     zerolog.Logger

	unsubscribe func()
	disposed    bool

	config   *scanner.Config
	password string

	clockTimer  runloop.Timer
	dimmerTimer runloop.Timer
	replayTimer runloop.Timer

	state Snapshot

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

func New(source EventSource, actions Actions, sched runloop.Scheduler, log zerolog.Logger) *Display {
	d := &Display{
		source:    source,
		actions:   actions,
		sched:     sched,
		log:       log,
		listeners: make(map[uint64]func(Snapshot)),
		state: Snapshot{
			AuthInputEnabled:  true,
			CallError:         "0",
			CallFrequency:     scanner.FormatFrequency(scanner.Int(0)),
			CallProgress:      time.Date(0, 1, 1, 0, 0, 0, 0, time.Local),
			CallSpike:         "0",
			CallSystem:        "System",
			CallTag:           "Tag",
			CallTalkgroup:     "Talkgroup",
			CallTalkgroupID:   "0",
			CallTalkgroupName: idleTalkgroupName,
			CallUnit:          "0",
			LedStyle:          "off",
			LivefeedOffline:   true,
			Map:               scanner.LivefeedMap{},
			TimeFormat:        timeFormat24,
		},
	}
	d.snapshot = d.copyState()
	return d
}

// Start subscribes to the event source and starts the clock.
func (d *Display) Start() {
	d.unsubscribe = d.source.Subscribe(d.handleEvent)
	d.syncClock()
	d.publish()
}

// Dispose releases the subscription and every timer. No callback runs
// afterwards.
func (d *Display) Dispose() {
	d.disposed = true
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	for _, t := range []*runloop.Timer{&d.clockTimer, &d.dimmerTimer, &d.replayTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

// Snapshot returns the state as of the last published change.
func (d *Display) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Subscribe registers a listener called on the run loop after every change.
// Listeners must not block.
func (d *Display) Subscribe(f func(Snapshot)) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = f
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *Display) publish() {
	snap := d.copyState()
	d.state.FocusAuth = false

	d.mu.Lock()
	d.snapshot = snap
	listeners := make([]func(Snapshot), 0, len(d.listeners))
	for _, f := range d.listeners {
		listeners = append(listeners, f)
	}
	d.mu.Unlock()

	for _, f := range listeners {
		f(snap)
	}
}

// copyState detaches the snapshot from mutable state and drops audio
// payloads.
func (d *Display) copyState() Snapshot {
	s := d.state
	s.Call = s.Call.WithoutAudio()
	s.CallPrevious = s.CallPrevious.WithoutAudio()
	s.CallHistory = make([]*scanner.Call, len(d.state.CallHistory))
	for i, c := range d.state.CallHistory {
		s.CallHistory[i] = c.WithoutAudio()
	}
	if d.state.CallDate != nil {
		t := *d.state.CallDate
		s.CallDate = &t
	}
	s.Map = d.state.Map.Clone()
	return s
}
