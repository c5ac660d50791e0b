// Package selection keeps the system, talkgroup and category state behind
// the select panel.
package selection

import (
	"sync"

	"github.com/snarg/freescanner-live/internal/scanner"
)

type EventSource interface {
	Subscribe(h func(scanner.Event)) (cancel func())
}

// Actions are the requests the select panel forwards.
type Actions interface {
	Avoid(opts scanner.AvoidOptions)
	ToggleCategory(cat scanner.Category)
	Beep(style scanner.BeepStyle)
}

// Snapshot is the select panel's view.
type Snapshot struct {
	Systems    []scanner.System    `json:"systems"`
	Categories []scanner.Category  `json:"categories"`
	TagsToggle bool                `json:"tagsToggle"`
	Map        scanner.LivefeedMap `json:"map"`
}

// Visible returns the categories the panel lists: tags when TagsToggle is
// set, groups otherwise.
func (s Snapshot) Visible() []scanner.Category {
	want := scanner.CategoryGroup
	if s.TagsToggle {
		want = scanner.CategoryTag
	}
	var out []scanner.Category
	for _, c := range s.Categories {
		if c.Type == want {
			out = append(out, c)
		}
	}
	return out
}

// State mirrors the latest systems, categories and live feed map. Each is
// replaced wholesale when an event carries it.
type State struct {
	source  EventSource
	actions Actions
	cancel  func()

	mu   sync.RWMutex
	snap Snapshot
}

func New(source EventSource, actions Actions) *State {
	return &State{source: source, actions: actions, snap: Snapshot{Map: scanner.LivefeedMap{}}}
}

func (s *State) Start() {
	s.cancel = s.source.Subscribe(s.handleEvent)
}

func (s *State) Dispose() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *State) handleEvent(e scanner.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := e.Config.Get(); ok && cfg != nil {
		s.snap.TagsToggle = cfg.TagsToggle
		s.snap.Systems = cfg.Systems
	}
	if cats, ok := e.Categories.Get(); ok {
		s.snap.Categories = cats
	}
	if m, ok := e.Map.Get(); ok && m != nil {
		s.snap.Map = m
	}
}

// Snapshot is safe from any goroutine.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Map = s.snap.Map.Clone()
	snap.Categories = append([]scanner.Category(nil), s.snap.Categories...)
	return snap
}

// Avoid picks the cue from the options and forwards the request. For a
// system+talkgroup pair the cue is the opposite of its current state;
// missing pairs count as inactive.
func (s *State) Avoid(opts scanner.AvoidOptions) {
	switch {
	case opts.All != nil && *opts.All:
		s.actions.Beep(scanner.BeepActivate)
	case opts.All != nil:
		s.actions.Beep(scanner.BeepDeactivate)
	case opts.System != nil && opts.Talkgroup != nil:
		s.mu.RLock()
		active := s.snap.Map.Active(*opts.System, *opts.Talkgroup)
		s.mu.RUnlock()
		if active {
			s.actions.Beep(scanner.BeepDeactivate)
		} else {
			s.actions.Beep(scanner.BeepActivate)
		}
	case opts.Status != nil && *opts.Status:
		s.actions.Beep(scanner.BeepActivate)
	default:
		s.actions.Beep(scanner.BeepDeactivate)
	}
	s.actions.Avoid(opts)
}

// Toggle flips a category. State changes only when the service answers.
func (s *State) Toggle(cat scanner.Category) {
	if cat.Status == scanner.CategoryOn {
		s.actions.Beep(scanner.BeepDeactivate)
	} else {
		s.actions.Beep(scanner.BeepActivate)
	}
	s.actions.ToggleCategory(cat)
}
