// Package search keeps the state behind the search panel: the options of
// the last search of archived calls, the page of results the server sent
// back, and the call being fetched for playback.
//
// Search, NextPage, PreviousPage and Play must run on the run loop.
// Snapshot and Subscribe are safe from any goroutine.
package search

import (
	"sync"

	"github.com/snarg/freescanner-live/internal/scanner"
)

const (
	DefaultLimit = 10
	MaxLimit     = 200
)

type EventSource interface {
	Subscribe(h func(scanner.Event)) (cancel func())
}

// Actions are the requests the search panel forwards.
type Actions interface {
	SearchCalls(opts scanner.SearchOptions)
	LoadAndPlay(id int)
}

// Snapshot is the search panel's view.
type Snapshot struct {
	Options   scanner.SearchOptions `json:"options"`
	Results   *scanner.PlaybackList `json:"results,omitempty"`
	Searching bool                  `json:"searching"`
	// Pending is the id of the call being fetched, or 0.
	Pending int `json:"pending,omitempty"`
}

// Page is the 1-based page of the current results, and the page count.
func (s Snapshot) Page() (page, pages int) {
	if s.Results == nil || s.Options.Limit <= 0 {
		return 0, 0
	}
	pages = (s.Results.Count + s.Options.Limit - 1) / s.Options.Limit
	return s.Options.Offset/s.Options.Limit + 1, pages
}

type State struct {
	source  EventSource
	actions Actions
	cancel  func()

	mu        sync.RWMutex
	snap      Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

func New(source EventSource, actions Actions) *State {
	return &State{
		source:    source,
		actions:   actions,
		snap:      Snapshot{Options: scanner.SearchOptions{Limit: DefaultLimit}},
		listeners: make(map[int]func(Snapshot)),
	}
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

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers f to receive every change. Listeners run on the run
// loop and must not block.
func (s *State) Subscribe(f func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = f
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *State) handleEvent(e scanner.Event) {
	list, hasList := e.PlaybackList.Get()
	pending, hasPending := e.PlaybackPending.Get()
	if !hasList && !hasPending {
		return
	}
	s.update(func(snap *Snapshot) {
		if hasList && list != nil {
			snap.Results = list
			snap.Searching = false
		}
		if hasPending {
			snap.Pending = pending
		}
	})
}

// Search asks the server for a page of archived calls. The limit defaults
// to DefaultLimit and is capped at MaxLimit.
func (s *State) Search(opts scanner.SearchOptions) {
	opts.Limit = min(opts.Limit, MaxLimit)
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	opts.Offset = max(opts.Offset, 0)
	s.update(func(snap *Snapshot) {
		snap.Options = opts
		snap.Searching = true
	})
	s.actions.SearchCalls(opts)
}

// NextPage repeats the last search one page further. It reports false when
// there is no further page.
func (s *State) NextPage() bool {
	snap := s.Snapshot()
	if snap.Results == nil || snap.Options.Offset+snap.Options.Limit >= snap.Results.Count {
		return false
	}
	opts := snap.Options
	opts.Offset += opts.Limit
	s.Search(opts)
	return true
}

// PreviousPage repeats the last search one page back. It reports false on
// the first page.
func (s *State) PreviousPage() bool {
	snap := s.Snapshot()
	if snap.Options.Offset == 0 {
		return false
	}
	opts := snap.Options
	opts.Offset = max(opts.Offset-opts.Limit, 0)
	s.Search(opts)
	return true
}

// Play switches to playback mode and fetches the call.
func (s *State) Play(id int) {
	s.actions.LoadAndPlay(id)
}

func (s *State) update(f func(*Snapshot)) {
	s.mu.Lock()
	f(&s.snap)
	snap := s.snap
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(snap)
	}
}
