package search

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/freescanner-live/internal/livefeed"
	"github.com/snarg/freescanner-live/internal/runloop/runlooptest"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/wsclient"
)

var _ Actions = (*livefeed.Service)(nil)

type fakeSource struct {
	handler func(scanner.Event)
}

func (f *fakeSource) Subscribe(h func(scanner.Event)) func() {
	f.handler = h
	return func() { f.handler = nil }
}

type fakeActions struct {
	searches []scanner.SearchOptions
	loaded   []int
}

func (f *fakeActions) SearchCalls(o scanner.SearchOptions) { f.searches = append(f.searches, o) }
func (f *fakeActions) LoadAndPlay(id int) { f.loaded = append(f.loaded, id) }

func newState(t *testing.T) (*State, *fakeSource, *fakeActions) {
	t.Helper()
	src, act := &fakeSource{}, &fakeActions{}
	s := New(src, act)
	s.Start()
	t.Cleanup(s.Dispose)
	return s, src, act
}

func results(count int) *scanner.PlaybackList {
	return &scanner.PlaybackList{Count: count, Results: []*scanner.Call{{ID: 1}, {ID: 2}}}
}

func TestSearchOptions(t *testing.T) {
	tests := []struct {
		name string
		in   scanner.SearchOptions
		want scanner.SearchOptions
	}{
		{name: "default_limit", in: scanner.SearchOptions{}, want: scanner.SearchOptions{Limit: DefaultLimit}},
		{name: "capped_limit", in: scanner.SearchOptions{Limit: 5000}, want: scanner.SearchOptions{Limit: MaxLimit}},
		{name: "negative_offset", in: scanner.SearchOptions{Limit: 25, Offset: -3}, want: scanner.SearchOptions{Limit: 25}},
		{
			name: "filters_pass_through",
			in:   scanner.SearchOptions{Limit: 20, System: scanner.Int(1), Talkgroup: scanner.Int(100), Group: "Fire", Sort: -1},
			want: scanner.SearchOptions{Limit: 20, System: scanner.Int(1), Talkgroup: scanner.Int(100), Group: "Fire", Sort: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, act := newState(t)
			s.Search(tt.in)
			require.Len(t, act.searches, 1)
			assert.Equal(t, tt.want, act.searches[0])
			assert.Equal(t, tt.want, s.Snapshot().Options)
			assert.True(t, s.Snapshot().Searching)
		})
	}
}

func TestResultsAndPending(t *testing.T) {
	s, src, _ := newState(t)
	var notes []Snapshot
	s.Subscribe(func(snap Snapshot) { notes = append(notes, snap) })

	s.Search(scanner.SearchOptions{Limit: 2})
	src.handler(scanner.Event{PlaybackList: scanner.Some(results(5))})
	snap := s.Snapshot()
	require.NotNil(t, snap.Results)
	assert.False(t, snap.Searching)
	assert.Equal(t, 5, snap.Results.Count)
	page, pages := snap.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 3, pages)

	src.handler(scanner.Event{PlaybackPending: scanner.Some(2)})
	assert.Equal(t, 2, s.Snapshot().Pending)
	src.handler(scanner.Event{PlaybackPending: scanner.Opt[int]{Present: true}})
	assert.Equal(t, 0, s.Snapshot().Pending)

	n := len(notes)
	src.handler(scanner.Event{Queue: scanner.Some(3)})
	assert.Len(t, notes, n, "unrelated events do not notify")
	assert.Len(t, notes, 4)
}

func TestPaging(t *testing.T) {
	s, src, act := newState(t)
	assert.False(t, s.NextPage(), "no results yet")

	s.Search(scanner.SearchOptions{Limit: 2, Tag: "Dispatch"})
	src.handler(scanner.Event{PlaybackList: scanner.Some(results(5))})

	require.True(t, s.NextPage())
	require.True(t, s.NextPage())
	assert.False(t, s.NextPage(), "offset 4 is the last page")
	assert.Equal(t, 4, s.Snapshot().Options.Offset)
	assert.Equal(t, "Dispatch", s.Snapshot().Options.Tag)

	require.True(t, s.PreviousPage())
	assert.Equal(t, 2, s.Snapshot().Options.Offset)
	require.True(t, s.PreviousPage())
	assert.False(t, s.PreviousPage())
	assert.Len(t, act.searches, 5)
}

func TestSearchAgainstService(t *testing.T) {
	clock := runlooptest.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sender := &recordingSender{}
	svc := livefeed.New(livefeed.Options{Sched: clock, Sender: sender, Log: zerolog.Nop()})
	s := New(svc, svc)
	s.Start()
	defer s.Dispose()

	s.Search(scanner.SearchOptions{Limit: 10, System: scanner.Int(1)})
	m := sender.last()
	assert.Equal(t, wsclient.CommandListCall, m.Command)
	assert.JSONEq(t, `{"limit":10,"offset":0,"sort":0,"system":1}`, string(m.Payload))

	list, err := wsclient.NewMessage(wsclient.CommandListCall, results(2), "")
	require.NoError(t, err)
	svc.HandleMessage(list)
	require.NotNil(t, s.Snapshot().Results)
	assert.Len(t, s.Snapshot().Results.Results, 2)

	s.Play(2)
	assert.Equal(t, scanner.ModePlayback, svc.Mode())
	assert.Equal(t, 2, s.Snapshot().Pending)
	m = sender.last()
	assert.Equal(t, wsclient.CommandCall, m.Command)
	assert.Equal(t, wsclient.FlagPlay, m.Flag)

	call, err := wsclient.NewMessage(wsclient.CommandCall, &scanner.Call{ID: 2, Audio: scanner.Audio{0}}, wsclient.FlagPlay)
	require.NoError(t, err)
	svc.HandleMessage(call)
	assert.Equal(t, 0, s.Snapshot().Pending, "pending clears once the call arrives")
}

type recordingSender struct {
	sent []wsclient.Message
}

func (r *recordingSender) Send(m wsclient.Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingSender) last() wsclient.Message {
	if len(r.sent) == 0 {
		return wsclient.Message{}
	}
	return r.sent[len(r.sent)-1]
}
