package scanner

import (
	"bytes"
	"encoding/json"
)

// Opt is a value that may be absent. Present distinguishes "field carried
// with its zero value" from "field not carried at all".
type Opt[T any] struct {
	Value   T
	Present bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Present: true}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// Or returns the value when present, def otherwise.
func (o Opt[T]) Or(def T) T {
	if o.Present {
		return o.Value
	}
	return def
}

// UnmarshalJSON treats null and false as absent, matching the server's
// "number | false" style fields.
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("false"), nil
	}
	return json.Marshal(o.Value)
}

// Event is one notification from the scanner service. Every field is
// optional; consumers react only to the fields that are present.
type Event struct {
	Auth            Opt[bool]
	Categories      Opt[[]Category]
	Call            Opt[*Call]
	Config          Opt[*Config]
	Expired         Opt[bool]
	HoldSys         Opt[bool]
	HoldTg          Opt[bool]
	Linked          Opt[bool]
	Listeners       Opt[int]
	LivefeedMode    Opt[LivefeedMode]
	Map             Opt[LivefeedMap]
	Pause           Opt[bool]
	PlaybackList    Opt[*PlaybackList]
	PlaybackPending Opt[int]
	Queue           Opt[int]
	Time            Opt[float64]
	TooMany         Opt[bool]
}

// Fields lists the names of the present fields, in wire naming.
func (e Event) Fields() []string {
	var f []string
	add := func(present bool, name string) {
		if present {
			f = append(f, name)
		}
	}
	add(e.Auth.Present, "auth")
	add(e.Categories.Present, "categories")
	add(e.Call.Present, "call")
	add(e.Config.Present, "config")
	add(e.Expired.Present, "expired")
	add(e.HoldSys.Present, "holdSys")
	add(e.HoldTg.Present, "holdTg")
	add(e.Linked.Present, "linked")
	add(e.Listeners.Present, "listeners")
	add(e.LivefeedMode.Present, "livefeedMode")
	add(e.Map.Present, "map")
	add(e.Pause.Present, "pause")
	add(e.PlaybackList.Present, "playbackList")
	add(e.PlaybackPending.Present, "playbackPending")
	add(e.Queue.Present, "queue")
	add(e.Time.Present, "time")
	add(e.TooMany.Present, "tooMany")
	return f
}
