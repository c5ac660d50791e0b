package scanner

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Call is one decoded radio transmission as delivered by the server.
type Call struct {
	Audio         Audio           `json:"audio,omitempty"`
	AudioName     string          `json:"audioName,omitempty"`
	AudioType     string          `json:"audioType,omitempty"`
	DateTime      time.Time       `json:"dateTime"`
	Frequencies   []CallFrequency `json:"frequencies,omitempty"`
	Frequency     *int            `json:"frequency,omitempty"`
	ID            int             `json:"id"`
	Patches       []int           `json:"patches,omitempty"`
	Source        *int            `json:"source,omitempty"`
	Sources       []CallSource    `json:"sources,omitempty"`
	System        int             `json:"system"`
	Talkgroup     int             `json:"talkgroup"`
	SystemData    *System         `json:"systemData,omitempty"`
	TalkgroupData *Talkgroup      `json:"talkgroupData,omitempty"`
}

// WithoutAudio returns a shallow copy of the call with the audio payload
// dropped, for places that only need metadata (snapshots, MQTT, logs).
func (c *Call) WithoutAudio() *Call {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Audio = nil
	return &cp
}

// Duration estimates the call length from the per-segment offsets.
// Returns 0 when the call carries no timing information.
func (c *Call) Duration() time.Duration {
	if c == nil {
		return 0
	}
	var end float64
	for _, f := range c.Frequencies {
		pos := 0.0
		if f.Pos != nil {
			pos = *f.Pos
		}
		if f.Len != nil {
			pos += *f.Len
		}
		if pos > end {
			end = pos
		}
	}
	for _, s := range c.Sources {
		if s.Pos != nil && *s.Pos+1 > end {
			end = *s.Pos + 1
		}
	}
	return time.Duration(end * float64(time.Second))
}

// CallFrequency is a per-segment frequency sample of a call.
type CallFrequency struct {
	ErrorCount *int     `json:"errorCount,omitempty"`
	Freq       *int     `json:"freq,omitempty"`
	Len        *float64 `json:"len,omitempty"`
	Pos        *float64 `json:"pos,omitempty"`
	SpikeCount *int     `json:"spikeCount,omitempty"`
}

// CallSource is a per-segment source (unit) sample of a call.
type CallSource struct {
	Pos *float64 `json:"pos,omitempty"`
	Src *int     `json:"src,omitempty"`
}

// Audio is raw call audio. On the wire it is a serialized Node Buffer
// ({"type":"Buffer","data":[...]}); a base64 string is accepted too.
type Audio []byte

func (a *Audio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		*a = data
		return nil
	}
	var buf struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}
	if err := json.Unmarshal(b, &buf); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	data := make([]byte, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = byte(v)
	}
	*a = data
	return nil
}

func (a Audio) MarshalJSON() ([]byte, error) {
	data := make([]int, len(a))
	for i, v := range a {
		data[i] = int(v)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}{Type: "Buffer", Data: data})
}

// System is a radio system with its talkgroups and units.
type System struct {
	ID         int         `json:"id"`
	Label      string      `json:"label"`
	Led        string      `json:"led,omitempty"`
	Order      *int        `json:"order,omitempty"`
	Talkgroups []Talkgroup `json:"talkgroups"`
	Units      []Unit      `json:"units"`
}

// UnitLabel returns the label of the unit with the given id.
func (s *System) UnitLabel(id int) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, u := range s.Units {
		if u.ID == id {
			return u.Label, true
		}
	}
	return "", false
}

// Talkgroup is a logical channel of a system.
type Talkgroup struct {
	Frequency *int   `json:"frequency,omitempty"`
	Group     string `json:"group"`
	ID        int    `json:"id"`
	Label     string `json:"label"`
	Led       string `json:"led,omitempty"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
}

type Unit struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Config is the server-pushed runtime configuration.
type Config struct {
	Afs                string                   `json:"afs,omitempty"`
	Branding           string                   `json:"branding,omitempty"`
	DimmerDelay        Opt[int]                 `json:"dimmerDelay"`
	Email              string                   `json:"email,omitempty"`
	Groups             map[string]map[int][]int `json:"groups"`
	KeypadBeeps        Opt[KeypadBeeps]         `json:"keypadBeeps"`
	PlaybackGoesLive   bool                     `json:"playbackGoesLive"`
	ShowListenersCount bool                     `json:"showListenersCount"`
	Systems            []System                 `json:"systems"`
	Tags               map[string]map[int][]int `json:"tags"`
	TagsToggle         bool                     `json:"tagsToggle"`
	Time12hFormat      bool                     `json:"time12hFormat"`
}

// System returns the configured system with the given id.
func (c *Config) System(id int) *System {
	if c == nil {
		return nil
	}
	for i := range c.Systems {
		if c.Systems[i].ID == id {
			return &c.Systems[i]
		}
	}
	return nil
}

// BeepStyle selects one of the audible feedback cues.
type BeepStyle string

const (
	BeepActivate   BeepStyle = "activate"
	BeepDeactivate BeepStyle = "deactivate"
	BeepDenied     BeepStyle = "denied"
)

// Beep is one tone of a keypad beep sequence.
type Beep struct {
	Begin     float64 `json:"begin"`
	End       float64 `json:"end"`
	Frequency float64 `json:"frequency"`
	Type      string  `json:"type"`
}

type KeypadBeeps map[BeepStyle][]Beep

// CategoryStatus is the membership status of a category in the live feed.
type CategoryStatus string

const (
	CategoryOff     CategoryStatus = "off"
	CategoryOn      CategoryStatus = "on"
	CategoryPartial CategoryStatus = "partial"
)

type CategoryType string

const (
	CategoryGroup CategoryType = "group"
	CategoryTag   CategoryType = "tag"
)

// Category is a tag or group bucket of talkgroups.
type Category struct {
	Label  string         `json:"label"`
	Status CategoryStatus `json:"status"`
	Type   CategoryType   `json:"type"`
}

// LivefeedMode is whether the client is offline, live, or replaying a
// search result set.
type LivefeedMode string

const (
	ModeOffline  LivefeedMode = "offline"
	ModeOnline   LivefeedMode = "online"
	ModePlayback LivefeedMode = "playback"
)

// AvoidOptions selects what an avoid request applies to. With no target
// set the request applies to the current call.
type AvoidOptions struct {
	All       *bool `json:"all,omitempty"`
	Call      *Call `json:"call,omitempty"`
	Minutes   int   `json:"minutes,omitempty"`
	Status    *bool `json:"status,omitempty"`
	System    *int  `json:"system,omitempty"`
	Talkgroup *int  `json:"talkgroup,omitempty"`
}

// SkipOptions controls Skip. Delay waits before starting the next call.
type SkipOptions struct {
	Delay bool `json:"delay,omitempty"`
}

type SearchOptions struct {
	Date      *time.Time `json:"date,omitempty"`
	Group     string     `json:"group,omitempty"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	Sort      int        `json:"sort"`
	System    *int       `json:"system,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	Talkgroup *int       `json:"talkgroup,omitempty"`
}

type PlaybackList struct {
	Count     int           `json:"count"`
	DateStart time.Time     `json:"dateStart"`
	DateStop  time.Time     `json:"dateStop"`
	Options   SearchOptions `json:"options"`
	Results   []*Call       `json:"results"`
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
