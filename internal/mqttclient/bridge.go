package mqttclient

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/display"
)

// Publisher is the part of Client the bridge needs.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Topic(name string) string
}

// NowPlaying is the retained payload of {prefix}/nowplaying. CallID is 0
// while idle.
type NowPlaying struct {
	CallID         int        `json:"callId"`
	System         string     `json:"system"`
	Tag            string     `json:"tag"`
	Talkgroup      string     `json:"talkgroup"`
	TalkgroupID    string     `json:"talkgroupId"`
	TalkgroupName  string     `json:"talkgroupName"`
	Frequency      string     `json:"frequency"`
	Unit           string     `json:"unit"`
	Date           *time.Time `json:"date,omitempty"`
	Queue          int        `json:"queue"`
	Avoided        bool       `json:"avoided"`
	Patched        bool       `json:"patched"`
	LivefeedOnline bool       `json:"livefeedOnline"`
	LivefeedPaused bool       `json:"livefeedPaused"`
	PlaybackMode   bool       `json:"playbackMode"`
	Listeners      int        `json:"listeners,omitempty"`
}

func nowPlaying(s display.Snapshot) NowPlaying {
	np := NowPlaying{
		System:         s.CallSystem,
		Tag:            s.CallTag,
		Talkgroup:      s.CallTalkgroup,
		TalkgroupID:    s.CallTalkgroupID,
		TalkgroupName:  s.CallTalkgroupName,
		Frequency:      s.CallFrequency,
		Unit:           s.CallUnit,
		Date:           s.CallDate,
		Queue:          s.CallQueue,
		Avoided:        s.Avoided,
		Patched:        s.Patched,
		LivefeedOnline: s.LivefeedOnline,
		LivefeedPaused: s.LivefeedPaused,
		PlaybackMode:   s.PlaybackMode,
	}
	if s.Call != nil {
		np.CallID = s.Call.ID
	}
	if s.ShowListenersCount {
		np.Listeners = s.Listeners
	}
	return np
}

// Bridge republishes the display whenever the displayed call or live feed
// state changes. Queue length and clock ticks alone do not publish.
type Bridge struct {
	pub Publisher
	log zerolog.Logger

	mu   sync.Mutex
	last *NowPlaying
}

func NewBridge(pub Publisher, log zerolog.Logger) *Bridge {
	return &Bridge{pub: pub, log: log.With().Str("component", "mqtt-bridge").Logger()}
}

// Update is a display.Subscribe listener.
func (b *Bridge) Update(s display.Snapshot) {
	np := nowPlaying(s)

	b.mu.Lock()
	if b.last != nil && !changed(*b.last, np) {
		b.mu.Unlock()
		return
	}
	b.last = &np
	b.mu.Unlock()

	payload, err := json.Marshal(np)
	if err != nil {
		b.log.Error().Err(err).Msg("encode now playing")
		return
	}
	if err := b.pub.Publish(b.pub.Topic("nowplaying"), true, payload); err != nil {
		b.log.Warn().Err(err).Msg("now playing publish failed")
	}
}

func changed(a, b NowPlaying) bool {
	return a.CallID != b.CallID ||
		a.Avoided != b.Avoided ||
		a.Patched != b.Patched ||
		a.LivefeedOnline != b.LivefeedOnline ||
		a.LivefeedPaused != b.LivefeedPaused ||
		a.PlaybackMode != b.PlaybackMode
}
