package display

import (
	"strconv"
	"time"

	"github.com/snarg/freescanner-live/internal/scanner"
)

func (d *Display) handleEvent(e scanner.Event) {
	if d.disposed {
		return
	}
	if !d.apply(e) {
		return
	}
	d.publish()
}

// apply reconciles the event into the state. It returns false when the
// event carried nothing the display tracks.
func (d *Display) apply(e scanner.Event) bool {
	s := &d.state
	recognized := false

	if auth, ok := e.Auth.Get(); ok && auth {
		recognized = true
		if pin := d.actions.ReadPin(); pin != "" {
			d.actions.ClearPin()
			d.password = pin
			d.actions.Authenticate(pin)
		} else {
			s.Auth = true
			s.AuthError = ""
			s.AuthInputEnabled = true
			d.password = ""
		}
	}

	if call, ok := e.Call.Get(); ok {
		recognized = true
		if s.Call != nil {
			s.CallPrevious = s.Call
			s.Call = nil
		}
		if call != nil {
			s.Call = call
			d.updateDimmer()
		}
	}

	if cfg, ok := e.Config.Get(); ok {
		recognized = true
		d.config = cfg
		s.Branding, s.Email, s.TimeFormat, s.ShowListenersCount = "", "", timeFormat24, false
		if cfg != nil {
			s.Branding = cfg.Branding
			s.Email = cfg.Email
			s.ShowListenersCount = cfg.ShowListenersCount
			if cfg.Time12hFormat {
				s.TimeFormat = timeFormat12
			}
		}
		if d.password != "" {
			d.actions.SavePin(d.password)
			d.password = ""
		}
		s.Auth = false
		s.AuthError = ""
		s.AuthInputEnabled = false
	}

	if expired, ok := e.Expired.Get(); ok && expired {
		recognized = true
		s.AuthError = "expired"
	}

	if v, ok := e.HoldSys.Get(); ok {
		recognized = true
		s.HoldSys = v
	}
	if v, ok := e.HoldTg.Get(); ok {
		recognized = true
		s.HoldTg = v
	}
	if v, ok := e.Linked.Get(); ok {
		recognized = true
		s.Linked = v
	}
	if v, ok := e.Listeners.Get(); ok {
		recognized = true
		s.Listeners = v
	}
	if v, ok := e.Map.Get(); ok {
		recognized = true
		if v == nil {
			v = scanner.LivefeedMap{}
		}
		s.Map = v
	}
	if v, ok := e.Pause.Get(); ok {
		recognized = true
		s.LivefeedPaused = v
	}
	if v, ok := e.Queue.Get(); ok {
		recognized = true
		s.CallQueue = v
	}
	if v, ok := e.Time.Get(); ok {
		recognized = true
		s.CallTime = v
		d.updateDimmer()
	}

	if tooMany, ok := e.TooMany.Get(); ok && tooMany {
		recognized = true
		s.AuthError = "tooMany"
	}

	// A mode change skips the display refresh for this event.
	if mode, ok := e.LivefeedMode.Get(); ok && mode != "" {
		s.LivefeedOffline = mode == scanner.ModeOffline
		s.LivefeedOnline = mode == scanner.ModeOnline
		s.PlaybackMode = mode == scanner.ModePlayback
		return true
	}

	if recognized {
		d.updateDisplay()
	}
	return recognized
}

// updateDisplay derives every display string from the current call.
func (d *Display) updateDisplay() {
	s := &d.state

	if call := s.Call; call != nil {
		elapsed := s.CallTime
		afs := d.config != nil && scanner.IsAfsSystem(d.config.Afs, call.System)

		s.CallProgress = call.DateTime.Add(time.Duration(elapsed * float64(time.Second)))
		if d.sched.Now().Sub(s.CallProgress) >= 24*time.Hour {
			date := call.DateTime
			s.CallDate = &date
		} else {
			s.CallDate = nil
		}

		s.CallSystem = strconv.Itoa(call.System)
		if call.SystemData != nil && call.SystemData.Label != "" {
			s.CallSystem = call.SystemData.Label
		}

		s.CallTag = ""
		if call.TalkgroupData != nil {
			s.CallTag = call.TalkgroupData.Tag
		}

		talkgroupID := strconv.Itoa(call.Talkgroup)
		if afs {
			talkgroupID = scanner.FormatAfs(call.Talkgroup)
		}
		s.CallTalkgroupID = talkgroupID

		s.CallTalkgroup = talkgroupID
		if call.TalkgroupData != nil && call.TalkgroupData.Label != "" {
			s.CallTalkgroup = call.TalkgroupData.Label
		}

		s.CallTalkgroupName = scanner.FormatFrequency(call.Frequency)
		if call.TalkgroupData != nil && call.TalkgroupData.Name != "" {
			s.CallTalkgroupName = call.TalkgroupData.Name
		}

		if len(call.Frequencies) > 0 {
			var f scanner.CallFrequency
			for _, v := range call.Frequencies {
				if deref(v.Pos) <= elapsed {
					f = v
				}
			}
			s.CallError = optInt(f.ErrorCount)
			freq := f.Freq
			if freq == nil {
				freq = call.Frequency
			}
			s.CallFrequency = scanner.FormatFrequency(freq)
			s.CallSpike = optInt(f.SpikeCount)
		} else {
			s.CallError = ""
			s.CallFrequency = scanner.FormatFrequency(call.Frequency)
			s.CallSpike = ""
		}

		src := call.Source
		if len(call.Sources) > 0 {
			var sel scanner.CallSource
			for _, v := range call.Sources {
				if deref(v.Pos) <= elapsed {
					sel = v
				}
			}
			if sel.Src != nil {
				src = sel.Src
			}
		}
		s.CallUnit = ""
		if src != nil {
			s.CallUnit = strconv.Itoa(*src)
			if label, ok := call.SystemData.UnitLabel(*src); ok {
				s.CallUnit = label
			}
		}

		if prev := s.CallPrevious; prev != nil && prev.ID != call.ID && !d.inHistory(prev.ID) {
			s.CallHistory = append([]*scanner.Call{prev}, s.CallHistory...)
			if len(s.CallHistory) > historySize {
				s.CallHistory[historySize] = nil
				s.CallHistory = s.CallHistory[:historySize]
			}
		}
	}

	if call := d.reference(); call != nil {
		s.TempAvoid = d.actions.IsAvoidedTimer(call)
		if d.actions.IsPatched(call) {
			s.Avoided = false
			s.Patched = true
		} else {
			s.Avoided = d.actions.IsAvoided(call)
			s.Patched = false
		}
	}

	s.LedStyle = ledStyle(s.Call, s.LivefeedPaused)
}

func (d *Display) inHistory(id int) bool {
	for _, c := range d.state.CallHistory {
		if c.ID == id {
			return true
		}
	}
	return false
}

// reference is the call that call-relative actions apply to.
func (d *Display) reference() *scanner.Call {
	if d.state.Call != nil {
		return d.state.Call
	}
	return d.state.CallPrevious
}

func ledStyle(call *scanner.Call, paused bool) string {
	if call == nil {
		return "off"
	}
	style := "on"
	if paused {
		style = "on paused"
	}
	switch {
	case call.TalkgroupData != nil && scanner.ValidLed(call.TalkgroupData.Led):
		style += " " + call.TalkgroupData.Led
	case call.SystemData != nil && scanner.ValidLed(call.SystemData.Led):
		style += " " + call.SystemData.Led
	}
	return style
}

// updateDimmer restarts the dim delay. The panel is lit until the delay
// passes without a qualifying update.
func (d *Display) updateDimmer() {
	if d.config == nil {
		return
	}
	delay, ok := d.config.DimmerDelay.Get()
	if !ok {
		return
	}
	if d.dimmerTimer != nil {
		d.dimmerTimer.Stop()
	}
	d.state.Dimmed = false
	d.dimmerTimer = d.sched.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		d.dimmerTimer = nil
		if d.disposed {
			return
		}
		d.state.Dimmed = true
		d.publish()
	})
}

// syncClock refreshes the clock and re-arms itself for the top of the next
// minute.
func (d *Display) syncClock() {
	if d.clockTimer != nil {
		d.clockTimer.Stop()
	}
	now := d.sched.Now()
	d.state.Clock = now
	d.clockTimer = d.sched.AfterFunc(time.Duration(60-now.Second())*time.Second, func() {
		d.clockTimer = nil
		if d.disposed {
			return
		}
		d.syncClock()
		d.publish()
	})
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
