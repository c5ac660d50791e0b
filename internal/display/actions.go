package display

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/snarg/freescanner-live/internal/scanner"
)

// gated reports whether the display is waiting for an access code. When it
// is, the action is redirected to the code input.
func (d *Display) gated() bool {
	if !d.state.Auth {
		return false
	}
	d.state.FocusAuth = true
	d.publish()
	return true
}

// SetPassword stages the access code typed so far.
func (d *Display) SetPassword(password string) {
	d.password = password
}

// Authenticate submits the access code. An empty password submits the
// staged one.
func (d *Display) Authenticate(password string) {
	if password == "" {
		password = d.password
	}
	d.password = password
	d.state.AuthInputEnabled = false
	d.actions.Authenticate(password)
	d.publish()
}

// Avoid applies explicit options, or with nil walks the reference call
// through the avoid ladder: unavoided, 30, 60, 120 minutes, permanent,
// unavoided.
func (d *Display) Avoid(opts *scanner.AvoidOptions) {
	if d.gated() {
		return
	}
	call := d.reference()
	if opts == nil && call == nil {
		d.actions.Beep(scanner.BeepDenied)
		d.publish()
		return
	}

	if opts != nil {
		d.actions.Avoid(*opts)
	} else {
		next := scanner.AvoidOptions{Call: call, Status: scanner.Bool(false)}
		switch minutes := d.actions.IsAvoidedTimer(call); {
		case !d.actions.IsAvoided(call):
			next.Minutes = 30
		case minutes == 0:
			next.Status = scanner.Bool(true)
		case minutes == 30:
			next.Minutes = 60
		case minutes == 60:
			next.Minutes = 120
		}
		d.actions.Avoid(next)
	}

	if call != nil && d.actions.IsAvoided(call) {
		d.actions.Beep(scanner.BeepActivate)
	} else {
		d.actions.Beep(scanner.BeepDeactivate)
	}
	d.updateDimmer()
	d.publish()
}

func (d *Display) HoldSystem() {
	d.hold(d.state.HoldSys, d.actions.HoldSystem)
}

func (d *Display) HoldTalkgroup() {
	d.hold(d.state.HoldTg, d.actions.HoldTalkgroup)
}

func (d *Display) hold(held bool, toggle func()) {
	if d.gated() {
		return
	}
	if d.reference() != nil {
		d.actions.Beep(toggleCue(held))
		toggle()
	} else {
		d.actions.Beep(scanner.BeepDenied)
	}
	d.updateDimmer()
	d.publish()
}

// Livefeed toggles the live feed.
func (d *Display) Livefeed() {
	if d.gated() {
		return
	}
	d.actions.Beep(toggleCue(!d.state.LivefeedOffline))
	d.actions.Livefeed()
	d.updateDimmer()
	d.publish()
}

// Pause toggles pause.
func (d *Display) Pause() {
	if d.gated() {
		return
	}
	d.actions.Beep(toggleCue(d.state.LivefeedPaused))
	d.actions.Pause()
	d.updateDimmer()
	d.publish()
}

// Replay plays the current call again. Presses within a second of each
// other step back through the history.
func (d *Display) Replay() {
	if d.gated() {
		return
	}
	s := &d.state
	if s.LivefeedPaused || d.reference() == nil {
		d.actions.Beep(scanner.BeepDenied)
		d.updateDimmer()
		d.publish()
		return
	}

	d.actions.Beep(scanner.BeepActivate)

	if d.replayTimer != nil {
		d.replayTimer.Stop()
		s.ReplayOffset = min(len(s.CallHistory), s.ReplayOffset+1)
	}
	d.replayTimer = d.sched.AfterFunc(replayWindow, func() {
		d.replayTimer = nil
		if d.disposed {
			return
		}
		d.state.ReplayOffset = 0
		d.publish()
	})

	var newest *scanner.Call
	if len(s.CallHistory) > 0 {
		newest = s.CallHistory[0]
	}
	switch {
	case s.Call != nil && s.ReplayOffset == 0:
		d.actions.Replay()
	case s.CallPrevious != newest:
		if s.ReplayOffset > 0 {
			d.actions.Play(s.CallHistory[s.ReplayOffset-1])
		} else {
			d.actions.Replay()
		}
	case s.ReplayOffset < len(s.CallHistory):
		d.actions.Play(s.CallHistory[s.ReplayOffset])
	}

	d.updateDimmer()
	d.publish()
}

// Skip ends the current call.
func (d *Display) Skip(opts scanner.SkipOptions) {
	if d.gated() {
		return
	}
	d.actions.Beep(scanner.BeepActivate)
	d.actions.Skip(opts)
	d.updateDimmer()
	d.publish()
}

// Stop stops playback. It is not gated.
func (d *Display) Stop() {
	d.actions.Stop()
}

// ShowSearchPanel reports whether the search panel may open.
func (d *Display) ShowSearchPanel() bool {
	return d.showPanel()
}

// ShowSelectPanel reports whether the select panel may open.
func (d *Display) ShowSelectPanel() bool {
	return d.showPanel()
}

func (d *Display) showPanel() bool {
	if d.config == nil || d.gated() {
		return false
	}
	d.actions.Beep("")
	return true
}

// Perform runs a named action. args holds the JSON options for avoid and
// skip and may be empty.
func (d *Display) Perform(action string, args json.RawMessage) error {
	switch action {
	case "avoid":
		if isEmpty(args) {
			d.Avoid(nil)
			return nil
		}
		var opts scanner.AvoidOptions
		if err := json.Unmarshal(args, &opts); err != nil {
			return fmt.Errorf("decode avoid options: %w", err)
		}
		d.Avoid(&opts)
	case "hold-system":
		d.HoldSystem()
	case "hold-talkgroup":
		d.HoldTalkgroup()
	case "livefeed":
		d.Livefeed()
	case "pause":
		d.Pause()
	case "replay":
		d.Replay()
	case "skip":
		var opts scanner.SkipOptions
		if !isEmpty(args) {
			if err := json.Unmarshal(args, &opts); err != nil {
				return fmt.Errorf("decode skip options: %w", err)
			}
		}
		d.Skip(opts)
	case "stop":
		d.Stop()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

func isEmpty(args json.RawMessage) bool {
	b := bytes.TrimSpace(args)
	return len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("{}"))
}

// toggleCue is the cue for flipping a setting that is currently on or off.
func toggleCue(on bool) scanner.BeepStyle {
	if on {
		return scanner.BeepDeactivate
	}
	return scanner.BeepActivate
}
