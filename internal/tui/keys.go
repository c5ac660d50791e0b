package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the front panel bindings.
type KeyMap struct {
	// Live panel.
	Livefeed      key.Binding
	Pause         key.Binding
	Replay        key.Binding
	Skip          key.Binding
	SkipDelay     key.Binding // Skip, waiting before the next call.
	Stop          key.Binding
	Avoid         key.Binding // Walk the avoid ladder.
	HoldSystem    key.Binding
	HoldTalkgroup key.Binding
	SelectPanel   key.Binding
	SearchPanel   key.Binding
	AccessCode    key.Binding

	// Select panel.
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	AllOn    key.Binding
	AllOff   key.Binding
	Back     key.Binding
	Submit   key.Binding
	Backward key.Binding

	// Search panel.
	PlayResult   key.Binding
	NextPage     key.Binding
	PreviousPage key.Binding
	Refresh      key.Binding

	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Livefeed: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "live feed"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Replay: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "replay"),
	),
	Skip: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "skip"),
	),
	SkipDelay: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "skip+delay"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Avoid: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "avoid"),
	),
	HoldSystem: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "hold sys"),
	),
	HoldTalkgroup: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "hold tg"),
	),
	SelectPanel: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "select"),
	),
	SearchPanel: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	AccessCode: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "access code"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("Enter", "toggle"),
	),
	AllOn: key.NewBinding(
		key.WithKeys("A"),
		key.WithHelp("A", "all on"),
	),
	AllOff: key.NewBinding(
		key.WithKeys("O"),
		key.WithHelp("O", "all off"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "tab"),
		key.WithHelp("Esc", "back"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "submit"),
	),
	Backward: key.NewBinding(
		key.WithKeys("backspace"),
		key.WithHelp("BS", "delete"),
	),
	PlayResult: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "play"),
	),
	NextPage: key.NewBinding(
		key.WithKeys("]", "pgdown"),
		key.WithHelp("]", "next page"),
	),
	PreviousPage: key.NewBinding(
		key.WithKeys("[", "pgup"),
		key.WithHelp("[", "prev page"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
