// Package tui renders the scanner front panel in the terminal. The model
// never touches live-feed state directly: every action runs on the run loop
// through an Executor, and display changes arrive as DisplayMsg values.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/snarg/freescanner-live/internal/display"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/search"
	"github.com/snarg/freescanner-live/internal/selection"
)

const (
	actionTimeout  = 5 * time.Second
	maxCodeLength  = 64
	historyLayout  = "15:04:05"
	panelMinWidth  = 48
	panelMaxWidth  = 72
	categoryHeight = 12
	resultsHeight  = 10
)

// Display is the subset of the live feed display the panel drives.
type Display interface {
	Perform(action string, args json.RawMessage) error
	Authenticate(password string)
	SetPassword(password string)
	ShowSearchPanel() bool
	ShowSelectPanel() bool
}

// Selection is the select panel state.
type Selection interface {
	Snapshot() selection.Snapshot
	Avoid(opts scanner.AvoidOptions)
	Toggle(cat scanner.Category)
}

// Search is the archived-call search state.
type Search interface {
	Snapshot() search.Snapshot
	Search(opts scanner.SearchOptions)
	NextPage() bool
	PreviousPage() bool
	Play(id int)
}

// Executor runs f on the run loop and waits for it.
type Executor interface {
	Do(ctx context.Context, f func()) error
}

// Panel is the region currently receiving keys.
type Panel int

const (
	PanelLive Panel = iota
	PanelSelect
	PanelSearch
	PanelAuth
)

// DisplayMsg delivers a display snapshot to the program.
type DisplayMsg display.Snapshot

// SearchMsg delivers a search state change to the program.
type SearchMsg search.Snapshot

type selectPanelMsg struct{ allowed bool }

type searchPanelMsg struct{ allowed bool }

type actionResultMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the front panel.
type Model struct {
	display   Display
	selection Selection
	search    Search
	exec      Executor
	keys      KeyMap
	theme     Theme

	panel    Panel
	snap     display.Snapshot
	sel      selection.Snapshot
	found    search.Snapshot
	cursor   int
	code     []rune
	status   string
	width    int
	height   int
	quitting bool
}

// NewModel builds the front panel around an initial display snapshot.
func NewModel(d Display, s Selection, found Search, exec Executor, initial display.Snapshot) Model {
	model := Model{
		display:   d,
		selection: s,
		search:    found,
		exec:      exec,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		snap:      initial,
		sel:       s.Snapshot(),
		found:     found.Snapshot(),
	}
	if initial.Auth {
		model.panel = PanelAuth
	}
	return model
}

// Panel reports the focused panel.
func (model Model) Panel() Panel { return model.panel }

// Init implements tea.Model.
func (model Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		return model, nil

	case DisplayMsg:
		model.applySnapshot(display.Snapshot(message))
		return model, nil

	case selectPanelMsg:
		if message.allowed {
			model.panel = PanelSelect
			model.cursor = 0
			model.sel = model.selection.Snapshot()
		}
		return model, nil

	case searchPanelMsg:
		if message.allowed {
			model.panel = PanelSearch
			model.cursor = 0
			model.found = model.search.Snapshot()
		}
		return model, nil

	case SearchMsg:
		model.found = search.Snapshot(message)
		if model.panel == PanelSearch {
			model.clampCursor(len(model.results()))
		}
		return model, nil

	case actionResultMsg:
		if message.err != nil {
			model.status = fmt.Sprintf("%s: %v", message.action, message.err)
		} else {
			model.status = ""
		}
		return model, nil

	case tea.KeyMsg:
		if key.Matches(message, model.keys.Quit) && (model.panel != PanelAuth || message.Type == tea.KeyCtrlC) {
			model.quitting = true
			return model, tea.Quit
		}
		switch model.panel {
		case PanelAuth:
			return model.handleAuthKeys(message)
		case PanelSelect:
			return model.handleSelectKeys(message)
		case PanelSearch:
			return model.handleSearchKeys(message)
		default:
			return model.handleLiveKeys(message)
		}
	}
	return model, nil
}

func (model *Model) applySnapshot(snap display.Snapshot) {
	wasAuth := model.snap.Auth
	model.snap = snap
	model.sel = model.selection.Snapshot()

	switch {
	case snap.FocusAuth, snap.Auth && !wasAuth:
		model.panel = PanelAuth
	case !snap.Auth && model.panel == PanelAuth:
		model.panel = PanelLive
		model.code = nil
	}
	if model.panel == PanelSelect {
		model.clampCursor(len(model.sel.Visible()))
	}
}

func (model *Model) clampCursor(n int) {
	if model.cursor >= n {
		model.cursor = max(n-1, 0)
	}
}

func (model Model) results() []*scanner.Call {
	if model.found.Results == nil {
		return nil
	}
	return model.found.Results.Results
}

func (model Model) handleLiveKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Livefeed):
		return model, model.perform("livefeed", nil)
	case key.Matches(message, model.keys.Pause):
		return model, model.perform("pause", nil)
	case key.Matches(message, model.keys.Replay):
		return model, model.perform("replay", nil)
	case key.Matches(message, model.keys.Skip):
		return model, model.perform("skip", nil)
	case key.Matches(message, model.keys.SkipDelay):
		return model, model.perform("skip", json.RawMessage(`{"delay":true}`))
	case key.Matches(message, model.keys.Stop):
		return model, model.perform("stop", nil)
	case key.Matches(message, model.keys.Avoid):
		return model, model.perform("avoid", nil)
	case key.Matches(message, model.keys.HoldSystem):
		return model, model.perform("hold-system", nil)
	case key.Matches(message, model.keys.HoldTalkgroup):
		return model, model.perform("hold-talkgroup", nil)
	case key.Matches(message, model.keys.SelectPanel):
		return model, model.openSelectPanel()
	case key.Matches(message, model.keys.SearchPanel):
		return model, model.openSearchPanel()
	case key.Matches(message, model.keys.AccessCode):
		if model.snap.Auth {
			model.panel = PanelAuth
		}
	}
	return model, nil
}

func (model Model) handleSelectKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := model.sel.Visible()
	switch {
	case key.Matches(message, model.keys.Back):
		model.panel = PanelLive
	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}
	case key.Matches(message, model.keys.Down):
		if model.cursor < len(visible)-1 {
			model.cursor++
		}
	case key.Matches(message, model.keys.Toggle):
		if model.cursor < len(visible) {
			cat := visible[model.cursor]
			return model, model.run("toggle", func() { model.selection.Toggle(cat) })
		}
	case key.Matches(message, model.keys.AllOn):
		return model, model.run("avoid", func() { model.selection.Avoid(scanner.AvoidOptions{All: scanner.Bool(true)}) })
	case key.Matches(message, model.keys.AllOff):
		return model, model.run("avoid", func() { model.selection.Avoid(scanner.AvoidOptions{All: scanner.Bool(false)}) })
	}
	return model, nil
}

func (model Model) handleSearchKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	results := model.results()
	switch {
	case key.Matches(message, model.keys.Back):
		model.panel = PanelLive
	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}
	case key.Matches(message, model.keys.Down):
		if model.cursor < len(results)-1 {
			model.cursor++
		}
	case key.Matches(message, model.keys.PlayResult):
		if model.cursor < len(results) {
			id := results[model.cursor].ID
			model.panel = PanelLive
			return model, model.run("playback", func() { model.search.Play(id) })
		}
	case key.Matches(message, model.keys.NextPage):
		model.cursor = 0
		return model, model.run("search", func() { model.search.NextPage() })
	case key.Matches(message, model.keys.PreviousPage):
		model.cursor = 0
		return model, model.run("search", func() { model.search.PreviousPage() })
	case key.Matches(message, model.keys.Refresh):
		opts := model.found.Options
		return model, model.run("search", func() { model.search.Search(opts) })
	}
	return model, nil
}

func (model Model) handleAuthKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyEsc:
		model.panel = PanelLive
	case key.Matches(message, model.keys.Submit):
		if len(model.code) == 0 || !model.snap.AuthInputEnabled {
			return model, nil
		}
		code := string(model.code)
		return model, model.run("authenticate", func() {
			model.display.SetPassword(code)
			model.display.Authenticate("")
		})
	case key.Matches(message, model.keys.Backward):
		if len(model.code) > 0 {
			model.code = model.code[:len(model.code)-1]
		}
	case message.Type == tea.KeyRunes:
		if len(model.code)+len(message.Runes) <= maxCodeLength {
			model.code = append(append([]rune(nil), model.code...), message.Runes...)
		}
	}
	return model, nil
}

func (model Model) perform(action string, args json.RawMessage) tea.Cmd {
	var perr error
	run := model.run(action, func() { perr = model.display.Perform(action, args) })
	return func() tea.Msg {
		msg := run().(actionResultMsg)
		if msg.err == nil {
			msg.err = perr
		}
		return msg
	}
}

func (model Model) openSelectPanel() tea.Cmd {
	return func() tea.Msg {
		var allowed bool
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := model.exec.Do(ctx, func() { allowed = model.display.ShowSelectPanel() }); err != nil {
			return actionResultMsg{action: "select", err: err}
		}
		return selectPanelMsg{allowed: allowed}
	}
}

// openSearchPanel opens the search panel and, the first time, runs a
// search with the default options.
func (model Model) openSearchPanel() tea.Cmd {
	return func() tea.Msg {
		var allowed bool
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := model.exec.Do(ctx, func() {
			allowed = model.display.ShowSearchPanel()
			if snap := model.search.Snapshot(); allowed && snap.Results == nil && !snap.Searching {
				model.search.Search(snap.Options)
			}
		})
		if err != nil {
			return actionResultMsg{action: "search", err: err}
		}
		return searchPanelMsg{allowed: allowed}
	}
}

// run wraps f as a command executed on the run loop.
func (model Model) run(action string, f func()) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionResultMsg{action: action, err: model.exec.Do(ctx, f)}
	}
}

// View implements tea.Model.
func (model Model) View() string {
	if model.quitting {
		return ""
	}
	var body string
	switch model.panel {
	case PanelSelect:
		body = model.renderSelect()
	case PanelSearch:
		body = model.renderSearch()
	case PanelAuth:
		body = model.renderAuth()
	default:
		body = model.renderLive()
	}

	width := panelMaxWidth
	if model.width > 0 && model.width-2 < width {
		width = max(model.width-2, panelMinWidth)
	}
	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(0, 1).
		Width(width)

	out := frame.Render(body)
	if model.status != "" {
		out += "\n" + lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(model.status)
	}
	return out + "\n" + model.renderHelp()
}

func (model Model) fg(c lipgloss.Color) lipgloss.Style {
	if model.snap.Dimmed {
		c = model.theme.DimmedText
	}
	return lipgloss.NewStyle().Foreground(c)
}

func (model Model) renderLive() string {
	s := model.snap
	normal := model.fg(model.theme.NormalText)
	faint := model.fg(model.theme.FaintText)
	bold := model.fg(model.theme.HeaderForeground).Bold(true)

	var b strings.Builder

	led := model.fg(model.theme.LedColor(s.LedStyle)).Render(ledGlyph(s.LedStyle))
	clock := s.Clock.Format(s.TimeFormat)
	if s.CallDate != nil {
		clock = s.CallDate.Format("2006-01-02") + " " + clock
	}
	queue := fmt.Sprintf("Q %d", s.CallQueue)
	if s.ShowListenersCount {
		queue += fmt.Sprintf("  L %d", s.Listeners)
	}
	b.WriteString(led + " " + normal.Render(clock) + "  " + faint.Render(queue) + "  " + model.renderMode() + "\n")

	b.WriteString(normal.Render(fmt.Sprintf("%-24s %s", s.CallSystem, s.CallTag)) + "\n")
	b.WriteString(bold.Render(s.CallTalkgroup) + "\n")
	b.WriteString(normal.Render(s.CallTalkgroupName) + "\n")
	b.WriteString(faint.Render(fmt.Sprintf("F %s  TGID %s  U %s", s.CallFrequency, s.CallTalkgroupID, s.CallUnit)) + "\n")
	b.WriteString(faint.Render(fmt.Sprintf("E %s  S %s  T %s", s.CallError, s.CallSpike, formatElapsed(s.CallTime))) + "\n")

	flags := []string{
		model.flag("HOLD SYS", s.HoldSys),
		model.flag("HOLD TG", s.HoldTg),
		model.flag(avoidLabel(s), s.Avoided),
		model.flag("PATCH", s.Patched),
	}
	if s.ReplayOffset > 0 {
		flags = append(flags, model.flag(fmt.Sprintf("REPLAY -%d", s.ReplayOffset), true))
	}
	b.WriteString(strings.Join(flags, " ") + "\n")

	if len(s.CallHistory) > 0 {
		b.WriteString("\n" + faint.Render("History") + "\n")
		for _, call := range s.CallHistory {
			b.WriteString(normal.Render(historyLine(call)) + "\n")
		}
	}
	if s.Branding != "" {
		b.WriteString("\n" + faint.Render(s.Branding))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (model Model) renderMode() string {
	s := model.snap
	switch {
	case s.PlaybackMode:
		return model.flag("PLAYBACK", true)
	case s.LivefeedPaused:
		return model.flag("PAUSED", true)
	case s.LivefeedOnline:
		return model.flag("LIVE", true)
	default:
		return model.flag("OFFLINE", false)
	}
}

func (model Model) flag(label string, on bool) string {
	if on {
		return model.fg(model.theme.FlagActive).Bold(true).Render("[" + label + "]")
	}
	return model.fg(model.theme.FlagInactive).Render("[" + label + "]")
}

func (model Model) renderSelect() string {
	var b strings.Builder
	header := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true)
	kind := "Groups"
	if model.sel.TagsToggle {
		kind = "Tags"
	}
	b.WriteString(header.Render(kind) + "\n")

	visible := model.sel.Visible()
	if len(visible) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no categories"))
		return b.String()
	}

	start := 0
	if model.cursor >= categoryHeight {
		start = model.cursor - categoryHeight + 1
	}
	end := min(start+categoryHeight, len(visible))
	for i := start; i < end; i++ {
		cat := visible[i]
		line := fmt.Sprintf("%-8s %s", strings.ToUpper(string(cat.Status)), cat.Label)
		style := lipgloss.NewStyle().Foreground(model.theme.CategoryColor(cat.Status))
		if i == model.cursor {
			style = style.Background(model.theme.SelectedBackground).Bold(true)
		}
		b.WriteString(style.Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (model Model) renderSearch() string {
	var b strings.Builder
	header := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	title := "Search"
	if page, pages := model.found.Page(); pages > 0 {
		title += fmt.Sprintf("  %d/%d", page, pages)
	}
	b.WriteString(header.Render(title) + "\n")

	results := model.results()
	switch {
	case model.found.Searching:
		b.WriteString(faint.Render("searching..."))
		return b.String()
	case len(results) == 0:
		b.WriteString(faint.Render("no calls"))
		return b.String()
	}

	start := 0
	if model.cursor >= resultsHeight {
		start = model.cursor - resultsHeight + 1
	}
	end := min(start+resultsHeight, len(results))
	for i := start; i < end; i++ {
		call := results[i]
		line := historyLine(call)
		if call.ID == model.found.Pending {
			line += "  loading"
		}
		style := lipgloss.NewStyle().Foreground(model.theme.NormalText)
		if i == model.cursor {
			style = style.Background(model.theme.SelectedBackground).Bold(true)
		}
		b.WriteString(style.Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (model Model) renderAuth() string {
	header := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true)
	var b strings.Builder
	b.WriteString(header.Render("Access code") + "\n")
	masked := strings.Repeat("•", len(model.code))
	if model.snap.AuthInputEnabled {
		masked += "_"
	}
	b.WriteString(masked)
	if model.snap.AuthError != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(model.snap.AuthError))
	}
	return b.String()
}

func (model Model) renderHelp() string {
	var bindings []key.Binding
	switch model.panel {
	case PanelSelect:
		bindings = []key.Binding{model.keys.Up, model.keys.Down, model.keys.Toggle, model.keys.AllOn, model.keys.AllOff, model.keys.Back, model.keys.Quit}
	case PanelSearch:
		bindings = []key.Binding{model.keys.Up, model.keys.Down, model.keys.PlayResult, model.keys.PreviousPage, model.keys.NextPage, model.keys.Refresh, model.keys.Back}
	case PanelAuth:
		bindings = []key.Binding{model.keys.Submit, model.keys.Backward, model.keys.Back}
	default:
		bindings = []key.Binding{
			model.keys.Livefeed, model.keys.Pause, model.keys.Replay, model.keys.Skip,
			model.keys.Stop, model.keys.Avoid, model.keys.HoldSystem, model.keys.HoldTalkgroup,
			model.keys.SelectPanel, model.keys.SearchPanel, model.keys.Quit,
		}
	}
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		h := binding.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, " · "))
}

// ledGlyph renders the LED: hollow when off, half when paused.
func ledGlyph(style string) string {
	fields := strings.Fields(style)
	switch {
	case len(fields) == 0 || fields[0] != "on":
		return "○"
	case len(fields) > 1 && fields[1] == "paused":
		return "◐"
	default:
		return "●"
	}
}

func avoidLabel(s display.Snapshot) string {
	if s.Avoided && s.TempAvoid > 0 {
		return fmt.Sprintf("AVOID %dm", s.TempAvoid)
	}
	return "AVOID"
}

func formatElapsed(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func historyLine(call *scanner.Call) string {
	if call == nil {
		return ""
	}
	tg := fmt.Sprintf("%d", call.Talkgroup)
	name := ""
	if call.TalkgroupData != nil {
		tg = call.TalkgroupData.Label
		name = call.TalkgroupData.Name
	}
	sys := fmt.Sprintf("%d", call.System)
	if call.SystemData != nil {
		sys = call.SystemData.Label
	}
	return fmt.Sprintf("%s  %-12s %-14s %s", call.DateTime.Local().Format(historyLayout), sys, tg, name)
}
