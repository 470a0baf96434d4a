// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxConsoleLines = 500 // retained scrollback
	consoleRows     = 12
	maxNotes        = 100
	noteRows        = 6
)

// Focus targets for tab cycling.
const (
	focusCommand = iota
	focusSettings
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// monitorNote is one entry in the activity log.
type monitorNote struct {
	at    time.Time
	text  string
	isErr bool
}

// settingItem adapts one settings slot to the list widget.
type settingItem struct {
	index int
	value string
}

func (s settingItem) Title() string { return kestrel.SettingKey(s.index) }

func (s settingItem) Description() string {
	if s.value == "" {
		return "(empty)"
	}
	return s.value
}

func (s settingItem) FilterValue() string { return s.Title() }

type monitorModel struct {
	eng    *kestrel.Engine
	target string

	// Snapshots refreshed on every tick.
	status   kestrel.Status
	identity kestrel.Identity
	stats    kestrel.StatsSnapshot
	phase    kestrel.RebootPhase
	queued   int

	consoleLines []string
	notes        []monitorNote

	cmdInput       textinput.Model
	settingsList   list.Model
	settingsLoaded bool

	focused  int
	linkLost bool
	offline  bool

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

// monitorBatchMsg carries everything the bridge drained in one ticker
// interval.
type monitorBatchMsg struct {
	lines []string
	notes []monitorNote
}

type connLostMsg struct {
	err error
}

type reconnectedMsg struct {
	port string
}

type offlineMsg struct{}

type settingsLoadedMsg struct {
	slots map[int]string
	err   error
}

type sendResultMsg struct {
	cmd string
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(eng *kestrel.Engine, target string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "console command"
	ti.CharLimit = 120
	ti.Width = 40
	ti.Focus()

	delegate := list.NewDefaultDelegate()
	settings := list.New(nil, delegate, 44, 14)
	settings.Title = "Settings"
	settings.SetShowStatusBar(false)
	settings.SetFilteringEnabled(false)
	settings.SetShowHelp(false)

	m := monitorModel{
		eng:          eng,
		target:       target,
		cmdInput:     ti,
		settingsList: settings,
		focused:      focusCommand,
	}
	m.addNote(fmt.Sprintf("Connected to %s.", target), false)
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), loadSettingsCmd(m.eng))
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.settingsList.SetSize(44, 14)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case monitorTickMsg:
		m.refreshSnapshots()
		return m, monitorTickCmd()

	case monitorBatchMsg:
		m.appendConsole(msg.lines)
		for _, n := range msg.notes {
			m.notes = append(m.notes, n)
		}
		m.trimNotes()
		return m, nil

	case connLostMsg:
		m.linkLost = true
		m.addNote(fmt.Sprintf("Link lost: %v", msg.err), true)
		return m, nil

	case reconnectedMsg:
		m.linkLost = false
		m.offline = false
		m.addNote(fmt.Sprintf("Reconnected to %s.", msg.port), false)
		return m, nil

	case offlineMsg:
		m.offline = true
		m.addNote("There was a connection error. Please reconnect the COM port.", true)
		return m, nil

	case settingsLoadedMsg:
		if msg.err != nil {
			m.addNote(fmt.Sprintf("Settings read failed: %v", msg.err), true)
			return m, nil
		}
		m.settingsList.SetItems(settingItems(msg.slots))
		m.settingsLoaded = true
		m.addNote(fmt.Sprintf("Settings loaded (%d slots).", len(msg.slots)), false)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.addNote(fmt.Sprintf("Send %q failed: %v", msg.cmd, msg.err), true)
		} else {
			m.addNote(fmt.Sprintf("Sent: %s", msg.cmd), false)
		}
		return m, nil
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		// The command box needs the letter; quit from anywhere else.
		if m.focused != focusCommand {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus()
		return m, nil

	case "enter":
		if m.focused == focusCommand {
			text := strings.TrimSpace(m.cmdInput.Value())
			if text == "" {
				return m, nil
			}
			m.cmdInput.SetValue("")
			return m, sendCommandCmd(m.eng, text)
		}

	case "r":
		if m.focused == focusSettings {
			m.addNote("Re-reading settings...", false)
			return m, loadSettingsCmd(m.eng)
		}
	}

	var cmd tea.Cmd
	switch m.focused {
	case focusCommand:
		m.cmdInput, cmd = m.cmdInput.Update(msg)
	case focusSettings:
		m.settingsList, cmd = m.settingsList.Update(msg)
	}
	return m, cmd
}

func (m *monitorModel) cycleFocus() {
	m.focused = (m.focused + 1) % focusCount
	if m.focused == focusCommand {
		m.cmdInput.Focus()
	} else {
		m.cmdInput.Blur()
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	var b strings.Builder

	b.WriteString(m.renderHeader(titleStyle, headerStyle, errorStyle, warningStyle))
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine(statsLabelStyle, statsValueStyle, warningStyle))
	b.WriteString("\n")

	identityBox := boxStyle.Render(m.renderIdentity(statsLabelStyle))
	settingsBox := m.renderSettingsBox(boxStyle, focusedBoxStyle, headerStyle)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, identityBox, settingsBox))
	b.WriteString("\n")

	consoleBox := boxStyle
	if m.width > 4 {
		consoleBox = consoleBox.Width(m.width - 4)
	}
	b.WriteString(consoleBox.Render(m.renderConsole(statsLabelStyle, headerStyle)))
	b.WriteString("\n")

	inputBox := boxStyle
	if m.focused == focusCommand {
		inputBox = focusedBoxStyle
	}
	b.WriteString(inputBox.Render(statsLabelStyle.Render("Command ") + m.cmdInput.View()))
	b.WriteString("\n")

	b.WriteString(m.renderNotes(headerStyle, errorStyle))
	b.WriteString("\n")
	b.WriteString(m.renderStatsBar(statsLabelStyle, statsValueStyle))
	b.WriteString("\n")

	return b.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderHeader(titleStyle, headerStyle, errorStyle, warningStyle lipgloss.Style) string {
	title := titleStyle.Render(" OUTRIDER MONITOR ")

	var link string
	switch {
	case m.offline:
		link = errorStyle.Render("OFFLINE")
	case m.linkLost:
		link = warningStyle.Render("RECONNECTING " + m.target)
	default:
		link = headerStyle.Render(m.target)
	}

	help := headerStyle.Render("tab: focus | enter: send | r: re-read settings | q: quit")
	return title + "  " + link + "  " + help
}

func (m monitorModel) renderStatusLine(labelStyle, valueStyle, warningStyle lipgloss.Style) string {
	line := labelStyle.Render(" Status ") + valueStyle.Render(kestrel.FormatStatus(m.status))
	if m.phase != kestrel.RebootIdle {
		line += warningStyle.Render(fmt.Sprintf("  [reboot: %s]", m.phase))
	}
	if m.queued > 0 {
		line += valueStyle.Render(fmt.Sprintf("  [queued: %d]", m.queued))
	}
	return line
}

func (m monitorModel) renderIdentity(labelStyle lipgloss.Style) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Device"))
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(kestrel.FormatIdentity(m.identity), "\n"))
	return b.String()
}

func (m monitorModel) renderSettingsBox(boxStyle, focusedBoxStyle, headerStyle lipgloss.Style) string {
	style := boxStyle
	if m.focused == focusSettings {
		style = focusedBoxStyle
	}
	if !m.settingsLoaded {
		return style.Render("Settings\n\n" + headerStyle.Render("reading from device..."))
	}
	return style.Render(m.settingsList.View())
}

func (m monitorModel) renderConsole(labelStyle, headerStyle lipgloss.Style) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Console"))
	b.WriteString("\n")

	lines := tailLines(m.consoleLines, consoleRows)
	if len(lines) == 0 {
		b.WriteString(headerStyle.Render("waiting for traffic..."))
		return b.String()
	}
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

func (m monitorModel) renderNotes(headerStyle, errorStyle lipgloss.Style) string {
	var b strings.Builder

	start := 0
	if len(m.notes) > noteRows {
		start = len(m.notes) - noteRows
	}
	for _, n := range m.notes[start:] {
		ts := headerStyle.Render(n.at.Format("15:04:05.000"))
		icon := "i"
		text := n.text
		if n.isErr {
			icon = "x"
			text = errorStyle.Render(text)
		}
		b.WriteString(fmt.Sprintf(" %s %s %s\n", ts, icon, text))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m monitorModel) renderStatsBar(labelStyle, valueStyle lipgloss.Style) string {
	elapsed := time.Since(m.stats.StartTime).Seconds()
	if m.stats.StartTime.IsZero() {
		elapsed = 0
	}
	parts := []string{
		labelStyle.Render(" Session ") + valueStyle.Render(fmt.Sprintf("%.0fs", elapsed)),
		labelStyle.Render("Lines ") + valueStyle.Render(fmt.Sprintf("%d (%.1f/s)", m.stats.Lines, m.stats.LineRate)),
	}
	if m.stats.Sentinels > 0 {
		parts = append(parts, labelStyle.Render("Stalled ")+valueStyle.Render(fmt.Sprintf("%d", m.stats.Sentinels)))
	}
	if m.stats.Malformed > 0 {
		parts = append(parts, labelStyle.Render("Malformed ")+valueStyle.Render(fmt.Sprintf("%d", m.stats.Malformed)))
	}
	if m.stats.Reconnects > 0 {
		parts = append(parts, labelStyle.Render("Reconnects ")+valueStyle.Render(fmt.Sprintf("%d", m.stats.Reconnects)))
	}
	return strings.Join(parts, " | ")
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) refreshSnapshots() {
	m.status = m.eng.Status()
	m.identity = m.eng.Info()
	m.stats = m.eng.Stats()
	m.phase = m.eng.RebootPhase()
	m.queued = m.eng.QueueLen()
}

func (m *monitorModel) appendConsole(lines []string) {
	if len(lines) == 0 {
		return
	}
	m.consoleLines = append(m.consoleLines, lines...)
	if len(m.consoleLines) > maxConsoleLines {
		m.consoleLines = m.consoleLines[len(m.consoleLines)-maxConsoleLines:]
	}
}

func (m *monitorModel) addNote(text string, isErr bool) {
	m.notes = append(m.notes, monitorNote{at: time.Now(), text: text, isErr: isErr})
	m.trimNotes()
}

func (m *monitorModel) trimNotes() {
	if len(m.notes) > maxNotes {
		m.notes = m.notes[len(m.notes)-maxNotes:]
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// loadSettingsCmd reads the full settings dump off the event loop. The
// engine serializes it against status polling internally.
func loadSettingsCmd(eng *kestrel.Engine) tea.Cmd {
	return func() tea.Msg {
		if err := eng.RequestSettings(); err != nil {
			return settingsLoadedMsg{err: err}
		}
		return settingsLoadedMsg{slots: eng.SettingsSnapshot()}
	}
}

func sendCommandCmd(eng *kestrel.Engine, cmd string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{cmd: cmd, err: eng.Send(cmd, false)}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func settingItems(slots map[int]string) []list.Item {
	indices := make([]int, 0, len(slots))
	for i := range slots {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	items := make([]list.Item, 0, len(indices))
	for _, i := range indices {
		items = append(items, settingItem{index: i, value: slots[i]})
	}
	return items
}

func tailLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
