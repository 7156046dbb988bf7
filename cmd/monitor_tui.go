// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusZoneList = iota
	focusVolumeInput
	focusButtons
)

// Buttons, left to right
const (
	buttonPower = iota
	buttonVolumeUp
	buttonVolumeDown
	buttonSlide
	numButtons
)

var buttonLabels = [numButtons]string{"Power", "Vol +", "Vol -", "Slide"}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for events
}

// zoneItem is one zone in the zone list
type zoneItem struct {
	zone   elan.Zone
	status elan.ChannelStatus
	known  bool
}

// Implement list.Item interface
func (z zoneItem) Title() string {
	channel, _ := elan.ZoneChannel(z.zone)
	return fmt.Sprintf("Zone %d (ch %d)", z.zone, channel)
}

func (z zoneItem) Description() string {
	if !z.known {
		return "no status"
	}
	mute := ""
	if z.status.Muted {
		mute = " MUTE"
	}
	return fmt.Sprintf("Vol %2d  In %d%s", z.status.Volume, z.status.Input, mute)
}

func (z zoneItem) FilterValue() string { return strconv.Itoa(int(z.zone)) }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	// Host link (for sending commands)
	link     *monitorLink
	connInfo string

	// Zone tracking
	zoneList   list.Model
	status     elan.SystemStatus
	haveStatus bool
	lastStatus time.Time
	connected  time.Time

	// Monitoring
	stats         *elan.Statistics
	eventLog      []logEntry
	maxLogEntries int

	// Control
	volumeBar    progress.Model
	volumeInput  textinput.Model
	focusedField int
	button       int

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorDataMsg struct {
	msg       *elan.HostMessage
	decodeErr error
}

type monitorSyncMsg struct {
	invalidBytes int
}

type monitorBatchMsg struct {
	messages []monitorDataMsg
	syncMsg  *monitorSyncMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(link *monitorLink, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "20"
	ti.CharLimit = 2
	ti.Width = 4

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	zoneList := list.New(zoneItems(elan.SystemStatus{}, false), delegate, 30, 14)
	zoneList.Title = "Zones"
	zoneList.SetShowStatusBar(false)
	zoneList.SetShowHelp(false)
	zoneList.SetFilteringEnabled(false)

	return monitorModel{
		link:          link,
		connInfo:      connInfo,
		zoneList:      zoneList,
		connected:     time.Now(),
		stats:         elan.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		volumeBar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		volumeInput:   ti,
		focusedField:  focusZoneList,
		width:         80,
		height:        24,
	}
}

func zoneItems(s elan.SystemStatus, known bool) []list.Item {
	items := make([]list.Item, elan.NumZones)
	for i := range items {
		items[i] = zoneItem{zone: elan.Zone(i) + elan.MinZone, status: s[i], known: known}
	}
	return items
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.zoneList, _ = m.zoneList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case monitorBatchMsg:
		if msg.syncMsg != nil {
			m.synchronized = true
			if msg.syncMsg.invalidBytes > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.syncMsg.invalidBytes), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, data := range msg.messages {
			m.processMonitorData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.connected = time.Now()
		m.synchronized = false
		m.addLogEntry("Reconnected", false)
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusVolumeInput:
		m.volumeInput, cmd = m.volumeInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusZoneList:
		m.zoneList, cmd = m.zoneList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.focusedField != focusVolumeInput || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "left", "h":
		if m.focusedField == focusButtons {
			m.button = (m.button + numButtons - 1) % numButtons
			return m, nil
		}

	case "right", "l":
		if m.focusedField == focusButtons {
			m.button = (m.button + 1) % numButtons
			return m, nil
		}

	case "p":
		if m.focusedField == focusZoneList {
			return m.sendCode(elan.CodePower)
		}

	case "+", "=":
		if m.focusedField == focusZoneList {
			return m.sendCode(elan.CodeVolumeUp)
		}

	case "-":
		if m.focusedField == focusZoneList {
			return m.sendCode(elan.CodeVolumeDown)
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusVolumeInput:
		m.volumeInput, cmd = m.volumeInput.Update(msg)
	case focusZoneList:
		m.zoneList, cmd = m.zoneList.Update(msg)
	}
	return m, cmd
}

func (m *monitorModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusButtons + 1) % (focusButtons + 1)
	if m.focusedField == focusVolumeInput {
		m.volumeInput.Focus()
	} else {
		m.volumeInput.Blur()
	}
}

func (m *monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focusedField {
	case focusVolumeInput:
		return m.sendSlider()
	case focusButtons:
		switch m.button {
		case buttonPower:
			return m.sendCode(elan.CodePower)
		case buttonVolumeUp:
			return m.sendCode(elan.CodeVolumeUp)
		case buttonVolumeDown:
			return m.sendCode(elan.CodeVolumeDown)
		case buttonSlide:
			return m.sendSlider()
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("ELANBRIDGE MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch p/+/-=zone keys", connStatus)))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s", labelStyle.Render("Connected:"),
		valueStyle.Render(formatUptime(uint64(time.Since(m.connected).Milliseconds())))))
	if m.haveStatus {
		s.WriteString(fmt.Sprintf("  %s %s", labelStyle.Render("Last status:"),
			valueStyle.Render(m.lastStatus.Format("15:04:05.000"))))
	}
	s.WriteString("\n\n")

	// Layout: left panel (zones) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusZoneList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	zonePanel := listStyle.Render(m.zoneList.View())

	controlPanel := boxStyle.Width(rightWidth).Render(
		m.renderControlPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, zonePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderControlPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	zone, ok := m.selectedZone()
	if !ok {
		s.WriteString(headerStyle.Render("No zone selected"))
		return s.String()
	}
	channel, _ := elan.ZoneChannel(zone)

	s.WriteString(fmt.Sprintf("%s Zone %d (bus channel %d)\n", labelStyle.Render("Selected:"), zone, channel))
	if m.haveStatus {
		c, _ := m.status.Zone(zone)
		mute := "no"
		if c.Muted {
			mute = "yes"
		}
		s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n\n",
			labelStyle.Render("Volume:"), valueStyle.Render(strconv.Itoa(int(c.Volume))),
			labelStyle.Render("Mute:"), valueStyle.Render(mute),
			labelStyle.Render("Input:"), valueStyle.Render(strconv.Itoa(int(c.Input)))))
		s.WriteString(m.volumeBar.ViewAs(float64(c.Volume) / elan.VolumeBaseline))
		s.WriteString("\n\n")
	} else {
		s.WriteString(headerStyle.Render("Waiting for status..."))
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Target volume: "))
	if m.focusedField == focusVolumeInput {
		s.WriteString(m.volumeInput.View())
	} else {
		val := m.volumeInput.Value()
		if val == "" {
			val = m.volumeInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  (0-%d)", elan.VolumeBaseline)))
	s.WriteString("\n\n")

	for i, label := range buttonLabels {
		text := "[ " + label + " ]"
		if m.focusedField == focusButtons && m.button == i {
			s.WriteString(focusedButtonStyle.Render(text))
		} else {
			s.WriteString(buttonStyle.Render(text))
		}
		s.WriteString(" ")
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	m.stats.CalculateRates()
	var errorPercent float64
	if m.stats.TotalMessages > 0 {
		totalErrors := m.stats.FramingErrors + m.stats.OverflowErrors
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalMessages)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Status:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.StatusFrames)),
		labelStyle.Render("Changes:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.StatusChanges)),
		labelStyle.Render("Messages:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.ErrorMessages)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f msg/s", m.stats.MessageRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) processMonitorData(data monitorDataMsg) {
	if data.decodeErr != nil {
		m.stats.Update(nil, data.decodeErr)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", data.decodeErr), true)
		return
	}
	if data.msg == nil {
		return
	}

	m.stats.Update(data.msg, nil)

	switch data.msg.Kind {
	case elan.KindError:
		m.addLogEntry(fmt.Sprintf("Bridge: %s", data.msg.Text), true)

	case elan.KindStatus:
		status := data.msg.Status()
		if m.haveStatus {
			m.logZoneChanges(m.status, status)
		}
		m.status = status
		m.haveStatus = true
		m.lastStatus = data.msg.Timestamp
		m.zoneList.SetItems(zoneItems(status, true))
	}
}

func (m *monitorModel) logZoneChanges(prev, cur elan.SystemStatus) {
	for i := range cur {
		zone := elan.Zone(i) + elan.MinZone
		p, c := prev[i], cur[i]
		if p.Volume != c.Volume {
			m.addLogEntry(fmt.Sprintf("Zone %d volume %d -> %d", zone, p.Volume, c.Volume), false)
		}
		if p.Muted != c.Muted {
			m.addLogEntry(fmt.Sprintf("Zone %d mute %t -> %t", zone, p.Muted, c.Muted), false)
		}
		if p.Input != c.Input {
			m.addLogEntry(fmt.Sprintf("Zone %d input %d -> %d", zone, p.Input, c.Input), false)
		}
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *monitorModel) sendCode(code elan.Code) (tea.Model, tea.Cmd) {
	zone, ok := m.selectedZone()
	if !ok {
		return m, nil
	}
	frame, err := elan.NewZoneCommand(zone, int(code))
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.sendFrame(frame, fmt.Sprintf("Sent %s to zone %d", elan.FormatCode(code), zone))
	return m, nil
}

func (m *monitorModel) sendSlider() (tea.Model, tea.Cmd) {
	zone, ok := m.selectedZone()
	if !ok {
		return m, nil
	}

	volStr := m.volumeInput.Value()
	if volStr == "" {
		volStr = m.volumeInput.Placeholder
	}
	volume, err := strconv.Atoi(volStr)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid volume: %s", volStr), true)
		return m, nil
	}

	frame, err := elan.NewSliderCommand(zone, volume)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Volume must be between 0 and %d", elan.VolumeBaseline), true)
		return m, nil
	}
	m.sendFrame(frame, fmt.Sprintf("Sent SLIDER zone %d -> %d", zone, volume))
	return m, nil
}

func (m *monitorModel) sendFrame(frame []byte, desc string) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}
	if err := m.link.send(frame); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send command: %v", err), true)
		return
	}
	m.addLogEntry(desc, false)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) selectedZone() (elan.Zone, bool) {
	item, ok := m.zoneList.SelectedItem().(zoneItem)
	if !ok {
		return 0, false
	}
	return item.zone, true
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 2
	if listHeight < 8 {
		listHeight = 8
	}
	m.zoneList.SetSize(28, listHeight)
}

// formatUptime formats milliseconds into a human-readable duration
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes%60, seconds%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
