package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sai-itkc2020/ai-notetaker/internal/config"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
	"github.com/sai-itkc2020/ai-notetaker/internal/export"
	"github.com/sai-itkc2020/ai-notetaker/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusSessions PanelFocus = iota
	FocusTranscript
)

// TranscriptEntry is a transcript line for display.
type TranscriptEntry struct {
	Time float64 // seconds from session start
	Text string
}

// SessionDisplay holds a saved session for the session panel.
type SessionDisplay struct {
	ID        string
	Title     string
	Status    string
	StartedAt float64
}

// RecoveryOffer is an interrupted recording waiting for the user to
// resume or discard it.
type RecoveryOffer struct {
	SessionID string
	Chunks    int
	Seconds   float64
}

// Model is the root bubbletea model for the notetaker TUI.
type Model struct {
	// Connection state
	client    *daemon.Client // command connection
	evClient  *daemon.Client // event subscription connection
	connected bool
	connError string

	// Session state, mirrored from daemon events
	state       string // "idle" | "recording" | "stopping"
	processing  bool
	sessionID   string
	title       string
	deviceName  string
	devices     []string
	deviceIndex int
	live        bool // request live captions on the next start

	// Transcript
	entries []TranscriptEntry
	summary string

	// Saved sessions
	sessions        []SessionDisplay
	selectedSession int

	// Interrupted recording prompt
	offer *RecoveryOffer

	// Notes entry for refinement
	notesMode   bool
	notesBuffer string

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
	statusText       string

	// Errors
	errorMessage   string
	errorTransient bool

	// Reconnect
	reconnecting     bool
	reconnectAttempt int
}

// New creates a new Model with default state.
func New() Model {
	return Model{
		state:          "idle",
		statusText:     "Connecting to notetakerd...",
		transcriptLive: true,
		focusedPanel:   FocusTranscript,
	}
}

// Init returns the initial command: connect to the daemon.
func (m Model) Init() tea.Cmd {
	return connectCmd()
}

// connectCmd dials the daemon twice: one connection for commands, one for
// the event subscription.
func connectCmd() tea.Cmd {
	return func() tea.Msg {
		sockPath := config.DefaultSocketPath()
		client, err := daemon.Connect(sockPath)
		if err != nil {
			return DaemonConnectErrorMsg{Err: err}
		}
		evClient, err := daemon.Connect(sockPath)
		if err != nil {
			client.Close()
			return DaemonConnectErrorMsg{Err: err}
		}
		return DaemonConnectedMsg{Client: client, EvClient: evClient}
	}
}

// subscribeCmd switches the event client to streaming and reads the first
// event.
func subscribeCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		if err := evClient.Subscribe(nil); err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return readEventCmd(evClient)()
	}
}

// readEventCmd reads the next event from the event client.
func readEventCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return DaemonEventMsg{Event: ev}
	}
}

func statusCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "status"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StatusResponseMsg{Response: resp}
	}
}

func devicesCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "devices"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return DevicesResponseMsg{Response: resp}
	}
}

func sessionsCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "sessions"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return SessionsResponseMsg{Response: resp}
	}
}

func startCmd(client *daemon.Client, device string, live bool) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{
			Cmd:       "start",
			Device:    device,
			Streaming: daemon.BoolPtr(live),
		})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StartResponseMsg{Response: resp}
	}
}

func stopCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "stop"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StopResponseMsg{Response: resp}
	}
}

func confirmCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "confirm"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return ConfirmResponseMsg{Response: resp}
	}
}

func cancelCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "cancel"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return CancelResponseMsg{Response: resp}
	}
}

func resumeCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "resume"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return ResolveResponseMsg{Response: resp}
	}
}

func discardCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "discard"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return ResolveResponseMsg{Response: resp}
	}
}

func refineCmd(client *daemon.Client, notes string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "refine", Notes: notes})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return PostProcessResponseMsg{Response: resp}
	}
}

func summarizeCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "summarize"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return PostProcessResponseMsg{Response: resp}
	}
}

func loadCmd(client *daemon.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "load", SessionID: sessionID})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return LoadResponseMsg{Response: resp}
	}
}

func exportCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: "export"})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return ExportResponseMsg{Response: resp}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// reconnectCmd schedules a reconnection attempt with exponential backoff.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second // 1s..16s cap
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case DaemonConnectedMsg:
		m.client = msg.Client
		m.evClient = msg.EvClient
		m.connected = true
		m.connError = ""
		m.reconnecting = false
		m.reconnectAttempt = 0
		m.statusText = "Connected"
		return m, tea.Batch(
			subscribeCmd(m.evClient),
			statusCmd(m.client),
			devicesCmd(m.client),
			sessionsCmd(m.client),
		)

	case DaemonConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.reconnecting = true
		m.statusText = "Daemon not running. Reconnecting..."
		return m, reconnectCmd(m.reconnectAttempt)

	case StatusResponseMsg:
		r := msg.Response
		if r.State != "" {
			m.state = r.State
		}
		if r.SessionID != "" {
			m.sessionID = r.SessionID
		}
		if r.Title != "" {
			m.title = r.Title
		}
		if r.Device != "" {
			m.deviceName = r.Device
		}
		if r.Processing != nil {
			m.processing = *r.Processing
		}
		return m, nil

	case DevicesResponseMsg:
		if msg.Response.Devices != nil {
			m.devices = msg.Response.Devices
		}
		return m, nil

	case SessionsResponseMsg:
		m.sessions = m.sessions[:0]
		for _, s := range msg.Response.Sessions {
			m.sessions = append(m.sessions, SessionDisplay{
				ID:        s.ID,
				Title:     s.Title,
				Status:    s.Status,
				StartedAt: s.StartedAt,
			})
		}
		if m.selectedSession >= len(m.sessions) {
			m.selectedSession = max(0, len(m.sessions)-1)
		}
		return m, nil

	case StartResponseMsg:
		r := msg.Response
		if r.OK {
			m.entries = nil
			m.summary = ""
			m.sessionID = r.SessionID
			m.transcriptLive = true
			m.statusText = "Recording"
		} else {
			return m.flashError(r.Error)
		}
		return m, nil

	case StopResponseMsg:
		if !msg.Response.OK {
			return m.flashError(msg.Response.Error)
		}
		return m, nil

	case ConfirmResponseMsg:
		if !msg.Response.OK {
			return m.flashError(msg.Response.Error)
		}
		m.statusText = "Transcribing..."
		return m, nil

	case CancelResponseMsg:
		if !msg.Response.OK {
			return m.flashError(msg.Response.Error)
		}
		m.statusText = "Recording"
		return m, nil

	case ResolveResponseMsg:
		if !msg.Response.OK {
			return m.flashError(msg.Response.Error)
		}
		m.offer = nil
		return m, nil

	case PostProcessResponseMsg:
		if !msg.Response.OK {
			return m.flashError(msg.Response.Error)
		}
		return m, nil

	case LoadResponseMsg:
		r := msg.Response
		if !r.OK {
			return m.flashError(r.Error)
		}
		m.sessionID = r.SessionID
		m.title = r.Title
		m.entries = toDisplayEntries(r.Entries)
		m.summary = ""
		m.transcriptLive = true
		m.focusedPanel = FocusTranscript
		m.statusText = "Loaded " + r.Title
		return m, nil

	case ExportResponseMsg:
		r := msg.Response
		if !r.OK {
			return m.flashError(r.Error)
		}
		m.statusText = "Exported to " + r.Path
		return m, nil

	case DaemonEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Keep reading events on the event client.
		return m, tea.Batch(cmd, readEventCmd(m.evClient))

	case DaemonEventErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.statusText = "Disconnected. Reconnecting..."
		m.reconnecting = true
		if m.client != nil {
			m.client.Close()
			m.client = nil
		}
		if m.evClient != nil {
			m.evClient.Close()
			m.evClient = nil
		}
		return m, reconnectCmd(m.reconnectAttempt)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, connectCmd()

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) flashError(message string) (tea.Model, tea.Cmd) {
	m.errorMessage = message
	m.errorTransient = true
	return m, clearTransientErrorCmd()
}

// handleEvent processes a daemon event and returns any resulting command.
func (m *Model) handleEvent(ev daemon.Event) tea.Cmd {
	switch ev.Event {
	case "status":
		if ev.State != "" {
			m.state = ev.State
		}
		if ev.Device != "" {
			m.deviceName = ev.Device
		}
		if ev.SessionID != "" {
			m.sessionID = ev.SessionID
		}
		if ev.Title != "" {
			m.title = ev.Title
		}
		if ev.Processing != nil {
			m.processing = *ev.Processing
		}
		switch {
		case m.processing:
			m.statusText = "Processing..."
		case m.state == "recording":
			m.statusText = "Recording"
		case m.state == "stopping":
			m.statusText = "Stop requested"
		default:
			m.statusText = "Idle"
		}

	case "entry":
		m.entries = append(m.entries, TranscriptEntry{Text: ev.Text, Time: floatOr(ev.Time, 0)})
		if m.transcriptLive {
			m.scrollToBottom()
		}

	case "transcript":
		if ev.SessionID != "" && ev.SessionID != m.sessionID {
			m.summary = ""
			m.sessionID = ev.SessionID
		}
		m.entries = toDisplayEntries(ev.Entries)
		if m.transcriptLive {
			m.scrollToBottom()
		}

	case "recovery":
		if ev.Chunks != nil && *ev.Chunks > 0 {
			m.offer = &RecoveryOffer{
				SessionID: ev.SessionID,
				Chunks:    *ev.Chunks,
				Seconds:   floatOr(ev.Seconds, 0),
			}
		} else {
			m.offer = nil
		}

	case "saved":
		m.statusText = "Saved " + ev.Title
		if m.client != nil {
			return sessionsCmd(m.client)
		}

	case "summary":
		m.summary = ev.Summary
		if m.transcriptLive {
			m.scrollToBottom()
		}

	case "error":
		m.errorMessage = ev.Message
		if ev.Transient != nil && *ev.Transient {
			m.errorTransient = true
			return clearTransientErrorCmd()
		}
	}

	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Notes entry swallows everything except its own controls.
	if m.notesMode {
		return m.handleNotesKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.client != nil {
			m.client.Close()
		}
		if m.evClient != nil {
			m.evClient.Close()
		}
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		switch m.state {
		case "recording":
			return m, stopCmd(m.client)
		case "idle":
			if m.offer != nil || m.processing {
				return m, nil
			}
			device := ""
			if m.deviceIndex < len(m.devices) {
				device = m.devices[m.deviceIndex]
			}
			return m, startCmd(m.client, device, m.live)
		}
		return m, nil

	case KeyEnter:
		if m.state == "stopping" {
			return m, confirmCmd(m.client)
		}
		if m.focusedPanel == FocusSessions && m.connected && m.selectedSession < len(m.sessions) {
			return m, loadCmd(m.client, m.sessions[m.selectedSession].ID)
		}
		return m, nil

	case KeyEsc:
		if m.state == "stopping" {
			return m, cancelCmd(m.client)
		}
		return m, nil

	case KeyResume:
		if m.connected && m.offer != nil {
			return m, resumeCmd(m.client)
		}
		return m, nil

	case KeyDiscard:
		if m.connected && m.offer != nil {
			return m, discardCmd(m.client)
		}
		return m, nil

	case KeyTab:
		if m.focusedPanel == FocusSessions {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusSessions
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusSessions && m.selectedSession < len(m.sessions)-1 {
			m.selectedSession++
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusSessions && m.selectedSession > 0 {
			m.selectedSession--
		}
		return m, nil

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				m.transcriptLive = true
			}
		}
		return m, nil

	case KeyCycleDevice, "I":
		// Device choice applies to the next start.
		if !m.connected || len(m.devices) == 0 || m.state != "idle" {
			return m, nil
		}
		m.deviceIndex = (m.deviceIndex + 1) % len(m.devices)
		m.deviceName = m.devices[m.deviceIndex]
		return m, nil

	case KeyLive, "L":
		m.live = !m.live
		return m, nil

	case KeyRefine:
		if m.canPostProcess() {
			m.notesMode = true
			m.notesBuffer = ""
		}
		return m, nil

	case KeySummarize:
		if m.canPostProcess() {
			return m, summarizeCmd(m.client)
		}
		return m, nil

	case KeyExport:
		if m.connected && m.state == "idle" && m.sessionID != "" {
			return m, exportCmd(m.client)
		}
		return m, nil
	}

	return m, nil
}

// handleNotesKey edits the refinement notes line.
func (m Model) handleNotesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.notesMode = false
		m.notesBuffer = ""
		return m, nil
	case tea.KeyEnter:
		notes := m.notesBuffer
		m.notesMode = false
		m.notesBuffer = ""
		return m, refineCmd(m.client, notes)
	case tea.KeyBackspace:
		if len(m.notesBuffer) > 0 {
			runes := []rune(m.notesBuffer)
			m.notesBuffer = string(runes[:len(runes)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.notesBuffer += " "
		return m, nil
	case tea.KeyRunes:
		m.notesBuffer += string(msg.Runes)
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) canPostProcess() bool {
	return m.connected && m.state == "idle" && !m.processing &&
		m.sessionID != "" && len(m.entries) > 0
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	totalLines := len(m.entries)
	if m.summary != "" {
		totalLines += len(strings.Split(m.summary, "\n")) + 2
	}
	visible := m.transcriptVisibleLines()
	if totalLines <= visible {
		return 0
	}
	return totalLines - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(2) + status(1) + dividers(2) + prompt(1) + error(1) + footer(1)
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) sessionPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*30/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.sessionPanelWidth()-3)
}

func toDisplayEntries(entries []daemon.Entry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries))
	for _, en := range entries {
		out = append(out, TranscriptEntry{Time: en.Time, Text: en.Text})
	}
	return out
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if prompt := m.renderPromptBar(); prompt != "" {
		sections = append(sections, prompt)
	}
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("NOTETAKER")

	var deviceInfo string
	if m.deviceName != "" {
		deviceInfo = ui.DimStyle.Render(" — " + m.deviceName)
	}

	var liveBadge string
	if m.live {
		liveBadge = ui.LiveBadgeStyle.Render(" [LIVE CAPTIONS]")
	}

	return title + deviceInfo + liveBadge
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.state {
	case "recording":
		dot = ui.RecordingDotStyle.Render("● REC")
	case "stopping":
		dot = ui.StoppingDotStyle.Render("◌ STOPPING")
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	var processing string
	if m.processing {
		processing = "  " + ui.SpinnerStyle.Render("⟳ AI")
	}

	var status string
	if m.statusText != "" {
		status = "  " + ui.StatusStyle.Render(m.statusText)
	}

	return dot + processing + status
}

// renderPromptBar shows whichever interaction needs a decision: the
// interrupted-recording offer, the stop confirmation, or the notes line.
func (m Model) renderPromptBar() string {
	if m.notesMode {
		return ui.PromptStyle.Render("Notes: ") + m.notesBuffer + "▌" +
			ui.DimStyle.Render("  (enter refine · esc cancel)")
	}
	if m.state == "stopping" {
		return ui.PromptStyle.Render("Stop recording? ") +
			ui.FooterKeyStyle.Render("enter") + ui.FooterDescStyle.Render(" confirm  ") +
			ui.FooterKeyStyle.Render("esc") + ui.FooterDescStyle.Render(" keep recording")
	}
	if m.offer != nil {
		label := fmt.Sprintf("Interrupted recording found: %d chunks (%s) ",
			m.offer.Chunks, export.Timestamp(m.offer.Seconds))
		return ui.PromptStyle.Render(label) +
			ui.FooterKeyStyle.Render("u") + ui.FooterDescStyle.Render(" resume  ") +
			ui.FooterKeyStyle.Render("d") + ui.FooterDescStyle.Render(" discard")
	}
	return ""
}

func (m Model) renderMainContent() string {
	sessionW := m.sessionPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	sessionPanel := m.renderSessionPanel(sessionW, contentH)
	transcriptPanel := m.renderTranscriptPanel(transcriptW, contentH)

	divider := ui.DividerStyle.Render("│")

	sessionLines := strings.Split(sessionPanel, "\n")
	transcriptLines := strings.Split(transcriptPanel, "\n")

	for len(sessionLines) < contentH {
		sessionLines = append(sessionLines, strings.Repeat(" ", sessionW))
	}
	for len(transcriptLines) < contentH {
		transcriptLines = append(transcriptLines, "")
	}

	var rows []string
	for i := 0; i < contentH; i++ {
		sl := sessionLines[i]
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, sl+divider+tr)
	}

	return strings.Join(rows, "\n")
}

func (m Model) renderSessionPanel(width, height int) string {
	var header string
	if m.focusedPanel == FocusSessions {
		header = ui.PanelTitleActiveStyle.Render(fmt.Sprintf("SESSIONS (%d)", len(m.sessions)))
	} else {
		header = ui.PanelTitleStyle.Render(fmt.Sprintf("SESSIONS (%d)", len(m.sessions)))
	}

	var lines []string
	lines = append(lines, padRight(header, width))

	if len(m.sessions) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No sessions yet"))
	} else {
		for i, sess := range m.sessions {
			date := time.Unix(int64(sess.StartedAt), 0).Format("Jan 02 15:04")
			label := date + "  " + sess.Title
			if sess.Status != "" && sess.Status != "completed" {
				label += " (" + sess.Status + ")"
			}

			var line string
			if i == m.selectedSession && m.focusedPanel == FocusSessions {
				line = ui.SelectedStyle.Render("> " + label)
			} else if sess.ID == m.sessionID {
				line = "* " + label
			} else {
				line = "  " + label
			}
			lines = append(lines, truncateToWidth(line, width))
		}
	}

	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var badge string
	if m.transcriptLive {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	} else {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}

	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.PanelTitleActiveStyle.Render("TRANSCRIPT") + badge
	} else {
		header = ui.PanelTitleStyle.Render("TRANSCRIPT") + badge
	}
	if m.title != "" {
		header += ui.DimStyle.Render(" — " + m.title)
	}

	var lines []string
	lines = append(lines, header)

	contentHeight := height - 1

	if !m.connected {
		if m.reconnecting {
			lines = append(lines, "")
			lines = append(lines, ui.ErrorTextStyle.Render("  Daemon disconnected. Reconnecting..."))
		} else if m.connError != "" {
			lines = append(lines, "")
			lines = append(lines, ui.ErrorStyle.Render("  Daemon not running."))
			lines = append(lines, ui.DimStyle.Render("  Start with: notetakerd"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Connecting to notetakerd..."))
		}
	} else if len(m.entries) == 0 && m.summary == "" {
		lines = append(lines, "")
		if m.state == "recording" {
			lines = append(lines, ui.DimStyle.Render("  Listening..."))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Press Space to start recording"))
		}
	} else {
		// "[MM:SS] " stamp plus indent for wrapped continuation lines.
		prefixWidth := 10
		textWidth := max(10, width-prefixWidth-2)
		indentStr := strings.Repeat(" ", prefixWidth)

		var displayLines []string
		for _, e := range m.entries {
			stamp := ui.TimestampStyle.Render(export.Timestamp(e.Time))
			wrapped := wrapText(e.Text, textWidth)
			displayLines = append(displayLines, stamp+" "+wrapped[0])
			for _, wl := range wrapped[1:] {
				displayLines = append(displayLines, indentStr+wl)
			}
		}

		if m.summary != "" {
			displayLines = append(displayLines, "")
			displayLines = append(displayLines, ui.PanelTitleStyle.Render("SUMMARY"))
			for _, sl := range strings.Split(m.summary, "\n") {
				for _, wl := range wrapText(sl, max(10, width-4)) {
					displayLines = append(displayLines, ui.SummaryStyle.Render("  "+wl))
				}
			}
		}

		start := 0
		if m.transcriptLive {
			if len(displayLines) > contentHeight {
				start = len(displayLines) - contentHeight
			}
		} else {
			start = m.transcriptScroll
		}
		if start < 0 {
			start = 0
		}

		end := start + contentHeight
		if end > len(displayLines) {
			end = len(displayLines)
		}

		for i := start; i < end; i++ {
			lines = append(lines, "  "+displayLines[i])
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.connected {
		switch m.state {
		case "recording":
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
		case "idle":
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Record"))
		}
		parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Refine"))
		parts = append(parts, ui.FooterKeyStyle.Render("s")+ui.FooterDescStyle.Render(" Summary"))
		parts = append(parts, ui.FooterKeyStyle.Render("e")+ui.FooterDescStyle.Render(" Export"))
		parts = append(parts, ui.FooterKeyStyle.Render("i")+ui.FooterDescStyle.Render(" Device"))
		parts = append(parts, ui.FooterKeyStyle.Render("l")+ui.FooterDescStyle.Render(" Live"))
		parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Focus"))
		parts = append(parts, ui.FooterKeyStyle.Render("↑↓")+ui.FooterDescStyle.Render(" Scroll"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
