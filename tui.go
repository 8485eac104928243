package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

const connectTimeout = 10 * time.Second

type state int

const (
	stateIdle state = iota
	stateScanning
	stateSelecting
	stateConnecting
)

// sourceOpenedMsg carries the open request's generation. Only the latest
// request's source is kept.
type sourceOpenedMsg struct {
	gen    int
	source FrameSource
	method string
	err    error
}

// frameTickMsg carries the generation of the source it was scheduled for,
// so ticks for a closed source are dropped.
type frameTickMsg struct{ gen int }

type scanDoneMsg struct {
	peers []Peer
	err   error
}

type connectedMsg struct {
	link Link
	err  error
}

type disconnectedMsg struct{}

type receivedMsg string

type snapshotMsg struct {
	path string
	err  error
}

type model struct {
	cfg       Config
	connector Connector
	tx        *Transmitter
	detector  *Detector
	received  chan string
	connects  *pendingConnects

	state   state
	spinner spinner.Model
	peers   []Peer
	cursor  int

	source    FrameSource
	sourceGen int
	openGen   int
	method    string
	sourceErr string
	frame     *image.RGBA
	mirror    bool
	facing    string

	link         Link
	status       string
	connErr      string
	notice       string
	reading      *Reading
	lastReceived string
}

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle     = lipgloss.NewStyle().PaddingLeft(0).Foreground(lipgloss.Color("170"))
	helpStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#78B3FF")).Background(lipgloss.Color("#d0f0fd"))
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FE818D")).Background(lipgloss.Color("#f9f9f9"))
)

func newModel(cfg Config, connector Connector) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	tx := NewTransmitter()
	return model{
		cfg:       cfg,
		connector: connector,
		tx:        tx,
		detector:  NewDetector(tx),
		received:  make(chan string, 16),
		connects:  newPendingConnects(),
		state:     stateIdle,
		spinner:   s,
		mirror:    cfg.Camera.Mirror,
		facing:    cfg.Camera.Facing,
		status:    "Disconnected",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, openSourceCmd(m.cameraConfig(), m.openGen), waitForReceived(m.received))
}

func (m model) cameraConfig() CameraConfig {
	c := m.cfg.Camera
	c.Facing = m.facing
	return c
}

func (m model) frameInterval() time.Duration {
	return time.Second / time.Duration(m.cfg.Camera.FPS)
}

func openSourceCmd(cfg CameraConfig, gen int) tea.Cmd {
	return func() tea.Msg {
		s, method, err := OpenFrameSource(cfg)
		return sourceOpenedMsg{gen: gen, source: s, method: method, err: err}
	}
}

func frameTickCmd(d time.Duration, gen int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return frameTickMsg{gen: gen}
	})
}

func scanCmd(c Connector) tea.Cmd {
	return func() tea.Msg {
		peers, err := c.Scan(context.Background())
		return scanDoneMsg{peers: peers, err: err}
	}
}

// pendingConnects tracks connection attempts so quitting can cancel them
// and close links the model never received.
type pendingConnects struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	links   []Link
}

func newPendingConnects() *pendingConnects {
	ctx, cancel := context.WithCancel(context.Background())
	return &pendingConnects{ctx: ctx, cancel: cancel}
}

func (pc *pendingConnects) begin() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.stopped {
		return false
	}
	pc.wg.Add(1)
	return true
}

// hold records l until claim. It reports false after stop.
func (pc *pendingConnects) hold(l Link) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.stopped {
		return false
	}
	pc.links = append(pc.links, l)
	return true
}

func (pc *pendingConnects) claim(l Link) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, held := range pc.links {
		if held == l {
			pc.links = append(pc.links[:i], pc.links[i+1:]...)
			return
		}
	}
}

// stop cancels running attempts, waits for them and closes any link that
// was connected but never claimed.
func (pc *pendingConnects) stop() {
	pc.mu.Lock()
	pc.stopped = true
	links := pc.links
	pc.links = nil
	pc.mu.Unlock()

	pc.cancel()
	pc.wg.Wait()
	for _, l := range links {
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("closing link")
		}
	}
}

func connectCmd(c Connector, p Peer, received chan<- string, pc *pendingConnects) tea.Cmd {
	return func() tea.Msg {
		if !pc.begin() {
			return connectedMsg{err: context.Canceled}
		}
		defer pc.wg.Done()

		ctx, cancel := context.WithTimeout(pc.ctx, connectTimeout)
		defer cancel()

		l, err := c.Connect(ctx, p, func(buf []byte) {
			logReceived(buf)
			select {
			case received <- strings.TrimRight(string(buf), "\r\n"):
			default:
			}
		})
		if err != nil {
			return connectedMsg{err: err}
		}
		if !pc.hold(l) {
			if err := l.Close(); err != nil {
				log.WithError(err).Warn("closing link")
			}
			return connectedMsg{err: context.Canceled}
		}
		return connectedMsg{link: l}
	}
}

// disconnectCmd closes l once any in-flight write has finished.
func disconnectCmd(tx *Transmitter, l Link) tea.Cmd {
	return func() tea.Msg {
		tx.Wait()
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("closing link")
		}
		return disconnectedMsg{}
	}
}

func waitForReceived(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return receivedMsg(<-ch)
	}
}

func closeSourceCmd(s FrameSource) tea.Cmd {
	return func() tea.Msg {
		if err := s.Close(); err != nil {
			log.WithError(err).Debug("closing frame source")
		}
		return nil
	}
}

func snapshotCmd(dir string, frame *image.RGBA, mirror bool, reading *Reading) tea.Cmd {
	return func() tea.Msg {
		path, err := SaveSnapshot(dir, frame, mirror, reading)
		return snapshotMsg{path: path, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sourceOpenedMsg:
		if msg.gen != m.openGen {
			if msg.source != nil {
				return m, closeSourceCmd(msg.source)
			}
			return m, nil
		}
		if msg.err != nil {
			log.WithError(msg.err).Error("opening frame source")
			m.sourceErr = msg.err.Error()
			return m, nil
		}
		log.WithField("method", msg.method).Info("frame source ready")
		var cmds []tea.Cmd
		if m.source != nil {
			cmds = append(cmds, closeSourceCmd(m.source))
		}
		m.source = msg.source
		m.sourceGen++
		m.method = msg.method
		m.sourceErr = ""
		cmds = append(cmds, frameTickCmd(m.frameInterval(), m.sourceGen))
		return m, tea.Batch(cmds...)

	case frameTickMsg:
		if m.source == nil || msg.gen != m.sourceGen {
			return m, nil
		}
		frame, err := m.source.Frame()
		if err == nil {
			m.frame = frame
			if r, ok := m.detector.Tick(frame); ok {
				m.reading = &r
			}
		}
		return m, frameTickCmd(m.frameInterval(), m.sourceGen)

	case scanDoneMsg:
		if msg.err != nil {
			log.WithError(msg.err).Error("Bluetooth connection failed")
			m.status = "Connection Failed"
			m.connErr = msg.err.Error()
			m.state = stateIdle
			return m, nil
		}
		if len(msg.peers) == 1 {
			m.state = stateConnecting
			return m, connectCmd(m.connector, msg.peers[0], m.received, m.connects)
		}
		m.peers = msg.peers
		m.cursor = 0
		m.state = stateSelecting
		return m, nil

	case connectedMsg:
		m.state = stateIdle
		if msg.link != nil {
			m.connects.claim(msg.link)
		}
		if msg.err != nil {
			log.WithError(msg.err).Error("Bluetooth connection failed")
			m.status = "Connection Failed"
			if errors.Is(msg.err, ErrNoCredentials) {
				m.connErr = msg.err.Error() + " (run: " + appName + " pair <relay-id> --psk <hex>)"
			} else {
				m.connErr = msg.err.Error()
			}
			return m, nil
		}
		m.link = msg.link
		m.tx.SetLink(msg.link)
		m.status = "Connected to " + msg.link.Name()
		m.connErr = ""
		log.WithField("link", msg.link.Name()).Info("connected")
		return m, nil

	case disconnectedMsg:
		return m, nil

	case receivedMsg:
		m.lastReceived = string(msg)
		return m, waitForReceived(m.received)

	case snapshotMsg:
		if msg.err != nil {
			log.WithError(msg.err).Warn("snapshot failed")
			m.notice = "Snapshot failed: " + msg.err.Error()
		} else {
			m.notice = "Snapshot saved to " + msg.path
		}
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateSelecting {
		switch key.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.peers)-1 {
				m.cursor++
			}
		case "enter":
			m.state = stateConnecting
			return m, connectCmd(m.connector, m.peers[m.cursor], m.received, m.connects)
		case "esc":
			m.state = stateIdle
		}
		return m, nil
	}

	m.notice = ""
	switch key.String() {
	case "c":
		if m.state == stateIdle && m.link == nil {
			m.state = stateScanning
			m.connErr = ""
			return m, scanCmd(m.connector)
		}

	case "d":
		if m.link == nil {
			return m, nil
		}
		m.detector.Stop()
		m.reading = nil
		l := m.tx.ClearLink()
		m.link = nil
		m.status = "Disconnected"
		return m, disconnectCmd(m.tx, l)

	case "s":
		if err := m.detector.Start(); err != nil {
			m.notice = "Bluetooth is not connected."
		}

	case "x":
		if m.detector.Stop() {
			m.reading = nil
		}

	case "f":
		m.mirror = !m.mirror

	case "w":
		m.facing = ToggleFacing(m.facing)
		m.openGen++
		var cmds []tea.Cmd
		if m.source != nil {
			cmds = append(cmds, closeSourceCmd(m.source))
			m.source = nil
			m.frame = nil
		}
		cmds = append(cmds, openSourceCmd(m.cameraConfig(), m.openGen))
		return m, tea.Sequence(cmds...)

	case "p":
		if m.frame != nil {
			return m, snapshotCmd(m.cfg.SnapshotDir, m.frame, m.mirror, m.reading)
		}
	}

	return m, nil
}

func (m model) View() string {
	switch m.state {
	case stateScanning:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Scanning for "+m.cfg.Link.NamePrefix+"..."))

	case stateSelecting:
		s := "\n" + titleStyle.Render("  Select a micro:bit:") + "\n\n"
		for i, p := range m.peers {
			label := p.String()
			if i == m.cursor {
				s += selectedStyle.Render("▸ "+label) + "\n"
			} else {
				s += itemStyle.Render(label) + "\n"
			}
		}
		s += "\n" + helpStyle.Render("  ↑/k up · ↓/j down · enter select · esc cancel · q quit") + "\n"
		return s

	case stateConnecting:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Connecting..."))
	}

	var sb strings.Builder
	sb.WriteString("\n" + titleStyle.Render("  micro:bit color sender") + "\n\n")

	statusStyle := disconnectedStyle
	if m.link != nil {
		statusStyle = connectedStyle
	}
	sb.WriteString("  " + statusStyle.Render(" Status: "+m.status+" ") + "\n")
	if m.connErr != "" {
		sb.WriteString("  " + errStyle.Render(m.connErr) + "\n")
	}
	sb.WriteString("\n")

	switch {
	case m.frame != nil:
		preview := renderPreview(m.frame, m.mirror)
		if m.reading != nil {
			preview = lipgloss.JoinHorizontal(lipgloss.Bottom, preview, " ", renderSwatch(m.reading.Color))
		}
		sb.WriteString(preview + "\n")
		sb.WriteString(helpStyle.Render(fmt.Sprintf("  %s · %s", m.method, m.facing)) + "\n")
	case m.sourceErr != "":
		sb.WriteString("  " + errStyle.Render("Camera: "+m.sourceErr) + "\n")
	default:
		sb.WriteString(fmt.Sprintf(" %s %s\n", m.spinner.View(), "Opening camera..."))
	}
	sb.WriteString("\n")

	sent := "none"
	if m.reading != nil {
		sent = m.reading.Payload.Display
	}
	sb.WriteString("  Sent to micro:bit: " + sent + "\n")
	if m.lastReceived != "" {
		sb.WriteString("  Received: " + m.lastReceived + "\n")
	}
	if m.notice != "" {
		sb.WriteString("\n  " + noticeStyle.Render(m.notice) + "\n")
	}

	sb.WriteString("\n" + helpStyle.Render("  c connect · d disconnect · s start · x stop · f flip · w switch camera · p snapshot · q quit") + "\n")
	return sb.String()
}

// shutdown cancels pending connects, stops detection, lets the final write
// finish and releases the link and frame source.
func (m model) shutdown() {
	m.connects.stop()
	m.tx.Wait()
	m.detector.Stop()
	m.tx.Wait()
	if l := m.tx.ClearLink(); l != nil {
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("closing link")
		}
	}
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			log.WithError(err).Debug("closing frame source")
		}
	}
}
