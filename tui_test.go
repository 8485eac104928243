package main

import (
	"context"
	"image"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	peers []Peer
	link  *fakeLink
}

func (c *fakeConnector) Scan(context.Context) ([]Peer, error) {
	if len(c.peers) == 0 {
		return nil, ErrNoPeers
	}
	return c.peers, nil
}

func (c *fakeConnector) Connect(context.Context, Peer, func([]byte)) (Link, error) {
	return c.link, nil
}

type fakeSource struct {
	frame  *image.RGBA
	closed bool
}

func (s *fakeSource) Frame() (*image.RGBA, error) {
	if s.frame == nil {
		return nil, errNoFrame
	}
	return s.frame, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// blockingConnector connects only when ctx ends, and then fails.
type blockingConnector struct{}

func (blockingConnector) Scan(context.Context) ([]Peer, error) { return nil, ErrNoPeers }

func (blockingConnector) Connect(ctx context.Context, _ Peer, _ func([]byte)) (Link, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() Config {
	return Config{
		Link:   LinkConfig{Mode: "ble", NamePrefix: "BBC micro:bit"},
		Camera: CameraConfig{Source: "auto", Facing: facingUser, FPS: 30},
	}
}

func press(m model, key string) model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(model)
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModelStartWithoutLink(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})

	m = press(m, "s")

	assert.Equal(t, "Bluetooth is not connected.", m.notice)
	assert.False(t, m.detector.Active())
	assert.Contains(t, m.View(), "Bluetooth is not connected.")
}

func TestModelConnectStartStop(t *testing.T) {
	link := &fakeLink{}
	m := newModel(testConfig(), &fakeConnector{link: link})

	m, _ = update(m, connectedMsg{link: link})
	assert.Equal(t, "Connected to fake", m.status)
	require.True(t, m.tx.Connected())

	m, _ = update(m, sourceOpenedMsg{source: &fakeSource{frame: solidFrame(captureWidth, captureHeight, RGB{5, 6, 7})}, method: "fake"})
	m = press(m, "s")
	require.True(t, m.detector.Active())

	m, cmd := update(m, frameTickMsg{gen: m.sourceGen})
	assert.NotNil(t, cmd)
	require.NotNil(t, m.reading)
	assert.Equal(t, "R005 G006 B007", m.reading.Payload.Display)
	assert.Contains(t, m.View(), "Sent to micro:bit: R005 G006 B007")
	m.tx.Wait()

	m = press(m, "x")
	m.tx.Wait()
	assert.False(t, m.detector.Active())
	assert.Nil(t, m.reading)
	assert.Contains(t, m.View(), "Sent to micro:bit: none")
	assert.Equal(t, []string{"R005G006B007\n", "stop\n"}, link.Writes())
}

func TestModelIgnoresStaleFrameTick(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	m, _ = update(m, sourceOpenedMsg{source: &fakeSource{frame: solidFrame(captureWidth, captureHeight, RGB{})}, method: "fake"})

	m, cmd := update(m, frameTickMsg{gen: m.sourceGen - 1})
	assert.Nil(t, cmd)
	assert.Nil(t, m.frame)
}

func TestModelScanSelectsAmongPeers(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	peers := []Peer{{ID: "a", Name: "BBC micro:bit [zotuv]", Address: "a"}, {ID: "b", Name: "BBC micro:bit [gipev]", Address: "b"}}

	m, _ = update(m, scanDoneMsg{peers: peers})
	require.Equal(t, stateSelecting, m.state)

	m = press(m, "j")
	assert.Equal(t, 1, m.cursor)

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stateConnecting, m.state)
	assert.NotNil(t, cmd)
}

func TestModelScanFailure(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	m, _ = update(m, scanDoneMsg{err: ErrNoPeers})

	assert.Equal(t, stateIdle, m.state)
	assert.Equal(t, "Connection Failed", m.status)
}

func TestModelDisconnectStopsDetection(t *testing.T) {
	link := &fakeLink{}
	m := newModel(testConfig(), &fakeConnector{link: link})
	m, _ = update(m, connectedMsg{link: link})
	m = press(m, "s")
	require.True(t, m.detector.Active())

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	require.NotNil(t, cmd)
	cmd()

	assert.False(t, m.detector.Active())
	assert.False(t, m.tx.Connected())
	assert.Equal(t, "Disconnected", m.status)
	assert.True(t, link.Closed())
	assert.Equal(t, []string{"stop\n"}, link.Writes())
}

func TestModelFlipAndSwitch(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	m = press(m, "f")
	assert.True(t, m.mirror)

	m, _ = update(m, sourceOpenedMsg{source: &fakeSource{}, method: "fake"})
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	assert.Equal(t, facingEnvironment, m.facing)
	assert.Nil(t, m.source)
	assert.NotNil(t, cmd)
}

func TestModelDiscardsSupersededSourceOpen(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	m = press(m, "w") // the initial open is still pending

	first, second := &fakeSource{}, &fakeSource{}
	m, cmd := update(m, sourceOpenedMsg{gen: 0, source: first, method: "fake"})
	require.NotNil(t, cmd)
	cmd()
	assert.True(t, first.closed)
	assert.Nil(t, m.source)

	m, _ = update(m, sourceOpenedMsg{gen: 1, source: second, method: "fake"})
	assert.Same(t, second, m.source)
	assert.False(t, second.closed)
}

func TestModelDiscardsSourceOpenArrivingLate(t *testing.T) {
	m := newModel(testConfig(), &fakeConnector{})
	m = press(m, "w")

	first, second := &fakeSource{}, &fakeSource{}
	m, _ = update(m, sourceOpenedMsg{gen: 1, source: second, method: "fake"})
	m, cmd := update(m, sourceOpenedMsg{gen: 0, source: first, method: "fake"})
	require.NotNil(t, cmd)
	cmd()

	assert.Same(t, second, m.source)
	assert.True(t, first.closed)
	assert.False(t, second.closed)
}

func TestModelShutdown(t *testing.T) {
	link := &fakeLink{}
	source := &fakeSource{frame: solidFrame(captureWidth, captureHeight, RGB{5, 6, 7})}
	m := newModel(testConfig(), &fakeConnector{link: link})

	m, _ = update(m, connectedMsg{link: link})
	m, _ = update(m, sourceOpenedMsg{source: source, method: "fake"})
	m = press(m, "s")
	require.True(t, m.detector.Active())
	m, _ = update(m, frameTickMsg{gen: m.sourceGen})

	m.shutdown()

	writes := link.Writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, "stop\n", writes[len(writes)-1])
	assert.Equal(t, []string{"R005G006B007\n", "stop\n"}, writes)
	assert.True(t, link.Closed())
	assert.True(t, source.closed)
	assert.False(t, m.detector.Active())
}

func TestModelShutdownClosesUnclaimedLink(t *testing.T) {
	link := &fakeLink{}
	m := newModel(testConfig(), &fakeConnector{link: link})

	msg := connectCmd(m.connector, Peer{Name: "fake"}, m.received, m.connects)()
	require.NoError(t, msg.(connectedMsg).err)

	// Quit before the model saw connectedMsg.
	m.shutdown()
	assert.True(t, link.Closed())
}

func TestModelShutdownCancelsConnect(t *testing.T) {
	m := newModel(testConfig(), blockingConnector{})

	done := make(chan tea.Msg, 1)
	go func() {
		done <- connectCmd(m.connector, Peer{Name: "fake"}, m.received, m.connects)()
	}()

	m.shutdown()
	msg := <-done
	assert.ErrorIs(t, msg.(connectedMsg).err, context.Canceled)
}

func TestModelClaimedLinkNotClosedTwice(t *testing.T) {
	link := &fakeLink{}
	m := newModel(testConfig(), &fakeConnector{link: link})

	msg := connectCmd(m.connector, Peer{Name: "fake"}, m.received, m.connects)()
	m, _ = update(m, msg)
	require.Same(t, link, m.link)
	assert.Empty(t, m.connects.links)

	m.shutdown()
	assert.True(t, link.Closed())
}
