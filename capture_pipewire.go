package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest    = "org.freedesktop.portal.Desktop"
	portalPath    = "/org/freedesktop/portal/desktop"
	cameraIface   = "org.freedesktop.portal.Camera"
	requestIface  = "org.freedesktop.portal.Request"
	portalTimeout = 120 * time.Second // user may need time to allow camera access
)

type pipeWireSource struct {
	*pipeSource
}

// newPipeWireSource asks the desktop portal for camera access and streams the
// default camera through GStreamer. The portal offers no way to pick a
// facing mode, so only the front camera is served here.
func newPipeWireSource(cfg CameraConfig) (FrameSource, string, error) {
	if cfg.Facing != facingUser {
		return nil, "", fmt.Errorf("pipewire portal: no %s camera selection", cfg.Facing)
	}
	if !hasExecutable("gst-launch-1.0") {
		return nil, "", fmt.Errorf("gst-launch-1.0 not found")
	}

	dbConn, pwFile, err := acquireCameraRemote()
	if err != nil {
		return nil, "", fmt.Errorf("pipewire portal: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// GStreamer child process inherits pwFile via ExtraFiles.
	// ExtraFiles[0] becomes fd 3 in the child.
	cmd := exec.CommandContext(ctx, "gst-launch-1.0", "-q",
		"pipewiresrc", "fd=3",
		"!", "videoconvert",
		"!", "videoscale",
		"!", fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", captureWidth, captureHeight),
		"!", "fdsink", "fd=1",
	)
	cmd.ExtraFiles = []*os.File{pwFile}

	s, err := startPipeSource(cancel, cmd, "gstreamer", func() {
		pwFile.Close()
		dbConn.Close()
	})
	if err != nil {
		return nil, "", err
	}
	return pipeWireSource{s}, "PipeWire", nil
}

// acquireCameraRemote requests camera access via the XDG Desktop Portal and
// returns the D-Bus connection (must stay open) and a PipeWire remote file
// descriptor for GStreamer.
func acquireCameraRemote() (*dbus.Conn, *os.File, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	if !conn.SupportsUnixFDs() {
		conn.Close()
		return nil, nil, fmt.Errorf("D-Bus connection does not support Unix FD passing")
	}

	portal := conn.Object(portalDest, dbus.ObjectPath(portalPath))

	present, err := portal.GetProperty(cameraIface + ".IsCameraPresent")
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("IsCameraPresent: %w", err)
	}
	if ok, _ := present.Value().(bool); !ok {
		conn.Close()
		return nil, nil, fmt.Errorf("no camera present")
	}

	sender := senderToToken(conn.Names()[0])
	reqToken := appName + "_camera"
	reqPath := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", sender, reqToken))

	sigCh := subscribeSignal(conn, reqPath)
	defer conn.RemoveSignal(sigCh)

	call := portal.Call(cameraIface+".AccessCamera", 0, map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(reqToken),
	})
	if call.Err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("AccessCamera: %w", call.Err)
	}

	if _, err := waitForResponse(sigCh, portalTimeout); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("AccessCamera response: %w", err)
	}

	var pwFd dbus.UnixFD
	err = portal.Call(cameraIface+".OpenPipeWireRemote", 0, map[string]dbus.Variant{}).Store(&pwFd)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("OpenPipeWireRemote: %w", err)
	}

	pwFile := os.NewFile(uintptr(pwFd), "pipewire-remote")
	if pwFile == nil {
		conn.Close()
		return nil, nil, fmt.Errorf("invalid PipeWire fd")
	}

	return conn, pwFile, nil
}

// subscribeSignal registers a D-Bus signal match for the portal Response signal
// at the given path and returns a channel that receives matching signals.
func subscribeSignal(conn *dbus.Conn, path dbus.ObjectPath) chan *dbus.Signal {
	ch := make(chan *dbus.Signal, 1)
	conn.Signal(ch)
	conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		fmt.Sprintf("type='signal',interface='%s',member='Response',path='%s'", requestIface, path))
	return ch
}

// waitForResponse waits for a portal Response signal and returns the results map.
// A non-zero response code indicates the user denied or the request failed.
func waitForResponse(ch chan *dbus.Signal, timeout time.Duration) (map[string]dbus.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case sig := <-ch:
			if sig == nil {
				return nil, fmt.Errorf("signal channel closed")
			}
			results, err := parseResponse(sig)
			if errors.Is(err, errUnrelatedSignal) {
				continue
			}
			return results, err
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for portal response")
		}
	}
}

// parseResponse decodes a Response signal body of (u response, a{sv} results).
// Signals with another shape are reported as errUnrelatedSignal.
func parseResponse(sig *dbus.Signal) (map[string]dbus.Variant, error) {
	if len(sig.Body) < 2 {
		return nil, errUnrelatedSignal
	}
	code, ok := sig.Body[0].(uint32)
	if !ok {
		return nil, errUnrelatedSignal
	}
	if code != 0 {
		return nil, fmt.Errorf("portal request denied (code %d)", code)
	}
	results, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("unexpected response type")
	}
	return results, nil
}

var errUnrelatedSignal = errors.New("not a portal response")

// senderToToken converts a D-Bus sender name like ":1.42" to "1_42" for use
// in request object paths.
func senderToToken(sender string) string {
	s := strings.TrimPrefix(sender, ":")
	return strings.ReplaceAll(s, ".", "_")
}
