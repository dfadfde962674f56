package openstack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// consoleProtocolType maps the abstract console enum to nova's protocol/type pair.
func consoleProtocolType(t ConsoleType) (string, string, error) {
	switch t {
	case ConsoleNoVNC:
		return "vnc", "novnc", nil
	case ConsoleVNC:
		return "vnc", "xvpvnc", nil
	case ConsoleSerial:
		return "serial", "serial", nil
	case ConsoleSpice:
		return "spice", "spice-html5", nil
	case ConsoleRDP:
		return "rdp", "rdp-html5", nil
	case ConsoleMKS:
		return "mks", "webmks", nil
	default:
		return "", "", fmt.Errorf("unknown console type %q", t)
	}
}

// CreateConsole asks nova for a one-time remote console URL for the server.
// Browser VNC consoles get a display-scaling hint appended when absent so the
// guest framebuffer fits the viewer.
func (c *Client) CreateConsole(ctx context.Context, p Provider, scope ProjectScope, remoteID string, consoleType ConsoleType) (string, error) {
	protocol, typ, err := consoleProtocolType(consoleType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return "", fmt.Errorf("%w: server id is required", ErrRequestFailed)
	}
	status, body, err := c.do(ctx, p, scope, http.MethodPost, "/servers/"+remoteID+"/remote-consoles", remoteConsoleRequest{
		RemoteConsole: remoteConsoleSpec{Protocol: protocol, Type: typ},
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFoundRemote, remoteID)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: remote console returned %d: %s", ErrRequestFailed, status, bodySnippet(body))
	}
	var parsed remoteConsoleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed console response: %v", ErrRequestFailed, err)
	}
	consoleURL := strings.TrimSpace(parsed.RemoteConsole.URL)
	if consoleURL == "" {
		return "", fmt.Errorf("%w: console response missing url", ErrRequestFailed)
	}
	if typ == "novnc" {
		consoleURL = withScaleHint(consoleURL)
	}
	return consoleURL, nil
}

func withScaleHint(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Has("scale") {
		return raw
	}
	query.Set("scale", "true")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
