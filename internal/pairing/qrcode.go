// Package pairing encodes server connection details as QR codes so build
// dashboards and preview devices can attach to the live event stream.
package pairing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ConnectionInfo contains the information encoded in the QR code.
type ConnectionInfo struct {
	WebSocket string `json:"ws"`
	HTTP      string `json:"http"`
	ServerID  string `json:"server"`
	Root      string `json:"root"`
}

// Generator builds connection QR codes for one server instance.
type Generator struct {
	host        string
	port        int
	serverID    string
	rootName    string
	externalURL string // Optional: public URL clients reach the server through (tunnels, port forwarding)
}

// NewGenerator creates a QR code generator.
func NewGenerator(host string, port int, serverID, rootName string) *Generator {
	return &Generator{
		host:     host,
		port:     port,
		serverID: serverID,
		rootName: rootName,
	}
}

// SetExternalURL overrides the advertised URLs with a public one. The
// WebSocket URL is derived from it by scheme (https becomes wss).
func (g *Generator) SetExternalURL(rawURL string) {
	g.externalURL = strings.TrimRight(rawURL, "/")
}

// Info returns the connection information the QR code encodes.
func (g *Generator) Info() *ConnectionInfo {
	httpURL := fmt.Sprintf("http://%s:%d", g.host, g.port)
	wsURL := fmt.Sprintf("ws://%s:%d/ws", g.host, g.port)

	if g.externalURL != "" {
		httpURL = g.externalURL
		wsURL = deriveWebSocketURL(g.externalURL)
	}

	return &ConnectionInfo{
		WebSocket: wsURL,
		HTTP:      httpURL,
		ServerID:  g.serverID,
		Root:      g.rootName,
	}
}

// JSON returns the connection info as JSON.
func (g *Generator) JSON() (string, error) {
	data, err := json.Marshal(g.Info())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Terminal renders the QR code as a terminal-friendly string.
func (g *Generator) Terminal() (string, error) {
	payload, err := g.JSON()
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// PNG renders the QR code as a PNG image of the given pixel size.
func (g *Generator) PNG(size int) ([]byte, error) {
	payload, err := g.JSON()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// PrintToTerminal prints the QR code to the terminal with a caption.
func (g *Generator) PrintToTerminal() {
	qrStr, err := g.Terminal()
	if err != nil {
		fmt.Printf("  [Error generating QR code: %v]\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Scan to connect to the stoker event stream:")
	fmt.Println()

	for _, line := range strings.Split(qrStr, "\n") {
		if line != "" {
			fmt.Printf("  %s\n", line)
		}
	}

	fmt.Println()
}

// deriveWebSocketURL maps a public HTTP URL onto its WebSocket endpoint,
// preserving the security of the scheme.
func deriveWebSocketURL(httpURL string) string {
	parsed, err := url.Parse(httpURL)
	if err != nil {
		return httpURL + "/ws"
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String()
}
