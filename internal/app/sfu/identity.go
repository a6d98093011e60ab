package sfu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dkeye/voicegate/internal/domain"
)

const controlPath = "/server"

var serverIDReplacer = regexp.MustCompile(`[^a-z0-9_-]+`)

// Identity is how this server instance presents itself to the SFU.
// It never changes after construction.
type Identity struct {
	ServerID    string
	ServerToken string
	SFUHost     string
}

func NewIdentity(serverName, serverToken, sfuHost string) (Identity, error) {
	id := NormalizeServerID(serverName)
	switch {
	case id == "":
		return Identity{}, fmt.Errorf("%w: server name is required", domain.ErrConfiguration)
	case strings.TrimSpace(serverToken) == "":
		return Identity{}, fmt.Errorf("%w: server token is required", domain.ErrConfiguration)
	case strings.TrimSpace(sfuHost) == "":
		return Identity{}, fmt.Errorf("%w: sfu host is required", domain.ErrConfiguration)
	}
	return Identity{
		ServerID:    id,
		ServerToken: serverToken,
		SFUHost:     strings.TrimSpace(sfuHost),
	}, nil
}

// NormalizeServerID turns a display name into an id usable as a room prefix.
func NormalizeServerID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = serverIDReplacer.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

// ControlURL is the websocket address of the SFU control endpoint.
func (i Identity) ControlURL() string {
	host := i.SFUHost
	switch {
	case strings.HasPrefix(host, "https://"):
		host = "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		host = "ws://" + strings.TrimPrefix(host, "http://")
	case strings.HasPrefix(host, "wss://"), strings.HasPrefix(host, "ws://"):
	default:
		host = "wss://" + host
	}
	host = strings.TrimRight(host, "/")
	if !strings.HasSuffix(host, controlPath) {
		host += controlPath
	}
	return host
}
