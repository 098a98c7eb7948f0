// Package rtc holds the WebRTC settings handed to browsers. The server never
// terminates media itself; peers connect directly using these ICE servers.
package rtc

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/StudyRoom/internal/config"
)

// DefaultWebRTCConfig is used when no ICE servers are configured.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewWebRTCConfig validates every configured URL and builds the client config.
func NewWebRTCConfig(cfg config.ICEConfig) (webrtc.Configuration, error) {
	if len(cfg.URLs) == 0 {
		return DefaultWebRTCConfig(), nil
	}
	server := webrtc.ICEServer{URLs: make([]string, 0, len(cfg.URLs))}
	needsAuth := false
	for _, raw := range cfg.URLs {
		u, err := stun.ParseURI(raw)
		if err != nil {
			return webrtc.Configuration{}, fmt.Errorf("ice url %q: %w", raw, err)
		}
		if u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS {
			needsAuth = true
		}
		server.URLs = append(server.URLs, raw)
	}
	if needsAuth {
		if cfg.Username == "" || cfg.Credential == "" {
			return webrtc.Configuration{}, fmt.Errorf("turn servers need username and credential")
		}
		server.Username = cfg.Username
		server.Credential = cfg.Credential
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{server}}, nil
}
