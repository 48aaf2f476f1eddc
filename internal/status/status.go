// Package status reads tunnel runtime state from the backend's local control
// socket and keeps a polled snapshot for the UI and CLI.
package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Peer is a site the tunnel knows about.
type Peer struct {
	SiteID    int     `json:"siteId"`
	Name      string  `json:"name,omitempty"`
	Connected bool    `json:"connected"`
	RTT       float64 `json:"rtt,omitempty"`
	LastSeen  string  `json:"lastSeen,omitempty"`
	Endpoint  string  `json:"endpoint,omitempty"`
	IsRelay   bool    `json:"isRelay,omitempty"`
}

// Error is a structured backend-reported failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status is the control socket's status document.
type Status struct {
	Connected       bool            `json:"connected"`
	Terminated      bool            `json:"terminated"`
	Registered      bool            `json:"registered"`
	TunnelIP        string          `json:"tunnelIP,omitempty"`
	Version         string          `json:"version,omitempty"`
	Agent           string          `json:"agent,omitempty"`
	OrgID           string          `json:"orgId,omitempty"`
	Peers           map[string]Peer `json:"peers,omitempty"`
	NetworkSettings json.RawMessage `json:"networkSettings,omitempty"`
	Error           *Error          `json:"error,omitempty"`
}

// ConnectedPeers returns how many peers report a live connection.
func (s *Status) ConnectedPeers() int {
	n := 0
	for _, p := range s.Peers {
		if p.Connected {
			n++
		}
	}
	return n
}

// Snapshot is the poller's last observation of the control socket.
type Snapshot struct {
	Available bool
	Status    *Status
	UpdatedAt time.Time
	LastError string
}

// FormattedText renders the snapshot as a short human-readable report.
func (s Snapshot) FormattedText() string {
	var b strings.Builder
	if !s.Available {
		b.WriteString("tunnel: not running\n")
		if s.LastError != "" {
			fmt.Fprintf(&b, "last error: %s\n", s.LastError)
		}
		return b.String()
	}

	st := s.Status
	state := "disconnected"
	if st.Connected {
		state = "connected"
	}
	if st.Terminated {
		state = "terminated"
	}
	fmt.Fprintf(&b, "tunnel: %s\n", state)
	if st.TunnelIP != "" {
		fmt.Fprintf(&b, "address: %s\n", st.TunnelIP)
	}
	if st.OrgID != "" {
		fmt.Fprintf(&b, "organization: %s\n", st.OrgID)
	}
	fmt.Fprintf(&b, "registered: %v\n", st.Registered)
	if st.Version != "" {
		fmt.Fprintf(&b, "backend: %s %s\n", st.Agent, st.Version)
	}

	if len(st.Peers) > 0 {
		fmt.Fprintf(&b, "peers (%d connected of %d):\n", st.ConnectedPeers(), len(st.Peers))
		ids := make([]string, 0, len(st.Peers))
		for id := range st.Peers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := st.Peers[id]
			mark := "down"
			if p.Connected {
				mark = "up"
			}
			fmt.Fprintf(&b, "  site %s (%s): %s", id, p.Name, mark)
			if p.Connected && p.RTT > 0 {
				fmt.Fprintf(&b, ", rtt %.1fms", p.RTT)
			}
			if p.IsRelay {
				b.WriteString(", relayed")
			}
			b.WriteString("\n")
		}
	}

	if st.Error != nil {
		fmt.Fprintf(&b, "error [%s]: %s\n", st.Error.Code, st.Error.Message)
	}
	fmt.Fprintf(&b, "updated: %s\n", s.UpdatedAt.Format(time.RFC3339))
	return b.String()
}
