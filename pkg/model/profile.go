package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the RFB display :0 port used when a profile omits one.
const DefaultPort = 5900

// Profile identifies a remote endpoint a viewer can connect to.
// The struct is comparable; == is the identity used for history dedup.
type Profile struct {
	HostName      string `json:"hostName"`
	PortNumber    int    `json:"portNumber"`
	UseSSH        bool   `json:"useSsh,omitempty"`
	SSHHostName   string `json:"sshHostName,omitempty"`
	SSHPortNumber int    `json:"sshPortNumber,omitempty"`
	SSHUserName   string `json:"sshUserName,omitempty"`
}

// NewProfile returns a plain (no tunnel) profile.
func NewProfile(host string, port int) Profile {
	return Profile{HostName: host, PortNumber: port}
}

// ParseProfile accepts "host", "host:port", "host::port" and "[v6]:port".
// A missing port defaults to DefaultPort. IPv6 literals need brackets.
func ParseProfile(s string) (Profile, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Profile{}, fmt.Errorf("empty address")
	}
	if i := strings.Index(s, "::"); i > 0 && !strings.Contains(s[:i], ":") && !strings.HasPrefix(s, "[") {
		port, err := parsePort(s[i+2:])
		if err != nil {
			return Profile{}, err
		}
		return NewProfile(s[:i], port), nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// bare host, or a bare IPv6 literal
		return NewProfile(strings.Trim(s, "[]"), DefaultPort), nil
	}
	if host == "" {
		return Profile{}, fmt.Errorf("missing host in %q", s)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Profile{}, err
	}
	return NewProfile(host, port), nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// Address returns host:port suitable for net.Dial.
func (p Profile) Address() string {
	return net.JoinHostPort(p.HostName, strconv.Itoa(p.PortNumber))
}

// IsBlank reports whether the host name is unset or whitespace only.
func (p Profile) IsBlank() bool {
	return strings.TrimSpace(p.HostName) == ""
}

func (p Profile) String() string {
	s := fmt.Sprintf("%s:%d", p.HostName, p.PortNumber)
	if p.UseSSH {
		s += fmt.Sprintf(" via ssh %s@%s:%d", p.SSHUserName, p.SSHHostName, p.SSHPortNumber)
	}
	return s
}
