package engine

import (
	"os"
	"strings"
)

// UnknownHost replaces the host identity when it cannot be determined.
const UnknownHost = "unknown"

// IdentityProvider supplies the host identity recorded in a report.
type IdentityProvider interface {
	Hostname() (string, error)
}

// OSIdentity reads the identity from the operating system.
type OSIdentity struct{}

func (OSIdentity) Hostname() (string, error) {
	return os.Hostname()
}

// StaticIdentity always reports the same host name.
type StaticIdentity string

func (s StaticIdentity) Hostname() (string, error) {
	return string(s), nil
}

func resolveHostname(id IdentityProvider) string {
	if id == nil {
		return UnknownHost
	}
	name, err := id.Hostname()
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		return UnknownHost
	}
	return name
}
