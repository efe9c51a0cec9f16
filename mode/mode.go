// Package mode models the installation layouts a node can be provisioned
// with. Mode is a closed set of variants; derived properties are obtained
// through Layout, which handles every variant.
package mode

import (
	"fmt"
	"strings"
)

// KeyStrategy selects how node keys are produced.
type KeyStrategy string

const (
	// KeyInline stores keys inside the data directory, as older installs did.
	KeyInline KeyStrategy = "inline"
	// KeyDerived derives keys on the host from a seed.
	KeyDerived KeyStrategy = "derived"
	// KeyExternal expects keys to be supplied by the operator.
	KeyExternal KeyStrategy = "external"
)

// Mode is one of Legacy, Standard or Advanced.
type Mode interface {
	isMode()
}

// Legacy runs the node as root out of root's home directory.
type Legacy struct{}

// Standard runs the node as a dedicated system user under /var/lib.
type Standard struct{}

// Advanced lets the operator choose the data directory and service user.
type Advanced struct {
	DataDir     string
	ServiceUser string
}

func (Legacy) isMode()   {}
func (Standard) isMode() {}
func (Advanced) isMode() {}

// Layout is the set of properties derived from a Mode.
type Layout struct {
	DataDir     string
	ServiceUser string
	KeyStrategy KeyStrategy
}

// LayoutOf returns the derived properties of m.
func LayoutOf(m Mode) Layout {
	switch m := m.(type) {
	case Legacy:
		return Layout{DataDir: "/root/.node", ServiceUser: "root", KeyStrategy: KeyInline}
	case Standard:
		return Layout{DataDir: "/var/lib/node", ServiceUser: "node", KeyStrategy: KeyDerived}
	case Advanced:
		return Layout{DataDir: m.DataDir, ServiceUser: m.ServiceUser, KeyStrategy: KeyExternal}
	default:
		panic(fmt.Sprintf("mode: unhandled variant %T", m))
	}
}

// Name returns the canonical name of m.
func Name(m Mode) string {
	switch m.(type) {
	case Legacy:
		return "legacy"
	case Standard:
		return "standard"
	case Advanced:
		return "advanced"
	default:
		panic(fmt.Sprintf("mode: unhandled variant %T", m))
	}
}

// Parse converts a mode name into a Mode. Advanced requires dataDir and
// serviceUser; they are ignored by the other modes.
func Parse(name, dataDir, serviceUser string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "legacy":
		return Legacy{}, nil
	case "", "standard":
		return Standard{}, nil
	case "advanced":
		if dataDir == "" || serviceUser == "" {
			return nil, fmt.Errorf("advanced mode requires data_dir and service_user")
		}
		if !strings.HasPrefix(dataDir, "/") {
			return nil, fmt.Errorf("data_dir must be absolute, got %q", dataDir)
		}
		return Advanced{DataDir: dataDir, ServiceUser: serviceUser}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", name)
	}
}
