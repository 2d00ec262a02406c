// Package buildinfo carries build-time metadata injected at startup.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is returned for metadata that was not injected at build time
const UnknownValue = "unknown"

// BuildInfo provides read access to build metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	// RunID identifies this process in telemetry and logs
	RunID() string
}

// Context holds build metadata. It is not part of the user configuration.
type Context struct {
	version   string
	buildDate string
	runID     string
}

// NewContext creates a Context with a fresh run ID.
func NewContext(version, buildDate string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		runID:     uuid.NewString(),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// Version returns the git version tag of the build
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.version)
}

// BuildDate returns the build timestamp
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.buildDate)
}

// RunID returns the per-process identifier
func (c *Context) RunID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.runID)
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.Version(), c.BuildDate())
}
