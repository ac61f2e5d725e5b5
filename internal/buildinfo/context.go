// Package buildinfo holds build-time metadata injected through -ldflags.
package buildinfo

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// GetVersion returns the build version, "unknown" when not stamped.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date, "unknown" when not stamped.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String renders "version (build date)".
func (c *Context) String() string {
	return c.GetVersion() + " (" + c.GetBuildDate() + ")"
}
