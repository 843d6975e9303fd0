package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for the cedar server.
type ServerConfig struct {
	// Port is the TCP port the RESP listener binds to
	Port int

	// DumpPath is the snapshot file the server loads on boot and writes
	// on SAVE and on graceful shutdown
	DumpPath string

	// SaveIntervalSec enables periodic background snapshots when > 0
	SaveIntervalSec int

	// DebugAddr, when non-empty, starts an HTTP listener serving
	// /metrics, /stats and pprof
	DebugAddr string

	// Logging configuration
	LogLevel string
}

// Addr returns the listen address for the RESP listener
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RESP Server")
	addField("Port", strconv.Itoa(c.Port))
	if c.DebugAddr != "" {
		addField("Debug Address", c.DebugAddr)
	}

	addSection("Persistence")
	addField("Dump Path", c.DumpPath)
	if c.SaveIntervalSec > 0 {
		addField("Save Interval", fmt.Sprintf("%d sec", c.SaveIntervalSec))
	} else {
		addField("Save Interval", "disabled")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Hostname      string
	Port          int
	TimeoutSecond int
}

// Addr returns the dial address for the configured server
func (c *ClientConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Hostname", c.Hostname)
	addField("Port", strconv.Itoa(c.Port))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
