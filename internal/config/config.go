// Package config holds the session configuration surface.
package config

import "time"

// STUN servers used when the caller supplies none. No TURN — relay
// endpoints are never carried in the payload and must be pre-shared
// out of band.
var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config controls one connection session.
type Config struct {
	ICEServers    []string      // STUN/TURN URLs handed to the transport
	MaxCandidates int           // payload candidate cap
	Timeout       time.Duration // overall session timeout, Displaying onward
	GatherTimeout time.Duration // bounded wait for candidate gathering
	ChannelLabel  string        // label of the application data channel
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ICEServers:    defaultSTUNServers,
		MaxCandidates: 4,
		Timeout:       30 * time.Second,
		GatherTimeout: 10 * time.Second,
		ChannelLabel:  "qwbp",
	}
}

// WithDefaults fills unset fields from Default, so a zero or partially
// filled Config is usable as-is.
func (c Config) WithDefaults() Config {
	d := Default()
	if len(c.ICEServers) == 0 {
		c.ICEServers = d.ICEServers
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = d.GatherTimeout
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = d.ChannelLabel
	}
	return c
}
