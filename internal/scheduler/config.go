package scheduler

import (
	"fmt"
	"time"
)

// Config holds the timing knobs from spec §6's External Interfaces table.
// Grounded on the teacher's SilenceManagerConfig pattern: defaults via
// DefaultConfig, guards enforced by Validate.
type Config struct {
	// RefreshInterval is T_refresh, the period between refresh loader ticks.
	RefreshInterval time.Duration
	// ScanInterval is T_scan, the period between fire scanner ticks.
	ScanInterval time.Duration
	// ActivationLookahead is the upper bound of the activation window
	// relative to now.
	ActivationLookahead time.Duration
	// RecoveryLookback is the lower bound of the activation window,
	// i.e. the overdue-recovery budget.
	RecoveryLookback time.Duration
	// DispatchDeadline is the per-firing total deadline on outbound I/O.
	DispatchDeadline time.Duration
	// MinimumCreationDelay is the rejection threshold for create
	// (execute_at - now).
	MinimumCreationDelay time.Duration
	// PublishEnabled says whether the publish transport is configured.
	PublishEnabled bool
}

// DefaultConfig returns the defaults from spec §6.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:      30 * time.Second,
		ScanInterval:         1 * time.Second,
		ActivationLookahead:  60 * time.Second,
		RecoveryLookback:     5 * time.Minute,
		DispatchDeadline:     30 * time.Second,
		MinimumCreationDelay: 5 * time.Second,
		PublishEnabled:       false,
	}
}

// Validate enforces the eventual-consistency budget from spec §9:
// activationLookahead must comfortably exceed RefreshInterval+ScanInterval
// so a timer created just before execute_at is in the hot set before due.
func (c Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler: refresh interval must be positive")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scheduler: scan interval must be positive")
	}
	if c.RecoveryLookback <= 0 {
		return fmt.Errorf("scheduler: recovery lookback must be positive")
	}
	minLookahead := c.RefreshInterval + c.ScanInterval
	if c.ActivationLookahead <= minLookahead {
		return fmt.Errorf("scheduler: activation lookahead (%s) must exceed refresh+scan interval (%s) with safety slack", c.ActivationLookahead, minLookahead)
	}
	if c.DispatchDeadline <= 0 {
		return fmt.Errorf("scheduler: dispatch deadline must be positive")
	}
	if c.MinimumCreationDelay < 0 {
		return fmt.Errorf("scheduler: minimum creation delay cannot be negative")
	}
	return nil
}
