package types

import "time"

// Platform carries the driver hint and paging convention for a device OS.
type Platform struct {
	ID   int64
	Name string
	Slug string

	// Driver is the SSH behavior hint, e.g. "cisco_ios" or
	// "juniper_junos". It selects prompt and paging conventions.
	Driver string

	// PagingCommand disables terminal paging for this platform, e.g.
	// "terminal length 0". Empty means no prelude is needed.
	PagingCommand string

	ManufacturerID int64
	Manufacturer   string
}

// Device is a row from the inventory read model. The collection core
// never mutates devices except for credential test stamps written by
// the discovery engine.
type Device struct {
	ID   int64
	Name string

	SiteID int64
	Site   string

	RoleID int64
	Role   string

	Platform Platform

	// Status is the inventory lifecycle state; only devices matching the
	// filter's status (default "active") are eligible.
	Status string

	// PrimaryAddress is the management address contacted over SSH.
	// Devices without one are never selected.
	PrimaryAddress string

	// PinnedCredentialID is an explicit credential association; zero
	// means none. A pin is honored only when the last test succeeded.
	PinnedCredentialID int64

	// LastCredTestResult is "success", "failed", or empty if untested.
	LastCredTestResult string
	LastCredTestAt     time.Time
}

// HasWorkingPin reports whether the device's pinned credential should be
// used without consulting defaults.
func (d *Device) HasWorkingPin() bool {
	return d.PinnedCredentialID != 0 && d.LastCredTestResult == "success"
}
