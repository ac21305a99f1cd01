// Package sshx implements the SSH transport for device collection:
// driver profiles, interactive prompt-driven sessions, the per-device
// command protocol, and connect-only probing for credential discovery.
package sshx

import "regexp"

// Profile captures the per-driver conventions the session layer needs:
// what a prompt looks like and how to disable paging when the platform
// record does not say.
type Profile struct {
	// Driver is the platform hint, e.g. "cisco_ios".
	Driver string

	// PromptPattern matches the trailing shell prompt line.
	PromptPattern *regexp.Regexp

	// DefaultPaging is the paging-disable command used when the device's
	// platform record carries none.
	DefaultPaging string
}

// genericPrompt matches the common network-OS prompt shapes:
// "hostname#", "hostname>", "user@host%", "host(config)#".
var genericPrompt = regexp.MustCompile(`[\w\-.@/:()\[\]]+[#>$%]\s*$`)

var profiles = map[string]Profile{
	"cisco_ios":      {Driver: "cisco_ios", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
	"cisco_xe":       {Driver: "cisco_xe", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
	"cisco_xr":       {Driver: "cisco_xr", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
	"cisco_nxos":     {Driver: "cisco_nxos", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
	"cisco_asa":      {Driver: "cisco_asa", PromptPattern: genericPrompt, DefaultPaging: "terminal pager 0"},
	"arista_eos":     {Driver: "arista_eos", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
	"juniper_junos":  {Driver: "juniper_junos", PromptPattern: genericPrompt, DefaultPaging: "set cli screen-length 0"},
	"paloalto_panos": {Driver: "paloalto_panos", PromptPattern: genericPrompt, DefaultPaging: "set cli pager off"},
	"hp_procurve":    {Driver: "hp_procurve", PromptPattern: genericPrompt, DefaultPaging: "no page"},
	"hp_comware":     {Driver: "hp_comware", PromptPattern: genericPrompt, DefaultPaging: "screen-length disable"},
	"dell_os10":      {Driver: "dell_os10", PromptPattern: genericPrompt, DefaultPaging: "terminal length 0"},
}

// ProfileFor returns the driver profile for a hint, falling back to a
// generic profile for unknown drivers.
func ProfileFor(driver string) Profile {
	if p, ok := profiles[driver]; ok {
		return p
	}
	return Profile{Driver: driver, PromptPattern: genericPrompt}
}
