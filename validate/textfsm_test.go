package validate_test

import (
	"strings"
	"testing"

	"github.com/velocitylabs/vcollect/validate"
)

const arpTemplate = `Value PROTOCOL (\S+)
Value ADDRESS (\d+\.\d+\.\d+\.\d+)
Value AGE (\S+)
Value MAC (\S+\.\S+\.\S+)
Value TYPE (\S+)
Value INTERFACE (\S+)

Start
  ^Protocol\s+Address -> Entries

Entries
  ^${PROTOCOL}\s+${ADDRESS}\s+${AGE}\s+${MAC}\s+${TYPE}\s+${INTERFACE} -> Record
`

const arpOutput = `Protocol  Address          Age (min)  Hardware Addr   Type   Interface
Internet  10.1.0.1                0   aabb.cc00.0100  ARPA   Vlan10
Internet  10.1.0.2                5   aabb.cc00.0200  ARPA   Vlan10
Internet  10.1.0.3                -   aabb.cc00.0300  ARPA   Vlan20`

func TestTemplate_ParsesTabularOutput(t *testing.T) {
	tpl, err := validate.ParseTemplate(arpTemplate)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	records, err := tpl.Execute(arpOutput)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(records), records)
	}
	if records[0]["ADDRESS"] != "10.1.0.1" || records[0]["INTERFACE"] != "Vlan10" {
		t.Errorf("first record wrong: %v", records[0])
	}
	if records[2]["AGE"] != "-" {
		t.Errorf("third record age: %v", records[2])
	}

	header := tpl.Header()
	if len(header) != 6 || header[0] != "PROTOCOL" || header[5] != "INTERFACE" {
		t.Errorf("header order wrong: %v", header)
	}
}

const versionTemplate = `Value Required VERSION (\S+)
Value HOSTNAME (\S+)
Value UPTIME (.+)

Start
  ^.*Software.*Version ${VERSION},
  ^${HOSTNAME} uptime is ${UPTIME}
`

func TestTemplate_ImplicitEOFRecord(t *testing.T) {
	tpl, err := validate.ParseTemplate(versionTemplate)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	output := strings.Join([]string{
		"Cisco IOS Software, C2960 Software, Version 15.2(2)E6,",
		"sw-den-01 uptime is 2 years, 11 weeks",
	}, "\n")
	records, err := tpl.Execute(output)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected single record at EOF, got %d", len(records))
	}
	if records[0]["VERSION"] != "15.2(2)E6" {
		t.Errorf("version: %q", records[0]["VERSION"])
	}
	if records[0]["HOSTNAME"] != "sw-den-01" {
		t.Errorf("hostname: %q", records[0]["HOSTNAME"])
	}
}

func TestTemplate_RequiredSuppressesEmptyRecord(t *testing.T) {
	tpl, err := validate.ParseTemplate(versionTemplate)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// Uptime line only: VERSION is Required and unset.
	records, err := tpl.Execute("sw-den-01 uptime is 1 day")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("record without required value must be dropped, got %v", records)
	}
}

func TestTemplate_FilldownCarriesAcrossRecords(t *testing.T) {
	text := `Value Filldown VRF (\S+)
Value Required PREFIX (\S+)

Start
  ^VRF: ${VRF}
  ^\s+${PREFIX} -> Record
`
	tpl, err := validate.ParseTemplate(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	output := "VRF: mgmt\n  10.0.0.0/24\n  10.0.1.0/24\nVRF: prod\n  192.168.0.0/16"
	records, err := tpl.Execute(output)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0]["VRF"] != "mgmt" || records[1]["VRF"] != "mgmt" {
		t.Errorf("filldown did not carry: %v", records[:2])
	}
	if records[2]["VRF"] != "prod" {
		t.Errorf("filldown did not update: %v", records[2])
	}
}

func TestTemplate_ContinueMatchesFollowingRules(t *testing.T) {
	text := `Value IFACE (\S+)
Value STATUS (up|down)

Start
  ^${IFACE} is -> Continue
  ^\S+ is administratively ${STATUS} -> Record
  ^\S+ is ${STATUS} -> Record
`
	tpl, err := validate.ParseTemplate(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	records, err := tpl.Execute("Gi0/1 is up\nGi0/2 is administratively down")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(records), records)
	}
	if records[0]["IFACE"] != "Gi0/1" || records[0]["STATUS"] != "up" {
		t.Errorf("first record: %v", records[0])
	}
	if records[1]["IFACE"] != "Gi0/2" || records[1]["STATUS"] != "down" {
		t.Errorf("second record: %v", records[1])
	}
}

func TestTemplate_ListAccumulates(t *testing.T) {
	text := `Value NEIGHBOR (\S+)
Value List CAPABILITY (\S+)

Start
  ^Device ID: ${NEIGHBOR}
  ^Capability: ${CAPABILITY} -> Continue
  ^Capability -> Next
  ^-+ -> Record
`
	tpl, err := validate.ParseTemplate(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	output := "Device ID: sw-aus-02\nCapability: Router\nCapability: Switch\n----------"
	records, err := tpl.Execute(output)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["CAPABILITY"] != "Router,Switch" {
		t.Errorf("list value: %q", records[0]["CAPABILITY"])
	}
}

func TestTemplate_ErrorAction(t *testing.T) {
	text := `Value A (\S+)

Start
  ^% Invalid input -> Error
  ^${A} -> Record
`
	tpl, err := validate.ParseTemplate(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := tpl.Execute("% Invalid input detected"); err == nil {
		t.Fatal("expected error action to surface")
	}
}

func TestParseTemplate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no values", "Start\n  ^foo -> Record\n"},
		{"no start state", "Value A (\\S+)\n\nMain\n  ^${A} -> Record\n"},
		{"bad modifier", "Value Sideways A (\\S+)\n\nStart\n  ^${A}\n"},
		{"rule without caret", "Value A (\\S+)\n\nStart\n  foo -> Record\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := validate.ParseTemplate(tc.text); err == nil {
				t.Errorf("expected parse failure for %s", tc.name)
			}
		})
	}
}
