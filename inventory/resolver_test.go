package inventory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
	"github.com/velocitylabs/vcollect/types"
)

// openTestStore creates an initialized inventory database with two sites
// and a handful of devices across platforms.
func openTestStore(t *testing.T) *inventory.Store {
	t.Helper()
	ctx := context.Background()

	store, err := inventory.Open(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(iox.CloseFunc(store))

	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	denID, err := store.AddSite(ctx, "Denver", "den")
	if err != nil {
		t.Fatalf("add site: %v", err)
	}
	ausID, err := store.AddSite(ctx, "Austin", "aus")
	if err != nil {
		t.Fatalf("add site: %v", err)
	}

	ios, err := store.PlatformBySlug(ctx, "cisco_ios")
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	eos, err := store.PlatformBySlug(ctx, "arista_eos")
	if err != nil {
		t.Fatalf("platform: %v", err)
	}

	seeds := []inventory.DeviceSeed{
		{Name: "sw-den-02", SiteID: denID, PlatformID: ios.ID, Address: "10.1.0.2"},
		{Name: "sw-den-01", SiteID: denID, PlatformID: ios.ID, Address: "10.1.0.1"},
		{Name: "sw-aus-01", SiteID: ausID, PlatformID: eos.ID, Address: "10.2.0.1"},
		{Name: "sw-aus-02", SiteID: ausID, PlatformID: eos.ID, Status: "offline", Address: "10.2.0.2"},
		{Name: "sw-aus-03", SiteID: ausID, PlatformID: eos.ID}, // no address
	}
	for _, seed := range seeds {
		if _, err := store.AddDevice(ctx, seed); err != nil {
			t.Fatalf("add device %s: %v", seed.Name, err)
		}
	}

	return store
}

func TestResolve_DefaultStatusAndAddress(t *testing.T) {
	store := openTestStore(t)

	devices, err := store.Resolve(context.Background(), types.DeviceFilter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// offline and address-less devices are excluded
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	for _, d := range devices {
		if d.Status != "active" {
			t.Errorf("device %s has status %s", d.Name, d.Status)
		}
		if d.PrimaryAddress == "" {
			t.Errorf("device %s has no address", d.Name)
		}
	}
}

func TestResolve_OrderedBySiteThenName(t *testing.T) {
	store := openTestStore(t)

	devices, err := store.Resolve(context.Background(), types.DeviceFilter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := []string{"sw-aus-01", "sw-den-01", "sw-den-02"}
	for i, name := range want {
		if devices[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, devices[i].Name)
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Resolve(ctx, types.DeviceFilter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := store.Resolve(ctx, types.DeviceFilter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d differs between runs", i)
		}
	}
}

func TestResolve_VendorSubstring(t *testing.T) {
	store := openTestStore(t)

	devices, err := store.Resolve(context.Background(), types.DeviceFilter{Vendor: "CISCO"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 cisco devices, got %d", len(devices))
	}
	for _, d := range devices {
		if d.Platform.Slug != "cisco_ios" {
			t.Errorf("unexpected platform %s", d.Platform.Slug)
		}
		if d.Platform.PagingCommand != "terminal length 0" {
			t.Errorf("paging command not joined: %q", d.Platform.PagingCommand)
		}
	}
}

func TestResolve_NameRegex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Unanchored search
	devices, err := store.Resolve(ctx, types.DeviceFilter{NameRegex: "den"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("unanchored: expected 2, got %d", len(devices))
	}

	// Anchored
	devices, err = store.Resolve(ctx, types.DeviceFilter{NameRegex: "^sw-aus-01$"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "sw-aus-01" {
		t.Errorf("anchored: got %v", devices)
	}
}

func TestResolve_Limit(t *testing.T) {
	store := openTestStore(t)

	devices, err := store.Resolve(context.Background(), types.DeviceFilter{Limit: 2})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("expected limit 2, got %d", len(devices))
	}
}

func TestResolve_StatusFilter(t *testing.T) {
	store := openTestStore(t)

	devices, err := store.Resolve(context.Background(), types.DeviceFilter{Status: "offline"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "sw-aus-02" {
		t.Errorf("expected the offline device, got %v", devices)
	}
}

func TestDeviceByName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	dev, err := store.DeviceByName(ctx, "sw-den-01")
	if err != nil {
		t.Fatalf("device by name: %v", err)
	}
	if dev.Name != "sw-den-01" || dev.PrimaryAddress != "10.1.0.1" {
		t.Errorf("wrong device: %+v", dev)
	}
	if dev.Platform.Slug != "cisco_ios" {
		t.Errorf("platform not joined: %q", dev.Platform.Slug)
	}

	// Lookup by name ignores lifecycle status.
	offline, err := store.DeviceByName(ctx, "sw-aus-02")
	if err != nil {
		t.Fatalf("offline device by name: %v", err)
	}
	if offline.Status != "offline" {
		t.Errorf("status = %q, want offline", offline.Status)
	}

	if _, err := store.DeviceByName(ctx, "no-such-device"); err == nil {
		t.Error("unknown name should error")
	}
}

func TestRecordCredentialTest_SuccessPins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	devices, err := store.Resolve(ctx, types.DeviceFilter{NameRegex: "^sw-den-01$"})
	if err != nil || len(devices) != 1 {
		t.Fatalf("resolve: %v (%d devices)", err, len(devices))
	}
	dev := devices[0]

	when := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	if err := store.RecordCredentialTest(ctx, dev.ID, 7, "success", when); err != nil {
		t.Fatalf("record: %v", err)
	}

	devices, err = store.Resolve(ctx, types.DeviceFilter{NameRegex: "^sw-den-01$"})
	if err != nil || len(devices) != 1 {
		t.Fatalf("re-resolve: %v", err)
	}
	got := devices[0]
	if got.PinnedCredentialID != 7 {
		t.Errorf("expected pin to credential 7, got %d", got.PinnedCredentialID)
	}
	if got.LastCredTestResult != "success" {
		t.Errorf("expected success result, got %q", got.LastCredTestResult)
	}
	if !got.HasWorkingPin() {
		t.Error("device should report a working pin")
	}
	if !got.LastCredTestAt.Equal(when) {
		t.Errorf("timestamp mismatch: %s", got.LastCredTestAt)
	}
}

func TestRecordCredentialTest_FailureDoesNotPin(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	devices, _ := store.Resolve(ctx, types.DeviceFilter{NameRegex: "^sw-den-01$"})
	dev := devices[0]

	if err := store.RecordCredentialTest(ctx, dev.ID, 9, "failed", time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}

	devices, _ = store.Resolve(ctx, types.DeviceFilter{NameRegex: "^sw-den-01$"})
	got := devices[0]
	if got.PinnedCredentialID != 0 {
		t.Errorf("failed test must not pin, got credential %d", got.PinnedCredentialID)
	}
	if got.HasWorkingPin() {
		t.Error("failed test must not yield a working pin")
	}
}
