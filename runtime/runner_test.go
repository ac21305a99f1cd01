package runtime_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/velocitylabs/vcollect/history"
	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/runtime"
	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
	"github.com/velocitylabs/vcollect/validate"
	"github.com/velocitylabs/vcollect/vault"
)

const arpOutput = "show ip arp\n" +
	"Protocol  Address     Age  Hardware Addr   Type   Interface\n" +
	"Internet  10.1.0.1    0    aabb.cc00.0100  ARPA   Vlan10\n" +
	"sw#"

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

type runnerFixture struct {
	inv       *inventory.Store
	vault     *vault.Vault
	hist      *history.Store
	dialer    *sshx.StubDialer
	templates *validate.Store
	root      string
	runner    *runtime.JobRunner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	inv, err := inventory.Open(filepath.Join(dir, "inventory.db"))
	if err != nil {
		t.Fatalf("open inventory: %v", err)
	}
	t.Cleanup(func() { inv.Close() })
	if err := inv.Init(ctx); err != nil {
		t.Fatalf("init inventory: %v", err)
	}

	v, err := vault.Open(filepath.Join(dir, "vault.db"))
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	if err := v.Initialize(ctx, "runner-test-password"); err != nil {
		t.Fatalf("init vault: %v", err)
	}
	if _, err := v.Add(ctx, &vault.Credential{
		Name: "ops", Username: "ops", Password: "secret", IsDefault: true,
	}); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	templates, err := validate.OpenStore(filepath.Join(dir, "templates.db"))
	if err != nil {
		t.Fatalf("open templates: %v", err)
	}
	t.Cleanup(func() { templates.Close() })

	dialer := sshx.NewStubDialer()
	root := filepath.Join(dir, "collections")
	return &runnerFixture{
		inv:       inv,
		vault:     v,
		hist:      hist,
		dialer:    dialer,
		templates: templates,
		root:      root,
		runner: &runtime.JobRunner{
			Inventory:      inv,
			Credentials:    vault.NewResolver(v, 0),
			Executor:       sshx.NewExecutor(dialer),
			Validator:      validate.NewEngine(templates, nil),
			History:        hist,
			CollectionRoot: root,
		},
	}
}

func (f *runnerFixture) addDevice(t *testing.T, name, address string) {
	t.Helper()
	ctx := context.Background()
	siteID, err := f.inv.AddSite(ctx, "Denver", "denver")
	if err != nil {
		t.Fatalf("add site: %v", err)
	}
	platform, err := f.inv.PlatformBySlug(ctx, "cisco_ios")
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	if _, err := f.inv.AddDevice(ctx, inventory.DeviceSeed{
		Name: name, SiteID: siteID, PlatformID: platform.ID, Address: address,
	}); err != nil {
		t.Fatalf("add device %s: %v", name, err)
	}
}

func arpJob() *types.Job {
	return &types.Job{
		Slug:        "daily-arp",
		CaptureKind: "arp",
		Command:     "show ip arp",
		Execution: types.ExecutionPolicy{
			MaxWorkers: 4,
			Timeout:    5 * time.Second,
		},
		Enabled: true,
	}
}

func TestJobRun_Success(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.addDevice(t, "sw-den-02", "10.1.0.2")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}
	f.dialer.Sessions["10.1.0.2"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}

	var events []types.ProgressEvent
	f.runner.Progress = func(e types.ProgressEvent) { events = append(events, e) }

	result, err := f.runner.Run(context.Background(), arpJob())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s, want success", result.Status)
	}
	if result.Total != 2 || result.Success != 2 {
		t.Errorf("counts = %d/%d, want 2/2", result.Total, result.Success)
	}
	if len(events) != 2 || events[1].Seq != 2 {
		t.Errorf("progress events wrong: %v", events)
	}

	for _, outcome := range result.Outcomes {
		if outcome.CapturePath == "" {
			t.Fatalf("device %s has no capture path", outcome.DeviceName)
		}
		data, err := os.ReadFile(outcome.CapturePath)
		if err != nil {
			t.Fatalf("read capture: %v", err)
		}
		if !strings.Contains(string(data), "Internet  10.1.0.1") {
			t.Errorf("capture content wrong: %q", data)
		}
		if strings.Contains(string(data), "show ip arp") {
			t.Error("command echo should be cleaned from the capture")
		}
		if !strings.HasPrefix(outcome.CapturePath, filepath.Join(f.root, "daily-arp")) {
			t.Errorf("capture outside job subdir: %s", outcome.CapturePath)
		}
	}

	// History: one completed run with two capture rows.
	runs, err := f.hist.RecentRuns(context.Background(), "daily-arp", 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != types.StatusSuccess {
		t.Fatalf("history runs wrong: %v", runs)
	}
	captures, err := f.hist.Captures(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("captures: %v", err)
	}
	if len(captures) != 2 {
		t.Errorf("expected 2 capture rows, got %d", len(captures))
	}
}

func TestJobRun_PartialOnDeviceFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.addDevice(t, "sw-den-02", "10.1.0.2")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}
	f.dialer.DialErrs["10.1.0.2"] = errors.New("ssh: handshake failed: ssh: unable to authenticate")

	result, err := f.runner.Run(context.Background(), arpJob())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusPartial {
		t.Errorf("status = %s, want partial", result.Status)
	}
	if result.Success != 1 || result.Failed != 1 {
		t.Errorf("counts = %d success / %d failed", result.Success, result.Failed)
	}
	for _, outcome := range result.Outcomes {
		if outcome.DeviceName == "sw-den-02" && outcome.ErrKind != types.ErrKindAuthFailed {
			t.Errorf("failed device kind = %s, want auth_failed", outcome.ErrKind)
		}
	}
}

func TestJobRun_EmptyInventoryFails(t *testing.T) {
	f := newRunnerFixture(t)

	result, err := f.runner.Run(context.Background(), arpJob())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Err == "" {
		t.Error("empty inventory should set the run error")
	}

	runs, err := f.hist.RecentRuns(context.Background(), "daily-arp", 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != types.StatusFailed {
		t.Errorf("aborted run should still be ledgered: %v", runs)
	}
}

func TestJobRun_InvalidJobIsConfigError(t *testing.T) {
	f := newRunnerFixture(t)

	job := arpJob()
	job.Execution.MaxWorkers = 0
	_, err := f.runner.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected config error")
	}
	if types.KindOf(err) != types.ErrKindConfig {
		t.Errorf("kind = %s, want config_error", types.KindOf(err))
	}

	// Config errors must not leave a history row.
	runs, err := f.hist.RecentRuns(context.Background(), "daily-arp", 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("config error should not be ledgered, got %v", runs)
	}
}

func validatedJob(minScore float64, saveOnFail bool) *types.Job {
	job := arpJob()
	job.Validation = types.ValidationPolicy{
		Enabled:        true,
		TemplateFilter: "cisco_ios_show_arp",
		MinScore:       minScore,
		SaveOnFail:     saveOnFail,
	}
	return job
}

func TestJobRun_ValidationPasses(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}
	if _, err := f.templates.Add(context.Background(), validate.StoredTemplate{
		Command: "cisco_ios_show_ip_arp", Content: arpTemplate,
	}); err != nil {
		t.Fatalf("add template: %v", err)
	}

	result, err := f.runner.Run(context.Background(), validatedJob(60, false))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusSuccess {
		t.Fatalf("status = %s, want success (outcomes %v)", result.Status, result.Outcomes)
	}
	outcome := result.Outcomes[0]
	if outcome.ValidationStatus != types.ValidationPassed {
		t.Errorf("validation status = %s", outcome.ValidationStatus)
	}
	if outcome.Score < 60 {
		t.Errorf("score = %.1f, want >= 60", outcome.Score)
	}
	if outcome.Template != "cisco_ios_show_ip_arp" {
		t.Errorf("template = %q", outcome.Template)
	}
}

func TestJobRun_ValidationFailureDropsCapture(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}
	if _, err := f.templates.Add(context.Background(), validate.StoredTemplate{
		Command: "cisco_ios_show_ip_arp", Content: arpTemplate,
	}); err != nil {
		t.Fatalf("add template: %v", err)
	}

	result, err := f.runner.Run(context.Background(), validatedJob(95, false))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Skipped != 1 || result.Failed != 0 {
		t.Errorf("validation failure must count skipped, got %d skipped / %d failed",
			result.Skipped, result.Failed)
	}
	outcome := result.Outcomes[0]
	if !outcome.Skipped {
		t.Error("outcome should be skipped, not failed")
	}
	if outcome.ErrKind != types.ErrKindValidation {
		t.Errorf("kind = %s, want validation_failed", outcome.ErrKind)
	}
	if outcome.CapturePath != "" {
		t.Error("capture must not be written when validation fails without save-on-fail")
	}
}

func TestJobRun_NoTemplateCountsAsValidationFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}

	// The template store is empty: nothing can judge the output.
	result, err := f.runner.Run(context.Background(), validatedJob(20, false))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Skipped != 1 || result.Success != 0 {
		t.Errorf("counts = %d skipped / %d success, want 1/0", result.Skipped, result.Success)
	}
	outcome := result.Outcomes[0]
	if outcome.ValidationStatus != types.ValidationNoTemplate {
		t.Errorf("validation status = %s, want no-template", outcome.ValidationStatus)
	}
	if outcome.Score != 0 {
		t.Errorf("score = %.1f, want 0", outcome.Score)
	}
	if outcome.CapturePath != "" {
		t.Error("no capture may be written without save-on-fail")
	}
	if entries, err := os.ReadDir(filepath.Join(f.root, "daily-arp")); err == nil && len(entries) > 0 {
		t.Errorf("capture directory should be empty, found %d files", len(entries))
	}
}

func TestJobRun_SaveOnFailKeepsCapture(t *testing.T) {
	f := newRunnerFixture(t)
	f.addDevice(t, "sw-den-01", "10.1.0.1")
	f.dialer.Sessions["10.1.0.1"] = &sshx.StubSession{Outputs: map[string]string{"show ip arp": arpOutput}}
	if _, err := f.templates.Add(context.Background(), validate.StoredTemplate{
		Command: "cisco_ios_show_ip_arp", Content: arpTemplate,
	}); err != nil {
		t.Fatalf("add template: %v", err)
	}

	result, err := f.runner.Run(context.Background(), validatedJob(95, true))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed (no device succeeded)", result.Status)
	}
	if result.Skipped != 1 {
		t.Errorf("save-on-fail device should count as skipped, got %+v", result)
	}
	outcome := result.Outcomes[0]
	if outcome.CapturePath == "" {
		t.Fatal("save-on-fail must still write the capture")
	}
	if _, err := os.Stat(outcome.CapturePath); err != nil {
		t.Errorf("capture file missing: %v", err)
	}
}
