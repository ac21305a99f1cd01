package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/velocitylabs/vcollect/types"
)

// jobFile is the on-disk shape of an ad-hoc job descriptor.
type jobFile struct {
	Slug          string   `yaml:"slug"`
	CaptureKind   string   `yaml:"capture_kind"`
	Vendor        string   `yaml:"vendor"`
	Command       string   `yaml:"command"`
	ExtraCommands []string `yaml:"extra_commands"`
	DisablePaging string   `yaml:"disable_paging"`
	Description   string   `yaml:"description"`

	Filter struct {
		Vendor     string `yaml:"vendor"`
		SiteID     int64  `yaml:"site_id"`
		RoleID     int64  `yaml:"role_id"`
		PlatformID int64  `yaml:"platform_id"`
		NameRegex  string `yaml:"name_regex"`
		Status     string `yaml:"status"`
		Limit      int    `yaml:"limit"`
	} `yaml:"filter"`

	Validation struct {
		Enabled        bool    `yaml:"enabled"`
		TemplateFilter string  `yaml:"template_filter"`
		MinScore       float64 `yaml:"min_score"`
		SaveOnFail     bool    `yaml:"save_on_fail"`
	} `yaml:"validation"`

	Execution struct {
		MaxWorkers   int      `yaml:"max_workers"`
		Timeout      Duration `yaml:"timeout"`
		CommandPause Duration `yaml:"command_pause"`
	} `yaml:"execution"`

	Output struct {
		Subdir          string `yaml:"subdir"`
		FilenamePattern string `yaml:"filename_pattern"`
	} `yaml:"output"`
}

// LoadJobFile reads an ad-hoc job descriptor YAML file and applies the
// configured execution defaults to unset fields.
func LoadJobFile(path string, defaults ExecutionDefaults) (*types.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read job file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var jf jobFile
	if err := yaml.Unmarshal([]byte(expanded), &jf); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	job := &types.Job{
		Slug:          jf.Slug,
		CaptureKind:   jf.CaptureKind,
		Vendor:        jf.Vendor,
		Command:       jf.Command,
		ExtraCommands: jf.ExtraCommands,
		DisablePaging: jf.DisablePaging,
		Description:   jf.Description,
		Enabled:       true,
		Filter: types.DeviceFilter{
			Vendor:     jf.Filter.Vendor,
			SiteID:     jf.Filter.SiteID,
			RoleID:     jf.Filter.RoleID,
			PlatformID: jf.Filter.PlatformID,
			NameRegex:  jf.Filter.NameRegex,
			Status:     jf.Filter.Status,
			Limit:      jf.Filter.Limit,
		},
		Validation: types.ValidationPolicy{
			Enabled:        jf.Validation.Enabled,
			TemplateFilter: jf.Validation.TemplateFilter,
			MinScore:       jf.Validation.MinScore,
			SaveOnFail:     jf.Validation.SaveOnFail,
		},
		Execution: types.ExecutionPolicy{
			MaxWorkers:   jf.Execution.MaxWorkers,
			Timeout:      jf.Execution.Timeout.Duration,
			CommandPause: jf.Execution.CommandPause.Duration,
		},
		Output: types.OutputPolicy{
			Subdir:          jf.Output.Subdir,
			FilenamePattern: jf.Output.FilenamePattern,
		},
	}

	if job.Execution.MaxWorkers == 0 {
		job.Execution.MaxWorkers = defaults.MaxWorkers
	}
	if job.Execution.Timeout == 0 {
		job.Execution.Timeout = defaults.Timeout.Duration
	}
	if job.Execution.CommandPause == 0 {
		job.Execution.CommandPause = defaults.CommandPause.Duration
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return job, nil
}
