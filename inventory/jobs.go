package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velocitylabs/vcollect/types"
)

// ErrJobNotFound is returned when a slug resolves to no jobs row.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `
	id, slug, COALESCE(description, ''),
	capture_type, COALESCE(vendor, ''),
	command, COALESCE(extra_commands, ''), COALESCE(paging_disable_command, ''),
	COALESCE(device_filter_site_id, 0), COALESCE(device_filter_role_id, 0),
	COALESCE(device_filter_platform_id, 0), COALESCE(device_filter_name_pattern, ''),
	device_filter_status, device_filter_limit,
	use_validation, COALESCE(template_filter, ''), validation_min_score, save_on_fail,
	max_workers, timeout_seconds, inter_command_delay_ms,
	COALESCE(output_directory, ''), filename_pattern,
	is_enabled`

// JobBySlug fetches a job descriptor from the jobs table.
func (s *Store) JobBySlug(ctx context.Context, slug string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+jobColumns+" FROM jobs WHERE slug = ?", slug)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slug %q: %w", slug, ErrJobNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns all job descriptors ordered by slug.
// When enabledOnly is set, disabled jobs are omitted.
func (s *Store) ListJobs(ctx context.Context, enabledOnly bool) ([]types.Job, error) {
	query := "SELECT" + jobColumns + " FROM jobs"
	if enabledOnly {
		query += " WHERE is_enabled = 1"
	}
	query += " ORDER BY slug"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*types.Job, error) {
	var j types.Job
	var extraCommands string
	var timeoutSeconds, pauseMS int64
	var useValidation, saveOnFail, enabled int

	err := row.Scan(
		&j.ID, &j.Slug, &j.Description,
		&j.CaptureKind, &j.Vendor,
		&j.Command, &extraCommands, &j.DisablePaging,
		&j.Filter.SiteID, &j.Filter.RoleID,
		&j.Filter.PlatformID, &j.Filter.NameRegex,
		&j.Filter.Status, &j.Filter.Limit,
		&useValidation, &j.Validation.TemplateFilter, &j.Validation.MinScore, &saveOnFail,
		&j.Execution.MaxWorkers, &timeoutSeconds, &pauseMS,
		&j.Output.Subdir, &j.Output.FilenamePattern,
		&enabled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job row: %w", err)
	}

	if extraCommands != "" {
		for _, c := range strings.Split(extraCommands, "\n") {
			if c = strings.TrimSpace(c); c != "" {
				j.ExtraCommands = append(j.ExtraCommands, c)
			}
		}
	}
	j.Filter.Vendor = j.Vendor
	j.Validation.Enabled = useValidation != 0
	j.Validation.SaveOnFail = saveOnFail != 0
	j.Execution.Timeout = time.Duration(timeoutSeconds) * time.Second
	j.Execution.CommandPause = time.Duration(pauseMS) * time.Millisecond
	j.Enabled = enabled != 0

	return &j, nil
}

// UpsertJob inserts or replaces a job descriptor row. Exposed for init
// seeding and tests; operator CRUD lives outside the collection core.
func (s *Store) UpsertJob(ctx context.Context, j *types.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (slug, description, capture_type, vendor,
		                  command, extra_commands, paging_disable_command,
		                  device_filter_site_id, device_filter_role_id,
		                  device_filter_platform_id, device_filter_name_pattern,
		                  device_filter_status, device_filter_limit,
		                  use_validation, template_filter, validation_min_score, save_on_fail,
		                  max_workers, timeout_seconds, inter_command_delay_ms,
		                  output_directory, filename_pattern, is_enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
		    description = excluded.description,
		    capture_type = excluded.capture_type,
		    vendor = excluded.vendor,
		    command = excluded.command,
		    extra_commands = excluded.extra_commands,
		    paging_disable_command = excluded.paging_disable_command,
		    device_filter_site_id = excluded.device_filter_site_id,
		    device_filter_role_id = excluded.device_filter_role_id,
		    device_filter_platform_id = excluded.device_filter_platform_id,
		    device_filter_name_pattern = excluded.device_filter_name_pattern,
		    device_filter_status = excluded.device_filter_status,
		    device_filter_limit = excluded.device_filter_limit,
		    use_validation = excluded.use_validation,
		    template_filter = excluded.template_filter,
		    validation_min_score = excluded.validation_min_score,
		    save_on_fail = excluded.save_on_fail,
		    max_workers = excluded.max_workers,
		    timeout_seconds = excluded.timeout_seconds,
		    inter_command_delay_ms = excluded.inter_command_delay_ms,
		    output_directory = excluded.output_directory,
		    filename_pattern = excluded.filename_pattern,
		    is_enabled = excluded.is_enabled,
		    updated_at = datetime('now')`,
		j.Slug, j.Description, j.CaptureKind, j.Vendor,
		j.Command, strings.Join(j.ExtraCommands, "\n"), j.DisablePaging,
		j.Filter.SiteID, j.Filter.RoleID,
		j.Filter.PlatformID, j.Filter.NameRegex,
		j.Filter.EffectiveStatus(), j.Filter.Limit,
		boolToInt(j.Validation.Enabled), j.Validation.TemplateFilter,
		j.Validation.MinScore, boolToInt(j.Validation.SaveOnFail),
		j.Execution.MaxWorkers, int64(j.Execution.Timeout.Seconds()),
		j.Execution.CommandPause.Milliseconds(),
		j.Output.Subdir, effectivePattern(j.Output.FilenamePattern),
		boolToInt(j.Enabled),
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", j.Slug, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func effectivePattern(p string) string {
	if p == "" {
		return types.DefaultFilenamePattern
	}
	return p
}
