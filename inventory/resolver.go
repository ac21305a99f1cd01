package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/velocitylabs/vcollect/types"
)

const deviceSelectSQL = `
	SELECT d.id, d.name,
	       d.site_id, s.name,
	       COALESCE(d.role_id, 0), COALESCE(r.name, ''),
	       COALESCE(p.id, 0), COALESCE(p.name, ''), COALESCE(p.slug, ''),
	       COALESCE(p.driver, ''), COALESCE(p.paging_disable_command, ''),
	       COALESCE(p.manufacturer_id, 0), COALESCE(m.name, ''),
	       d.status, COALESCE(d.primary_ip4, ''),
	       COALESCE(d.credential_id, 0),
	       COALESCE(d.credential_test_result, ''),
	       COALESCE(d.credential_tested_at, '')
	  FROM dcim_device d
	  JOIN dcim_site s ON s.id = d.site_id
	  LEFT JOIN dcim_platform p ON p.id = d.platform_id
	  LEFT JOIN dcim_device_role r ON r.id = d.role_id
	  LEFT JOIN dcim_manufacturer m ON m.id = p.manufacturer_id`

// Resolve materializes the ordered, deduplicated device set for a filter.
//
// Devices are returned sorted by (site, name) so progress numbering and
// reruns observe stable identity. Only devices with a non-empty primary
// address and a matching status are eligible. An empty result is not an
// error here; the runner decides whether that is fatal.
func (s *Store) Resolve(ctx context.Context, filter types.DeviceFilter) ([]types.Device, error) {
	var nameRe *regexp.Regexp
	if filter.NameRegex != "" {
		var err error
		nameRe, err = regexp.Compile(filter.NameRegex)
		if err != nil {
			return nil, fmt.Errorf("compile name filter %q: %w", filter.NameRegex, err)
		}
	}

	query := deviceSelectSQL + `
		 WHERE d.status = ?
		   AND COALESCE(d.primary_ip4, '') <> ''`
	args := []any{filter.EffectiveStatus()}

	if filter.SiteID != 0 {
		query += " AND d.site_id = ?"
		args = append(args, filter.SiteID)
	}
	if filter.RoleID != 0 {
		query += " AND d.role_id = ?"
		args = append(args, filter.RoleID)
	}
	if filter.PlatformID != 0 {
		query += " AND d.platform_id = ?"
		args = append(args, filter.PlatformID)
	}
	if filter.Vendor != "" {
		query += " AND LOWER(COALESCE(m.name, '')) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Vendor)+"%")
	}
	query += " ORDER BY s.name, d.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve devices: %w", err)
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}

		if nameRe != nil && !nameRe.MatchString(d.Name) {
			continue
		}

		devices = append(devices, d)
		if filter.Limit > 0 && len(devices) == filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}

	return devices, nil
}

// DeviceByName fetches a single device by (site-unique) name, whatever
// its status. Used by the discovery CLI to target explicit devices.
func (s *Store) DeviceByName(ctx context.Context, name string) (*types.Device, error) {
	rows, err := s.db.QueryContext(ctx, deviceSelectSQL+` WHERE d.name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("lookup device %q: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("lookup device %q: %w", name, err)
		}
		return nil, fmt.Errorf("device %q not found", name)
	}
	d, err := scanDevice(rows)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDevice(rows *sql.Rows) (types.Device, error) {
	var d types.Device
	var testedAt string
	err := rows.Scan(
		&d.ID, &d.Name,
		&d.SiteID, &d.Site,
		&d.RoleID, &d.Role,
		&d.Platform.ID, &d.Platform.Name, &d.Platform.Slug,
		&d.Platform.Driver, &d.Platform.PagingCommand,
		&d.Platform.ManufacturerID, &d.Platform.Manufacturer,
		&d.Status, &d.PrimaryAddress,
		&d.PinnedCredentialID,
		&d.LastCredTestResult, &testedAt,
	)
	if err != nil {
		return types.Device{}, fmt.Errorf("scan device row: %w", err)
	}
	if testedAt != "" {
		if ts, err := time.Parse(time.RFC3339, testedAt); err == nil {
			d.LastCredTestAt = ts
		}
	}
	return d, nil
}
