package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velocitylabs/vcollect/types"
)

// Minimal write surface for importers and tests. Full inventory CRUD is
// the CMDB's job; the collection core only needs enough to stand up a
// database and stamp credential tests.

// AddSite inserts a site and returns its id. Existing slugs are reused.
func (s *Store) AddSite(ctx context.Context, name, slug string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dcim_site (name, slug) VALUES (?, ?)`, name, slug)
	if err != nil {
		return 0, fmt.Errorf("add site %s: %w", slug, err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM dcim_site WHERE slug = ?`, slug).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup site %s: %w", slug, err)
	}
	return id, nil
}

// PlatformBySlug returns the platform row for a slug.
func (s *Store) PlatformBySlug(ctx context.Context, slug string) (*types.Platform, error) {
	var p types.Platform
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.slug, COALESCE(p.driver, ''),
		       COALESCE(p.paging_disable_command, ''),
		       COALESCE(p.manufacturer_id, 0), COALESCE(m.name, '')
		  FROM dcim_platform p
		  LEFT JOIN dcim_manufacturer m ON m.id = p.manufacturer_id
		 WHERE p.slug = ?`, slug).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Driver, &p.PagingCommand,
		&p.ManufacturerID, &p.Manufacturer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("platform %q not found", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup platform %s: %w", slug, err)
	}
	return &p, nil
}

// RoleBySlug returns the role id for a slug.
func (s *Store) RoleBySlug(ctx context.Context, slug string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM dcim_device_role WHERE slug = ?`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("role %q not found", slug)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup role %s: %w", slug, err)
	}
	return id, nil
}

// DeviceSeed describes a device row for AddDevice.
type DeviceSeed struct {
	Name       string
	SiteID     int64
	PlatformID int64
	RoleID     int64
	Status     string
	Address    string
}

// AddDevice inserts a device and returns its id.
func (s *Store) AddDevice(ctx context.Context, d DeviceSeed) (int64, error) {
	status := d.Status
	if status == "" {
		status = "active"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dcim_device (name, site_id, platform_id, role_id, status, primary_ip4)
		VALUES (?, ?, NULLIF(?, 0), NULLIF(?, 0), ?, NULLIF(?, ''))`,
		d.Name, d.SiteID, d.PlatformID, d.RoleID, status, d.Address)
	if err != nil {
		return 0, fmt.Errorf("add device %s: %w", d.Name, err)
	}
	return res.LastInsertId()
}
