// Package inventory provides read access to the DCIM-style device and job
// store. The collection core treats it as a read model; the only writes
// are credential test stamps recorded by the discovery engine.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the inventory SQLite database.
//
// database/sql pools connections internally, so a single Store is safe
// for concurrent readers; workers never share a raw connection handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the inventory database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open inventory db %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Init applies the schema and seeds default platforms and roles.
// Idempotent; safe to call on an existing database.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply inventory schema: %w", err)
	}

	for _, m := range manufacturerSeeds() {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO dcim_manufacturer (name, slug) VALUES (?, ?)`,
			m.Name, m.Slug)
		if err != nil {
			return fmt.Errorf("seed manufacturer %s: %w", m.Slug, err)
		}
	}

	for _, p := range defaultPlatforms {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO dcim_platform
			   (name, slug, manufacturer_id, driver, paging_disable_command)
			 VALUES (?, ?, (SELECT id FROM dcim_manufacturer WHERE slug = ?), ?, ?)`,
			p.Name, p.Slug, p.Manufacturer, p.Driver, p.Paging)
		if err != nil {
			return fmt.Errorf("seed platform %s: %w", p.Slug, err)
		}
	}

	for _, r := range defaultRoles {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO dcim_device_role (name, slug, color) VALUES (?, ?, ?)`,
			r.Name, r.Slug, r.Color)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", r.Slug, err)
		}
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCredentialTest stamps a device with the outcome of a credential
// probe. A successful probe also pins the credential to the device.
func (s *Store) RecordCredentialTest(ctx context.Context, deviceID, credentialID int64, result string, at time.Time) error {
	var err error
	if result == "success" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE dcim_device
			    SET credential_id = ?, credential_test_result = ?,
			        credential_tested_at = ?, updated_at = datetime('now')
			  WHERE id = ?`,
			credentialID, result, at.UTC().Format(time.RFC3339), deviceID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE dcim_device
			    SET credential_test_result = ?, credential_tested_at = ?,
			        updated_at = datetime('now')
			  WHERE id = ?`,
			result, at.UTC().Format(time.RFC3339), deviceID)
	}
	if err != nil {
		return fmt.Errorf("record credential test for device %d: %w", deviceID, err)
	}
	return nil
}

type manufacturerSeed struct {
	Name string
	Slug string
}

func manufacturerSeeds() []manufacturerSeed {
	seen := map[string]bool{}
	var out []manufacturerSeed
	for _, p := range defaultPlatforms {
		if seen[p.Manufacturer] {
			continue
		}
		seen[p.Manufacturer] = true
		out = append(out, manufacturerSeed{Name: displayName(p.Manufacturer), Slug: p.Manufacturer})
	}
	return out
}

// displayName turns a slug like "palo-alto" into "Palo Alto".
func displayName(slug string) string {
	b := []byte(slug)
	upper := true
	for i, c := range b {
		if c == '-' {
			b[i] = ' '
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
		upper = false
	}
	return string(b)
}
