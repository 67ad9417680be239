// Package mysql implements a MySQL profile storage backend.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oemtools/satactivate/subsystem/profile/storage"
)

// Schema contains the MySQL schema for the profile storage.
//
//go:embed schema.sql
var Schema string

const settingDeviceID = "app_device_id"

// MySQLStorage implements storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQL profile storage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

func profileFromRow(radioID, label string, extraJSON sql.NullString) (*storage.Profile, error) {
	p := &storage.Profile{RadioID: radioID, Label: label}
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &p.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra for %s: %w", radioID, err)
		}
	}
	return p, nil
}

// RetrieveProfile returns the stored profile for radioID from MySQL.
func (s *MySQLStorage) RetrieveProfile(ctx context.Context, radioID string) (*storage.Profile, error) {
	var label string
	var extraJSON sql.NullString
	err := s.db.QueryRowContext(
		ctx,
		`SELECT label, extra_json FROM profiles WHERE radio_id = ?;`,
		radioID,
	).Scan(&label, &extraJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrProfileNotFound, radioID)
	} else if err != nil {
		return nil, err
	}
	return profileFromRow(radioID, label, extraJSON)
}

// RetrieveProfiles returns all stored profiles in insertion order.
func (s *MySQLStorage) RetrieveProfiles(ctx context.Context) ([]storage.Profile, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT radio_id, label, extra_json FROM profiles ORDER BY seq;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []storage.Profile
	for rows.Next() {
		var radioID, label string
		var extraJSON sql.NullString
		if err = rows.Scan(&radioID, &label, &extraJSON); err != nil {
			return profiles, err
		}
		p, err := profileFromRow(radioID, label, extraJSON)
		if err != nil {
			return profiles, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// StoreProfile upserts a profile by radio ID.
// The insertion sequence of an existing row is preserved so listing
// order stays stable across updates.
func (s *MySQLStorage) StoreProfile(ctx context.Context, p *storage.Profile) error {
	if !p.Valid() {
		return errors.New("invalid profile")
	}
	var extraJSON sql.NullString
	if len(p.Extra) > 0 {
		raw, err := json.Marshal(p.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
		extraJSON = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO profiles (radio_id, label, extra_json) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE label = VALUES(label), extra_json = VALUES(extra_json);`,
		p.RadioID, p.Label, extraJSON,
	)
	return err
}

// DeleteProfile deletes a profile by radio ID.
func (s *MySQLStorage) DeleteProfile(ctx context.Context, radioID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE radio_id = ?;`, radioID)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err != nil {
		return err
	} else if rows < 1 {
		return fmt.Errorf("%w: %s", storage.ErrProfileNotFound, radioID)
	}
	return nil
}

// RetrieveAppDeviceID returns the persisted app device ID.
func (s *MySQLStorage) RetrieveAppDeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT value FROM app_settings WHERE name = ?;`,
		settingDeviceID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNoDeviceID
	}
	return id, err
}

// StoreAppDeviceID persists the app device ID.
func (s *MySQLStorage) StoreAppDeviceID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO app_settings (name, value) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value);`,
		settingDeviceID, id,
	)
	return err
}
