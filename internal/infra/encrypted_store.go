package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "presenced.db"

	// SecretClientID is the secret key holding the presence credential.
	SecretClientID = "client_id"
)

// ErrSecretNotFound is returned by GetSecret for unknown keys.
var ErrSecretNotFound = errors.New("secret not found")

// PreferenceKeys lists the keys accepted by SetPreference, in display order.
var PreferenceKeys = []string{"enabled", "show_status", "show_details", "show_first_name", "show_age"}

// EncryptedStore keeps the client credential and preference overrides in a
// SQLCipher database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the store in dataDir. key is the
// SQLCipher passphrase.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// A wrong key only surfaces on the first real read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// GetSecret returns the secret stored under key.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret %q: %w", key, err)
	}
	return value, nil
}

// SetSecret stores value under key, replacing any previous value.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store secret %q: %w", key, err)
	}
	return nil
}

// SetPreference stores one override. key is a config key such as "show_age".
func (s *EncryptedStore) SetPreference(key string, value bool) error {
	if !isPreferenceKey(key) {
		return fmt.Errorf("unknown preference %q", key)
	}
	v := 0
	if value {
		v = 1
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO preferences (key, value, updated_at) VALUES (?, ?, ?)`,
		key, v, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store preference %q: %w", key, err)
	}
	return nil
}

// LoadPreferences returns base with every stored override applied.
func (s *EncryptedStore) LoadPreferences(base domain.DisplayPreferences) (domain.DisplayPreferences, error) {
	rows, err := s.db.Query(`SELECT key, value FROM preferences`)
	if err != nil {
		return base, fmt.Errorf("failed to read preferences: %w", err)
	}
	defer rows.Close()

	prefs := base
	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			return base, fmt.Errorf("failed to scan preference: %w", err)
		}
		if field := preferenceField(&prefs, key); field != nil {
			*field = value != 0
		}
	}
	if err := rows.Err(); err != nil {
		return base, fmt.Errorf("failed to read preferences: %w", err)
	}
	return prefs, nil
}

// ClearPreferences removes every override.
func (s *EncryptedStore) ClearPreferences() error {
	if _, err := s.db.Exec(`DELETE FROM preferences`); err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// preferenceField maps a config key to the field it controls.
func preferenceField(p *domain.DisplayPreferences, key string) *bool {
	switch key {
	case "enabled":
		return &p.ShowGame
	case "show_status":
		return &p.ShowStatus
	case "show_details":
		return &p.ShowDetails
	case "show_first_name":
		return &p.ShowFirstName
	case "show_age":
		return &p.ShowAge
	}
	return nil
}

func isPreferenceKey(key string) bool {
	var p domain.DisplayPreferences
	return preferenceField(&p, key) != nil
}

var _ domain.SecretStore = (*EncryptedStore)(nil)
var _ domain.PreferenceStore = (*EncryptedStore)(nil)
