package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	stateDBName = "state.db"

	settingCustomNames  = "custom_names"
	settingRestartState = "restart_state"
)

// EncryptedStore implements domain.StateStore using a SQLCipher encrypted
// SQLite database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewEncryptedStore opens (or creates) the encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key shows up as "not a database" on connect or on the first read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, keyError("failed to connect to encrypted database", err)
	}
	if _, err := db.Exec("SELECT count(*) FROM sqlite_master"); err != nil {
		db.Close()
		return nil, keyError("failed to read encrypted database", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath, now: time.Now}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func keyError(msg string, err error) error {
	var sqlErr sqlcipher.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlcipher.ErrNotADB {
		return fmt.Errorf("%w: %v", ErrStoreKeyMismatch, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// rekey re-encrypts the database under key. Other pooled connections still
// carry the old key, so the store must be closed afterwards.
func (s *EncryptedStore) rekey(ctx context.Context, key []byte) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.ExecContext(ctx, fmt.Sprintf(`PRAGMA rekey = "x'%s'"`, hex.EncodeToString(key)))
	return err
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		mode TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS clips_saved_at ON clips (saved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *EncryptedStore) getSetting(key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode setting %q: %w", key, err)
	}
	return true, nil
}

func (s *EncryptedStore) setSetting(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, string(raw), s.now().Unix())
	return err
}

// CustomNames returns the raw "PATH > NAME" rule strings in order.
func (s *EncryptedStore) CustomNames() ([]string, error) {
	var rules []string
	if _, err := s.getSetting(settingCustomNames, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// SetCustomNames replaces the stored rule list.
func (s *EncryptedStore) SetCustomNames(rules []string) error {
	if rules == nil {
		rules = []string{}
	}
	return s.setSetting(settingCustomNames, rules)
}

// RestartState returns the persisted schedule (zero value if none).
func (s *EncryptedStore) RestartState() (domain.RestartScheduleState, error) {
	var state domain.RestartScheduleState
	if _, err := s.getSetting(settingRestartState, &state); err != nil {
		return domain.RestartScheduleState{}, err
	}
	return state, nil
}

// SetRestartState persists the schedule.
func (s *EncryptedStore) SetRestartState(state domain.RestartScheduleState) error {
	return s.setSetting(settingRestartState, state)
}

// AddClip appends a saved clip to the history.
func (s *EncryptedStore) AddClip(rec domain.ClipRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO clips (id, name, path, mode, saved_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Path, string(rec.Mode), rec.SavedAt.UnixMilli())
	return err
}

// RecentClips returns the latest clips, newest first.
func (s *EncryptedStore) RecentClips(limit int) ([]domain.ClipRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT id, name, path, mode, saved_at FROM clips
		ORDER BY saved_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []domain.ClipRecord
	for rows.Next() {
		var rec domain.ClipRecord
		var mode string
		var savedAt int64
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Path, &mode, &savedAt); err != nil {
			return nil, err
		}
		rec.Mode = domain.ClipNamingMode(mode)
		rec.SavedAt = time.UnixMilli(savedAt)
		clips = append(clips, rec)
	}
	return clips, rows.Err()
}

// RegisterDaemon records the running daemon for the CLI.
func (s *EncryptedStore) RegisterDaemon(info domain.DaemonInfo) error {
	now := s.now()
	if info.StartedAt.IsZero() {
		info.StartedAt = now
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (id, pid, started_at, last_heartbeat, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		info.PID, info.StartedAt.Unix(), now.Unix(), info.AppVersion,
	)
	return err
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat() error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE id = 1`, s.now().Unix())
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("daemon not registered")
	}
	return nil
}

// Daemon returns the registered daemon, or nil if none.
func (s *EncryptedStore) Daemon() (*domain.DaemonInfo, error) {
	var info domain.DaemonInfo
	var started, heartbeat int64
	err := s.db.QueryRow(`SELECT pid, started_at, last_heartbeat, app_version FROM daemon_state WHERE id = 1`).
		Scan(&info.PID, &started, &heartbeat, &info.AppVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.StartedAt = time.Unix(started, 0)
	info.LastHeartbeat = time.Unix(heartbeat, 0)
	return &info, nil
}

// ClearDaemon removes the daemon registration.
func (s *EncryptedStore) ClearDaemon() error {
	_, err := s.db.Exec(`DELETE FROM daemon_state`)
	return err
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

// Ensure EncryptedStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStore)(nil)
