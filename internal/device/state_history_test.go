package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupStateHistoryTestDB creates an in-memory SQLite database with the state_history table.
func setupStateHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_sn TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'rest',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE INDEX idx_state_history_device ON state_history(device_sn, created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertStateHistoryRow inserts a state history row with a specific timestamp.
func insertStateHistoryRow(t *testing.T, db *sql.DB, sn, stateJSON, source string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO state_history (device_sn, state, source, created_at) VALUES (?, ?, ?, ?)",
		sn,
		stateJSON,
		source,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert state history row: %v", err)
	}
}

func TestRecordStateChange(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	state := State{"bmsMaster.soc": 82.5, "pd.wattsOutSum": 340}
	if err := repo.RecordStateChange(ctx, "SN123", state, StateHistorySourceREST); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "SN123", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].DeviceSN != "SN123" {
		t.Errorf("DeviceSN = %q, want %q", entries[0].DeviceSN, "SN123")
	}
	if entries[0].Source != StateHistorySourceREST {
		t.Errorf("Source = %q, want %q", entries[0].Source, StateHistorySourceREST)
	}
	if got := entries[0].State["bmsMaster.soc"]; got != 82.5 {
		t.Errorf("State[bmsMaster.soc] = %v, want 82.5", got)
	}
}

func TestRecordStateChange_EmptySN(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)

	err := repo.RecordStateChange(context.Background(), "", State{}, StateHistorySourceREST)
	if !errors.Is(err, ErrInvalidSN) {
		t.Errorf("RecordStateChange() error = %v, want ErrInvalidSN", err)
	}
}

func TestRecordStateChange_DefaultSource(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "SN123", nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "SN123", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if entries[0].Source != StateHistorySourceREST {
		t.Errorf("Source = %q, want %q", entries[0].Source, StateHistorySourceREST)
	}
}

func TestGetHistory_NewestFirst(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	now := time.Now().UTC()

	insertStateHistoryRow(t, db, "SN123", `{"soc":10}`, "rest", now.Add(-2*time.Hour))
	insertStateHistoryRow(t, db, "SN123", `{"soc":20}`, "mqtt", now.Add(-1*time.Hour))
	insertStateHistoryRow(t, db, "SN123", `{"soc":30}`, "merged", now)
	insertStateHistoryRow(t, db, "OTHER", `{"soc":99}`, "rest", now)

	entries, err := repo.GetHistory(context.Background(), "SN123", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if got := entries[0].State["soc"]; got != float64(30) {
		t.Errorf("entries[0].State[soc] = %v, want 30", got)
	}
	if got := entries[2].State["soc"]; got != float64(10) {
		t.Errorf("entries[2].State[soc] = %v, want 10", got)
	}
}

func TestGetHistory_ClampsLimit(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	now := time.Now().UTC()

	for i := 0; i < maxHistoryLimit+10; i++ {
		insertStateHistoryRow(t, db, "SN123", `{}`, "rest", now.Add(time.Duration(i)*time.Second))
	}

	entries, err := repo.GetHistory(context.Background(), "SN123", maxHistoryLimit+10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != maxHistoryLimit {
		t.Errorf("len(entries) = %d, want %d", len(entries), maxHistoryLimit)
	}
}

func TestPruneHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	now := time.Now().UTC()

	insertStateHistoryRow(t, db, "SN123", `{}`, "rest", now.Add(-48*time.Hour))
	insertStateHistoryRow(t, db, "SN123", `{}`, "rest", now.Add(-1*time.Hour))

	deleted, err := repo.PruneHistory(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	entries, err := repo.GetHistory(context.Background(), "SN123", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestPruneHistory_InvalidDuration(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)

	if _, err := repo.PruneHistory(context.Background(), 0); err == nil {
		t.Error("PruneHistory(0) error = nil, want error")
	}
}
