package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"aitester/config"
)

// Generation is one finished response panel.
type Generation struct {
	ID               string
	BatchID          string
	Document         string
	BlockIndex       int
	Provider         string
	Model            string
	Prompt           string
	Response         string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
	CreatedAt        time.Time
}

type HistoryStorage struct {
	db *sql.DB
}

func NewHistoryStorage(dataDir string) (*HistoryStorage, error) {
	dbPath := config.HistoryPath(dataDir)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Concurrent panels record from several goroutines.
	db.SetMaxOpenConns(1)

	hs := &HistoryStorage{db: db}

	if err := hs.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return hs, nil
}

func (hs *HistoryStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		document TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);
	CREATE INDEX IF NOT EXISTS idx_generations_document ON generations(document);
	`

	if _, err := hs.db.Exec(schema); err != nil {
		return err
	}

	if err := hs.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (hs *HistoryStorage) migrateSchema() error {
	hasBlockIndex, err := hs.columnExists("generations", "block_index")
	if err != nil {
		return fmt.Errorf("failed to check for block_index column: %w", err)
	}

	if !hasBlockIndex {
		_, err := hs.db.Exec(`ALTER TABLE generations ADD COLUMN block_index INTEGER NOT NULL DEFAULT 0`)
		if err != nil {
			return fmt.Errorf("failed to add block_index column: %w", err)
		}
	}

	return nil
}

func (hs *HistoryStorage) columnExists(tableName, columnName string) (bool, error) {
	rows, err := hs.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Record stores g, filling in ID and CreatedAt when unset.
func (hs *HistoryStorage) Record(g *Generation) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO generations (id, batch_id, document, block_index, provider, model, prompt, response,
		prompt_tokens, completion_tokens, duration_ns, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := hs.db.Exec(query,
		g.ID, g.BatchID, g.Document, g.BlockIndex, g.Provider, g.Model, g.Prompt, g.Response,
		g.PromptTokens, g.CompletionTokens, int64(g.Duration), g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

// Recent returns up to limit generations, newest first.
func (hs *HistoryStorage) Recent(limit int) ([]Generation, error) {
	return hs.query(`
	SELECT id, batch_id, document, block_index, provider, model, prompt, response,
		prompt_tokens, completion_tokens, duration_ns, created_at
	FROM generations
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`, limit)
}

// ForDocument returns the generations recorded for one document, newest
// first.
func (hs *HistoryStorage) ForDocument(document string, limit int) ([]Generation, error) {
	return hs.query(`
	SELECT id, batch_id, document, block_index, provider, model, prompt, response,
		prompt_tokens, completion_tokens, duration_ns, created_at
	FROM generations
	WHERE document = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`, document, limit)
}

func (hs *HistoryStorage) query(query string, args ...any) ([]Generation, error) {
	rows, err := hs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var gens []Generation
	for rows.Next() {
		var g Generation
		var durationNS int64
		if err := rows.Scan(&g.ID, &g.BatchID, &g.Document, &g.BlockIndex, &g.Provider, &g.Model,
			&g.Prompt, &g.Response, &g.PromptTokens, &g.CompletionTokens, &durationNS, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		g.Duration = time.Duration(durationNS)
		gens = append(gens, g)
	}

	return gens, rows.Err()
}

func (hs *HistoryStorage) Close() error {
	return hs.db.Close()
}
