package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"codegarden/internal/logging"
	"codegarden/internal/pattern"
)

// SQLiteStore is the durable garden, one database file under .garden/.
// Writes are serialized through a mutex so registration keeps the
// name-uniqueness invariant even with parallel growth workers; reads go
// straight to the connection pool.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the pattern database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	logging.Store("Opening pattern store at %s", dbPath)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open pattern store %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma %q failed: %v", pragma, err)
		}
	}

	if err := initializeSchema(db); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize pattern schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("Pattern store ready")
	return &SQLiteStore{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		language TEXT NOT NULL,
		code TEXT NOT NULL,
		description TEXT DEFAULT '',
		tags TEXT DEFAULT '[]',
		coherence REAL NOT NULL,
		dimensions TEXT DEFAULT '{}',
		test_proof TEXT DEFAULT '',
		parent_id TEXT DEFAULT '',
		derivation TEXT DEFAULT '',
		usage_count INTEGER DEFAULT 0,
		last_used TIMESTAMP,
		embedding BLOB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_language ON patterns(language);
	CREATE INDEX IF NOT EXISTS idx_patterns_coherence ON patterns(coherence);
	`
	_, err := db.Exec(schema)
	return err
}

// Register implements Store.
func (s *SQLiteStore) Register(ctx context.Context, p *pattern.Pattern) (Registration, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteStore.Register")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var taken int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM patterns WHERE name = ?`, p.Name).Scan(&taken); err != nil {
		return Registration{}, fmt.Errorf("failed to check name %q: %w", p.Name, err)
	}
	if taken > 0 {
		logging.StoreDebug("Rejecting %q: name already registered", p.Name)
		return Registration{Registered: false, Reason: ReasonDuplicateName}, nil
	}

	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to marshal tags: %w", err)
	}
	dimsJSON, err := json.Marshal(p.Dimensions)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to marshal dimensions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, name, language, code, description, tags, coherence,
			dimensions, test_proof, parent_id, derivation, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Language, p.Code, p.Description, string(tagsJSON), p.Coherence,
		string(dimsJSON), p.TestProof, p.ParentID, p.Derivation, p.UsageCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to register %q: %v", p.Name, err)
		return Registration{}, fmt.Errorf("failed to register %q: %w", p.Name, err)
	}

	logging.Store("Registered pattern %q (%s) coherence=%.3f", p.Name, p.Language, p.Coherence)
	return Registration{Registered: true, Pattern: p.Clone()}, nil
}

const patternColumns = `id, name, language, code, description, tags, coherence,
	dimensions, test_proof, parent_id, derivation, usage_count, last_used, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*pattern.Pattern, error) {
	var p pattern.Pattern
	var tagsJSON, dimsJSON string
	var lastUsed sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Language, &p.Code, &p.Description, &tagsJSON,
		&p.Coherence, &dimsJSON, &p.TestProof, &p.ParentID, &p.Derivation,
		&p.UsageCount, &lastUsed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		p.LastUsed = lastUsed.Time
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		p.Tags = nil
	}
	if err := json.Unmarshal([]byte(dimsJSON), &p.Dimensions); err != nil {
		p.Dimensions = nil
	}
	return &p, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*pattern.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern %s: %w", id, err)
	}
	return p, nil
}

// GetByName implements Store.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*pattern.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE name = ?`, name)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("name %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern %q: %w", name, err)
	}
	return p, nil
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]*pattern.Pattern, error) {
	return s.query(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY created_at ASC, id ASC`)
}

// ByLanguage implements Store.
func (s *SQLiteStore) ByLanguage(ctx context.Context, language string) ([]*pattern.Pattern, error) {
	return s.query(ctx, `SELECT `+patternColumns+` FROM patterns WHERE language = ? ORDER BY coherence DESC`, language)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*pattern.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Pattern query failed: %v", err)
		return nil, fmt.Errorf("pattern query failed: %w", err)
	}
	defer rows.Close()

	var out []*pattern.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			logging.StoreDebug("Skipping unreadable pattern row: %v", err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Coherences implements Store.
func (s *SQLiteStore) Coherences(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT coherence FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("failed to load coherences: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM patterns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return n, nil
}

// TouchUsage implements Store.
func (s *SQLiteStore) TouchUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE patterns SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch pattern %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateScore replaces a pattern's coherence verdict, used when the garden
// is rescored under a newer oracle.
func (s *SQLiteStore) UpdateScore(ctx context.Context, id string, composite float64, dimensions map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dimsJSON, err := json.Marshal(dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimensions: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE patterns SET coherence = ?, dimensions = ?, updated_at = ? WHERE id = ?`,
		composite, string(dimsJSON), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to rescore pattern %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	logging.StoreDebug("Rescored pattern %s to %.3f", id, composite)
	return nil
}

// SetEmbedding stores a pattern's embedding vector for similarity search.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE patterns SET embedding = ? WHERE id = ?`, encodeVector(vec), id)
	if err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return nil
}

// Embeddings returns every stored embedding keyed by pattern id.
func (s *SQLiteStore) Embeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM patterns WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		out[id] = decodeVector(blob)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Embeddings travel as little-endian float32 blobs.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
