// Package postgres provides a PostgreSQL-backed record store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/records"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Store is a PostgreSQL record store.
type Store struct {
	db *sql.DB
}

var _ records.Store = (*Store)(nil)

// New connects to databaseURL.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded migrations in name order. They are written
// to be re-runnable.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// GetLink implements records.LinkStore.
func (s *Store) GetLink(ctx context.Context, id string) (*records.LinkRecord, error) {
	var (
		rec     records.LinkRecord
		kind    string
		source  string
		locator []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, source, locator, created_at FROM linked_entities WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &kind, &source, &locator, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get link %s: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}

	if rec.Kind, err = handle.ParseKind(kind); err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}
	if rec.Source, err = records.ParseSource(source); err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}
	if err := json.Unmarshal(locator, &rec.Locator); err != nil {
		return nil, fmt.Errorf("decode locator of %s: %w", id, err)
	}
	return &rec, nil
}

// PutLinks inserts the records in one transaction.
func (s *Store) PutLinks(ctx context.Context, recs []records.LinkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			return fmt.Errorf("link %q has no id", r.Name)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		locator, err := json.Marshal(r.Locator)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO linked_entities (id, name, kind, source, locator, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Name, r.Kind.String(), string(r.Source), locator, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("put link %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// PutAudio inserts or updates the record for (m.Source, m.Path).
func (s *Store) PutAudio(ctx context.Context, m *records.AudioMetadata) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audio_metadata (
			id, source, path, name, extension, mime, genre, artists,
			album, title, track_number, track_count, duration, year, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
		ON CONFLICT (source, path) DO UPDATE SET
			name=$4, extension=$5, mime=$6, genre=$7, artists=$8,
			album=$9, title=$10, track_number=$11, track_count=$12,
			duration=$13, year=$14, updated_at=NOW()
		RETURNING id, updated_at`,
		m.ID, string(m.Source), m.Path, m.Name, m.Extension, m.MIME,
		pq.Array(nonNil(m.Genre)), pq.Array(nonNil(m.Artists)),
		m.Album, m.Title, m.TrackNumber, m.TrackCount, m.Duration, m.Year,
	).Scan(&m.ID, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put audio %s: %w", m.Path, err)
	}
	return nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

const audioColumns = `id, source, path, name, extension, mime, genre, artists,
	album, title, track_number, track_count, duration, year, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAudio(row scanner) (*records.AudioMetadata, error) {
	var (
		m      records.AudioMetadata
		source string
	)
	err := row.Scan(&m.ID, &source, &m.Path, &m.Name, &m.Extension, &m.MIME,
		pq.Array(&m.Genre), pq.Array(&m.Artists),
		&m.Album, &m.Title, &m.TrackNumber, &m.TrackCount, &m.Duration, &m.Year, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Source = records.Source(source)
	return &m, nil
}

// GetAudio implements records.MetadataStore.
func (s *Store) GetAudio(ctx context.Context, source records.Source, path string) (*records.AudioMetadata, error) {
	m, err := scanAudio(s.db.QueryRowContext(ctx,
		`SELECT `+audioColumns+` FROM audio_metadata WHERE source = $1 AND path = $2`,
		string(source), path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get audio %s:%s: %w", source, path, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audio %s:%s: %w", source, path, err)
	}
	return m, nil
}

// ListAudio returns every audio record ordered by source and path.
func (s *Store) ListAudio(ctx context.Context) ([]records.AudioMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+audioColumns+` FROM audio_metadata ORDER BY source, path`)
	if err != nil {
		return nil, fmt.Errorf("list audio: %w", err)
	}
	defer rows.Close()

	out := []records.AudioMetadata{}
	for rows.Next() {
		m, err := scanAudio(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audio: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
