package persist

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/hazyhaar/shotdiff/dbopen"
)

// Schema is the DDL for the SQLite persister.
const Schema = `
CREATE TABLE IF NOT EXISTS images (
    run_id      TEXT NOT NULL,
    class       TEXT NOT NULL,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    png         BLOB NOT NULL,
    width       INTEGER NOT NULL,
    height      INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (run_id, class, name, kind)
);

CREATE TABLE IF NOT EXISTS results (
    run_id      TEXT NOT NULL,
    class       TEXT NOT NULL,
    name        TEXT NOT NULL,
    body        TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (run_id, class, name)
);

CREATE TABLE IF NOT EXISTS expected_ids (
    class       TEXT NOT NULL,
    method      TEXT NOT NULL,
    run_id      TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (class, method)
);
`

// SQLite persists into one database file.
type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies Schema.
func OpenSQLite(path string, opts ...dbopen.Option) (*SQLite, error) {
	all := append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &SQLite{DB: db}, nil
}

// NewSQLite wraps an already opened database. Schema must be applied.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{DB: db} }

func (s *SQLite) Close() error { return s.DB.Close() }

func rowName(m Metadata) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if m.ClassLevel() {
		return "", nil
	}
	return m.Name(), nil
}

func (s *SQLite) SaveImage(ctx context.Context, m Metadata, kind Kind, img image.Image) error {
	name, err := rowName(m)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("persist: encode: %w", err)
	}
	b := img.Bounds()
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT INTO images (run_id, class, name, kind, png, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, class, name, kind) DO UPDATE SET
		    png = excluded.png, width = excluded.width, height = excluded.height,
		    created_at = excluded.created_at`,
		m.RunID, m.Class, name, string(kind), buf.Bytes(), b.Dx(), b.Dy(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("persist: save image: %w", err)
	}
	return nil
}

func (s *SQLite) LoadImage(ctx context.Context, m Metadata, kind Kind) (image.Image, error) {
	name, err := rowName(m)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.DB.QueryRowContext(ctx,
		`SELECT png FROM images WHERE run_id = ? AND class = ? AND name = ? AND kind = ?`,
		m.RunID, m.Class, name, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: image %s/%s/%s", ErrNotFound, m.RunID, m.Class, name)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("persist: decode image: %w", err)
	}
	return img, nil
}

func (s *SQLite) SaveResult(ctx context.Context, m Metadata, v any) error {
	name, err := rowName(m)
	if err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: marshal result: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT INTO results (run_id, class, name, body, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, class, name) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`,
		m.RunID, m.Class, name, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("persist: save result: %w", err)
	}
	return nil
}

func (s *SQLite) LoadResult(ctx context.Context, m Metadata, v any) error {
	name, err := rowName(m)
	if err != nil {
		return err
	}
	var body string
	err = s.DB.QueryRowContext(ctx,
		`SELECT body FROM results WHERE run_id = ? AND class = ? AND name = ?`,
		m.RunID, m.Class, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: result %s/%s/%s", ErrNotFound, m.RunID, m.Class, name)
	}
	if err != nil {
		return fmt.Errorf("persist: load result: %w", err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("persist: decode result: %w", err)
	}
	return nil
}

// SaveExpectedIDs replaces the whole map in one transaction.
func (s *SQLite) SaveExpectedIDs(ctx context.Context, ids ExpectedIDs) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM expected_ids`); err != nil {
			return fmt.Errorf("persist: clear expected ids: %w", err)
		}
		for class, methods := range ids {
			for method, runID := range methods {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO expected_ids (class, method, run_id, updated_at) VALUES (?, ?, ?, ?)`,
					class, method, runID, now)
				if err != nil {
					return fmt.Errorf("persist: save expected id %s#%s: %w", class, method, err)
				}
			}
		}
		return nil
	})
}

// LoadExpectedIDs returns ErrNotFound when no id was ever saved.
func (s *SQLite) LoadExpectedIDs(ctx context.Context) (ExpectedIDs, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT class, method, run_id FROM expected_ids`)
	if err != nil {
		return nil, fmt.Errorf("persist: load expected ids: %w", err)
	}
	defer rows.Close()

	ids := ExpectedIDs{}
	for rows.Next() {
		var class, method, runID string
		if err := rows.Scan(&class, &method, &runID); err != nil {
			return nil, fmt.Errorf("persist: scan expected id: %w", err)
		}
		if ids[class] == nil {
			ids[class] = map[string]string{}
		}
		ids[class][method] = runID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: load expected ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return ids, nil
}
