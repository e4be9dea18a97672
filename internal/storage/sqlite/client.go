package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/storage/models"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/utils"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// Client stores model artifact bundles in a single SQLite file so a training
// run can be shipped and swapped as one unit.
type Client struct {
	db   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite artifact store opened", zap.String("path", dbPath))

	return &Client{db: db, path: dbPath}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		name TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		checksum TEXT NOT NULL,
		size INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifact_imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		model_version TEXT,
		artifact_count INTEGER NOT NULL,
		imported_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_imports_imported ON artifact_imports(imported_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ImportBundle replaces the stored artifacts with the bundle's content in one
// transaction and records the import.
func (c *Client) ImportBundle(ctx context.Context, bundle *artifacts.Bundle) (*models.ArtifactImport, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return nil, fmt.Errorf("failed to clear artifacts: %w", err)
	}

	now := time.Now()
	for name, content := range bundle.Files {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (name, content, checksum, size, updated_at) VALUES (?, ?, ?, ?, ?)`,
			name, content, utils.HashBytes(content), len(content), now.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert artifact %s: %w", name, err)
		}
	}

	record := &models.ArtifactImport{
		Origin:        bundle.Origin,
		ModelVersion:  bundle.ModelVersion(),
		ArtifactCount: len(bundle.Files),
		ImportedAt:    now,
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO artifact_imports (origin, model_version, artifact_count, imported_at) VALUES (?, ?, ?, ?)`,
		record.Origin, record.ModelVersion, record.ArtifactCount, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record import: %w", err)
	}
	record.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	logger.Info("Artifact bundle imported",
		zap.String("origin", record.Origin),
		zap.String("model_version", record.ModelVersion),
		zap.Int("artifacts", record.ArtifactCount),
	)
	return record, nil
}

func (c *Client) GetArtifact(ctx context.Context, name string) (*models.Artifact, error) {
	query := `SELECT name, content, checksum, size, updated_at FROM artifacts WHERE name = ?`

	var a models.Artifact
	var updatedAt int64
	err := c.db.QueryRowContext(ctx, query, name).Scan(&a.Name, &a.Content, &a.Checksum, &a.Size, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", name, err)
	}

	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

// ListArtifacts returns artifact metadata without content.
func (c *Client) ListArtifacts(ctx context.Context) ([]models.Artifact, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, checksum, size, updated_at FROM artifacts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		var a models.Artifact
		var updatedAt int64
		if err := rows.Scan(&a.Name, &a.Checksum, &a.Size, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *Client) ListImports(ctx context.Context, limit int) ([]models.ArtifactImport, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, origin, COALESCE(model_version, ''), artifact_count, imported_at FROM artifact_imports ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var out []models.ArtifactImport
	for rows.Next() {
		var imp models.ArtifactImport
		var importedAt int64
		if err := rows.Scan(&imp.ID, &imp.Origin, &imp.ModelVersion, &imp.ArtifactCount, &importedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imp.ImportedAt = time.Unix(importedAt, 0)
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Load implements artifacts.Source. Stored checksums are verified so a
// corrupted row fails startup.
func (c *Client) Load(ctx context.Context) (*artifacts.Bundle, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, content, checksum FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifacts: %w", err)
	}
	defer rows.Close()

	bundle := &artifacts.Bundle{Origin: "sqlite:" + c.path, Files: map[string][]byte{}}
	for rows.Next() {
		var name, checksum string
		var content []byte
		if err := rows.Scan(&name, &content, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if got := utils.HashBytes(content); got != checksum {
			return nil, fmt.Errorf("artifact %s is corrupted: stored checksum %s, content %s", name, checksum, got)
		}
		bundle.Files[name] = content
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}

	if len(bundle.Files) == 0 {
		return nil, fmt.Errorf("artifact store %s is empty", c.path)
	}
	return bundle, nil
}
