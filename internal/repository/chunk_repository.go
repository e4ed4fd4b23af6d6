// Package repository provides the data access layer.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docrag-go/internal/model"
)

// ChunkTable is the shared chunk table. Ownership is carried by user_id only.
const ChunkTable = "document_chunks"

// chunkRow is the document_chunks row. Owner and ordering fields are copied
// out of the metadata so they can be indexed.
type chunkRow struct {
	ID         string              `gorm:"column:id;primaryKey"`
	DocumentID string              `gorm:"column:document_id"`
	FileName   string              `gorm:"column:file_name"`
	UserID     string              `gorm:"column:user_id"`
	ChunkIndex int                 `gorm:"column:chunk_index"`
	Content    string              `gorm:"column:content"`
	Metadata   model.ChunkMetadata `gorm:"column:metadata"`
	Embedding  pgvector.Vector     `gorm:"column:embedding"`
	UploadedAt time.Time           `gorm:"column:uploaded_at"`
}

func (chunkRow) TableName() string { return ChunkTable }

type matchRow struct {
	ID         string
	Content    string
	Metadata   model.ChunkMetadata
	Similarity float64
}

type scanRow struct {
	ID        string
	Content   string
	Metadata  model.ChunkMetadata
	Embedding string
}

// ChunkRepository stores chunks in PostgreSQL (pgvector) or MySQL. Only the
// PostgreSQL dialect has a native similarity match.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a ChunkRepository on db.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) dialect() string {
	return r.db.Dialector.Name()
}

// Migrate creates the chunk table and its indexes if they do not exist.
func (r *ChunkRepository) Migrate(ctx context.Context) error {
	stmts, err := ddl(r.dialect())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate %s: %w", ChunkTable, err)
		}
	}
	return nil
}

func ddl(dialect string) ([]string, error) {
	switch dialect {
	case "postgres":
		return []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id varchar(64) PRIMARY KEY,
	document_id varchar(64) NOT NULL,
	file_name varchar(255) NOT NULL,
	user_id varchar(64) NOT NULL DEFAULT '',
	chunk_index integer NOT NULL,
	content text NOT NULL,
	metadata jsonb NOT NULL,
	embedding vector(%d) NOT NULL,
	uploaded_at timestamptz NOT NULL
)`, ChunkTable, model.EmbeddingDimensions),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s (user_id, file_name)`, ChunkTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_document ON %[1]s (document_id)`, ChunkTable),
		}, nil
	case "mysql":
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id varchar(64) NOT NULL PRIMARY KEY,
	document_id varchar(64) NOT NULL,
	file_name varchar(255) NOT NULL,
	user_id varchar(64) NOT NULL DEFAULT '',
	chunk_index int NOT NULL,
	content longtext NOT NULL,
	metadata json NOT NULL,
	embedding longtext NOT NULL,
	uploaded_at datetime(3) NOT NULL,
	INDEX idx_owner (user_id, file_name),
	INDEX idx_document (document_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, ChunkTable),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported chunk store dialect %q", dialect)
	}
}

// Insert writes one chunk row.
func (r *ChunkRepository) Insert(ctx context.Context, chunk model.Chunk) error {
	row := chunkRow{
		ID:         chunk.ID,
		DocumentID: chunk.Metadata.DocumentID,
		FileName:   chunk.Metadata.FileName,
		UserID:     chunk.Metadata.UserID,
		ChunkIndex: chunk.Metadata.ChunkIndex,
		Content:    chunk.Content,
		Metadata:   chunk.Metadata,
		Embedding:  pgvector.NewVector(chunk.Embedding),
		UploadedAt: chunk.Metadata.UploadedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Match ranks rows by cosine similarity using pgvector's <=> distance.
func (r *ChunkRepository) Match(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	if r.dialect() != "postgres" {
		return nil, model.ErrMatchUnavailable
	}
	var rows []matchRow
	err := r.matchQuery(r.db.WithContext(ctx), q).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", ChunkTable, err)
	}
	out := make([]model.SearchResult, len(rows))
	for i, row := range rows {
		out[i] = model.SearchResult{ID: row.ID, Content: row.Content, Metadata: row.Metadata, Similarity: row.Similarity}
	}
	return out, nil
}

func (r *ChunkRepository) matchQuery(tx *gorm.DB, q model.SearchQuery) *gorm.DB {
	vec := pgvector.NewVector(q.Embedding)
	sql := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> ?) AS similarity
FROM %s
WHERE (? = '' OR user_id = ?) AND 1 - (embedding <=> ?) >= ?
ORDER BY embedding <=> ?
LIMIT ?`, ChunkTable)
	return tx.Raw(sql, vec, q.UserID, q.UserID, vec, q.Threshold, vec, q.Count)
}

// Scan reads up to limit rows with their embeddings in text form.
func (r *ChunkRepository) Scan(ctx context.Context, userID string, limit int) ([]model.StoredRow, error) {
	var rows []scanRow
	if err := r.scanQuery(r.db.WithContext(ctx), userID, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", ChunkTable, err)
	}
	out := make([]model.StoredRow, len(rows))
	for i, row := range rows {
		out[i] = model.StoredRow{ID: row.ID, Content: row.Content, Metadata: row.Metadata, Embedding: row.Embedding}
	}
	return out, nil
}

func (r *ChunkRepository) scanQuery(tx *gorm.DB, userID string, limit int) *gorm.DB {
	embedding := "embedding"
	if r.dialect() == "postgres" {
		embedding = "embedding::text AS embedding"
	}
	tx = tx.Table(ChunkTable).Select("id, content, metadata, " + embedding)
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	return tx
}

// ListByUser returns the metadata of every chunk owned by userID, newest first.
func (r *ChunkRepository) ListByUser(ctx context.Context, userID string) ([]model.ChunkMetadata, error) {
	var rows []struct{ Metadata model.ChunkMetadata }
	err := r.db.WithContext(ctx).Table(ChunkTable).
		Select("metadata").
		Where("user_id = ?", userID).
		Order("uploaded_at DESC, chunk_index ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ChunkTable, err)
	}
	out := make([]model.ChunkMetadata, len(rows))
	for i, row := range rows {
		out[i] = row.Metadata
	}
	return out, nil
}

// DeleteByFile removes every row of (fileName, userID).
func (r *ChunkRepository) DeleteByFile(ctx context.Context, fileName, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("file_name = ? AND user_id = ?", fileName, userID).Delete(&chunkRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s from %s: %w", fileName, ChunkTable, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByDocument removes every row of one ingestion run.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&chunkRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete document %s from %s: %w", documentID, ChunkTable, res.Error)
	}
	return res.RowsAffected, nil
}
