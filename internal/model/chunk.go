// Package model holds the domain types shared by the ingestion and query paths.
package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EmbeddingDimensions is the fixed length of every stored embedding.
const EmbeddingDimensions = 1536

// FileType identifies how a document's bytes are turned into text.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeDOC  FileType = "doc"
	FileTypeTXT  FileType = "txt"
	FileTypeMD   FileType = "md"
	// FileTypeText marks raw pasted text.
	FileTypeText FileType = "text"
)

// ParseFileType normalizes a declared type such as "PDF", ".docx" or a MIME type.
func ParseFileType(s string) (FileType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "pdf", "application/pdf":
		return FileTypePDF, nil
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FileTypeDOCX, nil
	case "doc", "application/msword":
		return FileTypeDOC, nil
	case "txt", "text/plain":
		return FileTypeTXT, nil
	case "md", "markdown", "text/markdown":
		return FileTypeMD, nil
	case "text":
		return FileTypeText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, s)
}

// FileTypeFromName infers the type from the file extension.
func FileTypeFromName(fileName string) (FileType, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFileType, fileName)
	}
	return ParseFileType(ext)
}

// ChunkMetadata is the typed metadata stored next to every chunk.
type ChunkMetadata struct {
	Source      string    `json:"source"`
	FileName    string    `json:"fileName"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	FileType    FileType  `json:"fileType"`
	UploadedAt  time.Time `json:"uploadedAt"`
	DocumentID  string    `json:"documentId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	Section     string    `json:"section,omitempty"`
	Category    string    `json:"category,omitempty"`
	StoragePath string    `json:"storagePath,omitempty"`
}

// DecodeChunkMetadata parses a metadata document, rejecting keys the struct does not declare.
func DecodeChunkMetadata(data []byte) (ChunkMetadata, error) {
	var m ChunkMetadata
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return ChunkMetadata{}, fmt.Errorf("%w: %v", ErrUnknownMetadataKey, err)
		}
		return ChunkMetadata{}, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return m, nil
}

// Value stores the metadata as a JSON document.
func (m ChunkMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON metadata column.
func (m *ChunkMetadata) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		return errors.New("chunk metadata is null")
	default:
		return fmt.Errorf("unsupported chunk metadata column type %T", src)
	}
	decoded, err := DecodeChunkMetadata(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// Chunk is the persisted unit: cleaned content, its metadata and its embedding.
type Chunk struct {
	ID        string
	Content   string
	Metadata  ChunkMetadata
	Embedding []float32
}

// StoredRow is a chunk as read back by a full scan. Embedding keeps whatever
// encoding the backend returned: a native slice, a JSON string or a "[v1,v2]" string.
type StoredRow struct {
	ID        string
	Content   string
	Metadata  ChunkMetadata
	Embedding interface{}
}
