package model

import "time"

// SearchQuery is what the vector store needs for one similarity lookup.
// An empty UserID searches every user's chunks.
type SearchQuery struct {
	Embedding []float32
	Threshold float64
	Count     int
	UserID    string
}

// SearchResult is one ranked chunk. It is rebuilt per query and never persisted.
type SearchResult struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// DocumentSummary is the registry's one-line view of an ingested document.
type DocumentSummary struct {
	DocumentID  string    `json:"documentId,omitempty"`
	FileName    string    `json:"fileName"`
	FileType    FileType  `json:"fileType"`
	UploadedAt  time.Time `json:"uploadedAt"`
	TotalChunks int       `json:"totalChunks"`
	StoragePath string    `json:"storagePath,omitempty"`
}
