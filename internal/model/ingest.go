package model

// IngestStage names the last state an ingestion reached.
type IngestStage string

const (
	StageReceived  IngestStage = "received"
	StageExtracted IngestStage = "extracted"
	StageValidated IngestStage = "validated"
	StageChunked   IngestStage = "chunked"
	StageEmbedded  IngestStage = "embedded"
	StagePersisted IngestStage = "persisted"
)

// IngestResult is returned across the upload boundary.
// Success is only true once every chunk has been persisted, or, for Queued
// results, once the ingestion task has been handed to the broker.
type IngestResult struct {
	Success         bool        `json:"success"`
	DocumentID      string      `json:"documentId,omitempty"`
	ChunksProcessed int         `json:"chunksProcessed,omitempty"`
	Error           string      `json:"error,omitempty"`
	Stage           IngestStage `json:"stage,omitempty"`
	Queued          bool        `json:"queued,omitempty"`
}
