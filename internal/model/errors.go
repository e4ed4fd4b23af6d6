package model

import "errors"

// Pipeline errors. Extraction and validation failures are reported to callers
// as data; provider and storage failures propagate as errors.
var (
	// ErrExtractionFailed means every extraction strategy was exhausted.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrValidationFailed means the text did not pass the validity predicate.
	ErrValidationFailed = errors.New("validation failed")

	// ErrNoValidText means no chunk survived the embedding predicate.
	ErrNoValidText = errors.New("no valid text to embed")

	// ErrUnsupportedFileType means the declared file type has no extractor.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmbeddingAuth is an authorization or quota rejection from the provider. Never retried.
	ErrEmbeddingAuth = errors.New("embedding provider rejected credentials or quota")

	// ErrEmbeddingTransient covers every other provider failure.
	ErrEmbeddingTransient = errors.New("embedding provider request failed")

	// ErrDimensionMismatch means the provider returned vectors of the wrong shape.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageInsert means a chunk insert failed after all retries.
	ErrStorageInsert = errors.New("chunk insert failed")

	// ErrMatchUnavailable means the store has no native similarity operator.
	ErrMatchUnavailable = errors.New("native similarity match unavailable")

	// ErrUnknownMetadataKey means a metadata document carried an undeclared key.
	ErrUnknownMetadataKey = errors.New("unknown metadata key")

	// ErrDocumentNotFound means no chunks matched the (fileName, userId) pair.
	ErrDocumentNotFound = errors.New("document not found")
)
