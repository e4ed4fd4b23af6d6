// Package pipeline runs one document through extraction, validation,
// chunking, embedding and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docrag-go/internal/chunker"
	"docrag-go/internal/embedder"
	"docrag-go/internal/extractor"
	"docrag-go/internal/model"
	"docrag-go/internal/textclean"
	"docrag-go/pkg/log"
)

const (
	SourceUpload = "upload"
	SourcePaste  = "paste"
)

// TextExtractor turns document bytes into cleaned text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileName string, fileType model.FileType) (extractor.Result, error)
}

// Embedder embeds chunk texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]embedder.Embedding, error)
}

// ChunkWriter persists all chunks of one document.
type ChunkWriter interface {
	InsertDocument(ctx context.Context, chunks []model.Chunk) error
}

// FileInput is an uploaded file. FileType may be empty, in which case it is
// inferred from FileName. DocumentID may be preassigned by the caller.
type FileInput struct {
	Data        []byte
	FileName    string
	FileType    model.FileType
	UserID      string
	Section     string
	Category    string
	StoragePath string
	DocumentID  string
	UploadedAt  time.Time
}

// TextInput is pasted text. Title becomes the document's file name.
type TextInput struct {
	Title    string
	Content  string
	UserID   string
	Section  string
	Category string
}

// Processor wires the ingestion stages together.
type Processor struct {
	extractor TextExtractor
	validator textclean.Validator
	chunker   *chunker.Chunker
	embedder  Embedder
	writer    ChunkWriter
	now       func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(ext TextExtractor, validator textclean.Validator, ch *chunker.Chunker, emb Embedder, writer ChunkWriter) *Processor {
	return &Processor{
		extractor: ext,
		validator: validator,
		chunker:   ch,
		embedder:  emb,
		writer:    writer,
		now:       time.Now,
	}
}

type document struct {
	id          string
	source      string
	fileName    string
	fileType    model.FileType
	userID      string
	section     string
	category    string
	storagePath string
	uploadedAt  time.Time
}

// IngestFile ingests an uploaded file. Extraction and validation failures
// are reported in the result with a nil error; embedding and storage
// failures are reported in the result and returned as the error.
func (p *Processor) IngestFile(ctx context.Context, in FileInput) (model.IngestResult, error) {
	doc := document{
		id:          in.DocumentID,
		source:      SourceUpload,
		fileName:    strings.TrimSpace(in.FileName),
		fileType:    in.FileType,
		userID:      in.UserID,
		section:     in.Section,
		category:    in.Category,
		storagePath: in.StoragePath,
		uploadedAt:  in.UploadedAt,
	}
	if doc.fileName == "" {
		return failed(doc, model.StageReceived, fmt.Errorf("%w: file name is required", model.ErrValidationFailed)), nil
	}
	if doc.fileType == "" {
		ft, err := model.FileTypeFromName(doc.fileName)
		if err != nil {
			return failed(doc, model.StageReceived, err), nil
		}
		doc.fileType = ft
	}
	return p.ingest(ctx, doc, in.Data)
}

// IngestText ingests pasted text under its title.
func (p *Processor) IngestText(ctx context.Context, in TextInput) (model.IngestResult, error) {
	doc := document{
		source:   SourcePaste,
		fileName: strings.TrimSpace(in.Title),
		fileType: model.FileTypeText,
		userID:   in.UserID,
		section:  in.Section,
		category: in.Category,
	}
	if doc.fileName == "" {
		return failed(doc, model.StageReceived, fmt.Errorf("%w: title is required", model.ErrValidationFailed)), nil
	}
	if strings.TrimSpace(in.Content) == "" {
		return failed(doc, model.StageReceived, fmt.Errorf("%w: content is empty", model.ErrValidationFailed)), nil
	}
	return p.ingest(ctx, doc, []byte(in.Content))
}

func (p *Processor) ingest(ctx context.Context, doc document, data []byte) (model.IngestResult, error) {
	if doc.id == "" {
		doc.id = uuid.NewString()
	}
	if doc.uploadedAt.IsZero() {
		doc.uploadedAt = p.now().UTC()
	}
	log.Infof("[Pipeline] received %s (%s, %d bytes) document=%s user=%s", doc.fileName, doc.fileType, len(data), doc.id, doc.userID)

	res, err := p.extractor.Extract(ctx, data, doc.fileName, doc.fileType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed(doc, model.StageReceived, ctxErr), ctxErr
		}
		log.Warnf("[Pipeline] extraction failed for %s: %v", doc.fileName, err)
		return failed(doc, model.StageReceived, err), nil
	}
	log.Infof("[Pipeline] extracted %d chars from %s via %s", len(res.Text), doc.fileName, res.Method)

	if !p.validator.ValidForStorage(res.Text) {
		log.Warnf("[Pipeline] extracted text of %s failed validation", doc.fileName)
		return failed(doc, model.StageExtracted, fmt.Errorf("%w: extracted text does not look like readable content", model.ErrValidationFailed)), nil
	}

	var pieces []string
	for _, piece := range p.chunker.Split(res.Text) {
		if p.validator.ValidForStorage(piece) {
			pieces = append(pieces, piece)
		}
	}
	if len(pieces) == 0 {
		return failed(doc, model.StageValidated, fmt.Errorf("%w: no chunk passed validation", model.ErrValidationFailed)), nil
	}
	log.Infof("[Pipeline] split %s into %d chunks", doc.fileName, len(pieces))

	embeddings, err := p.embedder.Embed(ctx, pieces)
	if err != nil {
		if errors.Is(err, model.ErrNoValidText) {
			return failed(doc, model.StageChunked, err), nil
		}
		log.Errorf("[Pipeline] embedding %s failed: %v", doc.fileName, err)
		return failed(doc, model.StageChunked, err), err
	}

	chunks := make([]model.Chunk, len(embeddings))
	for i, e := range embeddings {
		chunks[i] = model.Chunk{
			ID:      uuid.NewString(),
			Content: pieces[e.Index],
			Metadata: model.ChunkMetadata{
				Source:      doc.source,
				FileName:    doc.fileName,
				ChunkIndex:  i,
				TotalChunks: len(embeddings),
				FileType:    doc.fileType,
				UploadedAt:  doc.uploadedAt,
				DocumentID:  doc.id,
				UserID:      doc.userID,
				Section:     doc.section,
				Category:    doc.category,
				StoragePath: doc.storagePath,
			},
			Embedding: e.Vector,
		}
	}

	if err := p.writer.InsertDocument(ctx, chunks); err != nil {
		log.Errorf("[Pipeline] persisting %s failed: %v", doc.fileName, err)
		return failed(doc, model.StageEmbedded, err), err
	}

	log.Infof("[Pipeline] persisted %d chunks of %s document=%s", len(chunks), doc.fileName, doc.id)
	return model.IngestResult{
		Success:         true,
		DocumentID:      doc.id,
		ChunksProcessed: len(chunks),
		Stage:           model.StagePersisted,
	}, nil
}

func failed(doc document, stage model.IngestStage, err error) model.IngestResult {
	return model.IngestResult{
		Success:    false,
		DocumentID: doc.id,
		Error:      err.Error(),
		Stage:      stage,
	}
}
