package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docrag-go/internal/model"
	"docrag-go/internal/pipeline"
	"docrag-go/pkg/log"
	"docrag-go/pkg/storage"
	"docrag-go/pkg/tasks"
)

// Ingester runs documents through the ingestion pipeline.
type Ingester interface {
	IngestFile(ctx context.Context, in pipeline.FileInput) (model.IngestResult, error)
	IngestText(ctx context.Context, in pipeline.TextInput) (model.IngestResult, error)
}

// TaskPublisher hands ingestion tasks to the asynchronous workers.
type TaskPublisher interface {
	Publish(ctx context.Context, task tasks.IngestTask) error
}

// UploadRequest is one uploaded file. FileType may be empty.
type UploadRequest struct {
	Data     []byte
	FileName string
	FileType string
	UserID   string
	Section  string
	Category string
	Async    bool
}

// UploadService accepts uploads and pasted text.
type UploadService interface {
	Upload(ctx context.Context, req UploadRequest) (model.IngestResult, error)
	Paste(ctx context.Context, in pipeline.TextInput) (model.IngestResult, error)
	ProcessTask(ctx context.Context, task tasks.IngestTask) error
	SupportedFileTypes() map[string]interface{}
}

type uploadService struct {
	ingester  Ingester
	blobs     storage.BlobStore
	publisher TaskPublisher
}

// NewUploadService creates an UploadService. blobs and publisher may be nil;
// asynchronous uploads need both.
func NewUploadService(ingester Ingester, blobs storage.BlobStore, publisher TaskPublisher) UploadService {
	return &uploadService{ingester: ingester, blobs: blobs, publisher: publisher}
}

// ObjectName is where the original of an upload is kept.
func ObjectName(userID, documentID, fileName string) string {
	owner := userID
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("uploads/%s/%s/%s", owner, documentID, fileName)
}

// baseName strips any client-supplied directory from a file name.
func baseName(fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func (s *uploadService) Upload(ctx context.Context, req UploadRequest) (model.IngestResult, error) {
	fileName := baseName(req.FileName)
	if fileName == "" {
		return model.IngestResult{Error: "file name is required", Stage: model.StageReceived}, nil
	}
	fileType, err := resolveFileType(req.FileType, fileName)
	if err != nil {
		return model.IngestResult{Error: err.Error(), Stage: model.StageReceived}, nil
	}
	if len(req.Data) == 0 {
		return model.IngestResult{Error: fmt.Sprintf("%s is empty", fileName), Stage: model.StageReceived}, nil
	}

	documentID := uuid.NewString()
	uploadedAt := time.Now().UTC()
	var objectName string
	if s.blobs != nil {
		objectName = ObjectName(req.UserID, documentID, fileName)
		if err := s.blobs.Put(ctx, objectName, req.Data, contentType(fileType)); err != nil {
			return model.IngestResult{DocumentID: documentID, Error: err.Error(), Stage: model.StageReceived}, err
		}
		log.Infof("[UploadService] stored %s at %s", fileName, objectName)
	}

	if req.Async {
		return s.enqueue(ctx, tasks.IngestTask{
			DocumentID:  documentID,
			FileName:    fileName,
			FileType:    string(fileType),
			UserID:      req.UserID,
			StoragePath: objectName,
			Section:     req.Section,
			Category:    req.Category,
			UploadedAt:  uploadedAt,
		})
	}

	res, err := s.ingester.IngestFile(ctx, pipeline.FileInput{
		Data:        req.Data,
		FileName:    fileName,
		FileType:    fileType,
		UserID:      req.UserID,
		Section:     req.Section,
		Category:    req.Category,
		StoragePath: objectName,
		DocumentID:  documentID,
		UploadedAt:  uploadedAt,
	})
	if !res.Success && objectName != "" {
		s.removeBlob(objectName)
	}
	return res, err
}

func (s *uploadService) enqueue(ctx context.Context, task tasks.IngestTask) (model.IngestResult, error) {
	if s.publisher == nil || task.StoragePath == "" {
		return model.IngestResult{
			DocumentID: task.DocumentID,
			Error:      "asynchronous ingestion needs object storage and kafka",
			Stage:      model.StageReceived,
		}, nil
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.removeBlob(task.StoragePath)
		return model.IngestResult{DocumentID: task.DocumentID, Error: err.Error(), Stage: model.StageReceived}, err
	}
	log.Infof("[UploadService] queued document %s (%s)", task.DocumentID, task.FileName)
	return model.IngestResult{Success: true, DocumentID: task.DocumentID, Stage: model.StageReceived, Queued: true}, nil
}

func (s *uploadService) Paste(ctx context.Context, in pipeline.TextInput) (model.IngestResult, error) {
	return s.ingester.IngestText(ctx, in)
}

// ProcessTask ingests a queued upload. Only embedding and storage failures
// are returned, since retrying cannot fix unreadable documents.
func (s *uploadService) ProcessTask(ctx context.Context, task tasks.IngestTask) error {
	if s.blobs == nil {
		return errors.New("object storage is not configured")
	}
	data, err := s.blobs.Get(ctx, task.StoragePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", task.StoragePath, err)
	}
	res, err := s.ingester.IngestFile(ctx, pipeline.FileInput{
		Data:        data,
		FileName:    task.FileName,
		FileType:    model.FileType(task.FileType),
		UserID:      task.UserID,
		Section:     task.Section,
		Category:    task.Category,
		StoragePath: task.StoragePath,
		DocumentID:  task.DocumentID,
		UploadedAt:  task.UploadedAt,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		log.Warnf("[UploadService] document %s rejected at %s: %s", task.DocumentID, res.Stage, res.Error)
		s.removeBlob(task.StoragePath)
	}
	return nil
}

func (s *uploadService) removeBlob(objectName string) {
	if s.blobs == nil || objectName == "" {
		return
	}
	if err := s.blobs.Remove(context.Background(), objectName); err != nil {
		log.Warnf("[UploadService] remove blob %s: %v", objectName, err)
	}
}

func resolveFileType(declared, fileName string) (model.FileType, error) {
	if strings.TrimSpace(declared) != "" {
		return model.ParseFileType(declared)
	}
	return model.FileTypeFromName(fileName)
}

func contentType(ft model.FileType) string {
	switch ft {
	case model.FileTypePDF:
		return "application/pdf"
	case model.FileTypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case model.FileTypeDOC:
		return "application/msword"
	case model.FileTypeMD:
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// SupportedFileTypes describes the accepted upload types.
func (s *uploadService) SupportedFileTypes() map[string]interface{} {
	return map[string]interface{}{
		"supportedExtensions": []string{".pdf", ".docx", ".doc", ".txt", ".md"},
		"supportedTypes":      []model.FileType{model.FileTypePDF, model.FileTypeDOCX, model.FileTypeDOC, model.FileTypeTXT, model.FileTypeMD},
		"description":         "Documents whose text can be extracted, chunked and embedded",
	}
}
