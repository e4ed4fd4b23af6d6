// Package service contains the application's business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"docrag-go/internal/model"
	"docrag-go/pkg/log"
	"docrag-go/pkg/storage"
)

// ChunkRegistry is the part of the chunk store the registry needs.
type ChunkRegistry interface {
	ListByUser(ctx context.Context, userID string) ([]model.ChunkMetadata, error)
	DeleteByFile(ctx context.Context, fileName, userID string) (int64, error)
}

// Presigner issues temporary download links for stored blobs.
type Presigner interface {
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// DownloadInfo is a temporary link to an original upload.
type DownloadInfo struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// DocumentService lists and deletes a user's documents.
type DocumentService interface {
	List(ctx context.Context, userID string) ([]model.DocumentSummary, error)
	Delete(ctx context.Context, fileName, userID string) (bool, error)
	DownloadURL(ctx context.Context, fileName, userID string) (*DownloadInfo, error)
}

type documentService struct {
	chunks ChunkRegistry
	blobs  storage.BlobStore
}

// NewDocumentService creates a DocumentService. blobs may be nil when object
// storage is disabled.
func NewDocumentService(chunks ChunkRegistry, blobs storage.BlobStore) DocumentService {
	return &documentService{chunks: chunks, blobs: blobs}
}

// List groups the user's chunks by file name, newest upload first.
func (s *documentService) List(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	metas, err := s.chunks.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", userID, err)
	}
	return summarize(metas), nil
}

// summarize keeps one summary per file name, taken from its most recent upload.
func summarize(metas []model.ChunkMetadata) []model.DocumentSummary {
	byName := make(map[string]model.DocumentSummary)
	for _, m := range metas {
		cur, ok := byName[m.FileName]
		if ok && !m.UploadedAt.After(cur.UploadedAt) {
			continue
		}
		byName[m.FileName] = model.DocumentSummary{
			DocumentID:  m.DocumentID,
			FileName:    m.FileName,
			FileType:    m.FileType,
			UploadedAt:  m.UploadedAt,
			TotalChunks: m.TotalChunks,
			StoragePath: m.StoragePath,
		}
	}
	out := make([]model.DocumentSummary, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].FileName < out[j].FileName
	})
	return out
}

// Delete removes every chunk of (fileName, userID) and the stored originals.
// It reports whether anything was deleted.
func (s *documentService) Delete(ctx context.Context, fileName, userID string) (bool, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || userID == "" {
		return false, fmt.Errorf("%w: file name and user are required", model.ErrValidationFailed)
	}

	paths, err := s.storagePaths(ctx, fileName, userID)
	if err != nil {
		return false, err
	}

	n, err := s.chunks.DeleteByFile(ctx, fileName, userID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", fileName, err)
	}
	log.Infof("[DocumentService] deleted %d chunks of %s for user %s", n, fileName, userID)

	if s.blobs != nil {
		for _, p := range paths {
			if err := s.blobs.Remove(ctx, p); err != nil {
				log.Warnf("[DocumentService] remove blob %s: %v", p, err)
			}
		}
	}
	return n > 0, nil
}

func (s *documentService) storagePaths(ctx context.Context, fileName, userID string) ([]string, error) {
	if s.blobs == nil {
		return nil, nil
	}
	metas, err := s.chunks.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", userID, err)
	}
	seen := make(map[string]bool)
	var paths []string
	for _, m := range metas {
		if m.FileName != fileName || m.StoragePath == "" || seen[m.StoragePath] {
			continue
		}
		seen[m.StoragePath] = true
		paths = append(paths, m.StoragePath)
	}
	return paths, nil
}

// DownloadURL returns a one-hour link to the newest stored original of fileName.
func (s *documentService) DownloadURL(ctx context.Context, fileName, userID string) (*DownloadInfo, error) {
	presigner, ok := s.blobs.(Presigner)
	if !ok {
		return nil, errors.New("object storage is not configured")
	}
	docs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.FileName != fileName {
			continue
		}
		if d.StoragePath == "" {
			return nil, fmt.Errorf("%w: %s has no stored original", model.ErrDocumentNotFound, fileName)
		}
		url, err := presigner.PresignedURL(ctx, d.StoragePath, time.Hour)
		if err != nil {
			return nil, err
		}
		return &DownloadInfo{FileName: fileName, DownloadURL: url}, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrDocumentNotFound, fileName)
}
