package main

import (
	"context"
	"os"
	"path/filepath"

	"docrag-go/internal/model"
	"docrag-go/internal/service"
	"docrag-go/pkg/log"
)

// seedFiles ingests every supported file under dir for userID, skipping files
// the user already has.
func seedFiles(ctx context.Context, dir, userID string, uploads service.UploadService, docs service.DocumentService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] directory '%s' is not available, skipping", dir)
		return
	}

	existing := make(map[string]bool)
	if list, err := docs.List(ctx, userID); err == nil {
		for _, d := range list {
			existing[d.FileName] = true
		}
	} else {
		log.Warnf("[Seed] list existing documents: %v", err)
	}

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if _, err := model.FileTypeFromName(name); err != nil {
			return nil
		}
		if existing[name] {
			log.Infof("[Seed] %s already ingested, skipping", name)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("[Seed] read %s: %v", path, err)
			return nil
		}
		res, err := uploads.Upload(ctx, service.UploadRequest{Data: data, FileName: name, UserID: userID})
		switch {
		case err != nil:
			log.Warnf("[Seed] ingest %s: %v", name, err)
		case !res.Success:
			log.Warnf("[Seed] %s rejected at %s: %s", name, res.Stage, res.Error)
		default:
			log.Infof("[Seed] ingested %s into %d chunks", name, res.ChunksProcessed)
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("[Seed] walk %s: %v", dir, walkErr)
	}
}
