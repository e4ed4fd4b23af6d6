// Package tasks defines the messages sent to Kafka.
package tasks

import "time"

// IngestTask asks a worker to ingest an upload already stored in object storage.
type IngestTask struct {
	DocumentID  string    `json:"documentId"`
	FileName    string    `json:"fileName"`
	FileType    string    `json:"fileType"`
	UserID      string    `json:"userId"`
	StoragePath string    `json:"storagePath"`
	Section     string    `json:"section,omitempty"`
	Category    string    `json:"category,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
