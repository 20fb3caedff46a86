// Package blobs stores uploaded documents in GridFS behind the narrow
// upload/list/delete surface the document views consume.
package blobs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fearlessjoy/fridaynz/logging"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entry describes one stored blob.
type Entry struct {
	Path       string            `json:"path"`
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Size       int64             `json:"size"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UploadedAt time.Time         `json:"uploadedAt"`
}

// ProgressFunc reports bytes written so far against the total.
type ProgressFunc func(written, total int64)

type Store struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewStore(db *mongo.Database, baseURL string) (*Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("documents"))
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket: %v", err)
	}
	return &Store{bucket: bucket, baseURL: baseURL}, nil
}

// Upload streams the blob into the bucket under pathPrefix and returns its
// entry. Progress is reported per chunk when a callback is given.
func (s *Store) Upload(ctx context.Context, name string, blob io.Reader, size int64, pathPrefix string, metadata map[string]string, onProgress ProgressFunc) (Entry, error) {
	path := fmt.Sprintf("%s/%s-%s", pathPrefix, uuid.New().String(), name)

	meta := bson.M{"path": path, "prefix": pathPrefix, "uploadedAt": time.Now()}
	for key, value := range metadata {
		meta[key] = value
	}

	uploadStream, err := s.bucket.OpenUploadStream(path, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to open upload stream: %v", err)
	}
	defer uploadStream.Close()

	var written int64
	buf := make([]byte, 255*1024)
	for {
		n, readErr := blob.Read(buf)
		if n > 0 {
			if _, writeErr := uploadStream.Write(buf[:n]); writeErr != nil {
				return Entry{}, fmt.Errorf("failed to write blob chunk: %v", writeErr)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, size)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Entry{}, fmt.Errorf("failed to read blob: %v", readErr)
		}
	}

	logging.Logger.Infof("Event ID: BLOB_UPLOADED, Description: Stored %s (%d bytes)", path, written)
	return Entry{
		Path:       path,
		URL:        s.baseURL + "/" + path,
		Name:       name,
		Size:       written,
		Metadata:   metadata,
		UploadedAt: time.Now(),
	}, nil
}

// List returns the entries stored under pathPrefix.
func (s *Store) List(ctx context.Context, pathPrefix string) ([]Entry, error) {
	cursor, err := s.bucket.Find(bson.M{"metadata.prefix": pathPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs under %s: %v", pathPrefix, err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	for cursor.Next(ctx) {
		var file struct {
			Name     string `bson:"filename"`
			Length   int64  `bson:"length"`
			Metadata bson.M `bson:"metadata"`
		}
		if err := cursor.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode blob entry: %v", err)
		}
		entry := Entry{Path: file.Name, URL: s.baseURL + "/" + file.Name, Size: file.Length}
		if name, ok := file.Metadata["name"].(string); ok {
			entry.Name = name
		}
		entries = append(entries, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %v", err)
	}
	return entries, nil
}

// Delete removes the blob at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	cursor, err := s.bucket.Find(bson.M{"filename": path})
	if err != nil {
		return fmt.Errorf("failed to find blob %s: %v", path, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var file struct {
			ID interface{} `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return fmt.Errorf("failed to decode blob entry: %v", err)
		}
		if err := s.bucket.Delete(file.ID); err != nil {
			return fmt.Errorf("failed to delete blob %s: %v", path, err)
		}
		return nil
	}
	return fmt.Errorf("blob %s not found", path)
}
