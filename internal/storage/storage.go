package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BucketName is the GridFS bucket holding uploaded images.
const BucketName = "images"

var (
	ErrNotImage     = errors.New("uploaded file is not an image")
	ErrTooLarge     = errors.New("uploaded file is too large")
	ErrEmptyPayload = errors.New("uploaded file is empty")
	ErrMissingKey   = errors.New("object key is required")
	ErrFileNotFound = errors.New("file not found")
)

// File is a stored object opened for reading.
type File struct {
	io.ReadCloser
	Key         string
	ContentType string
	Size        int64
}

// BlobStore uploads payloads and returns a durable retrieval URL.
type BlobStore interface {
	Upload(ctx context.Context, key string, payload io.Reader) (string, error)
	Open(ctx context.Context, id string) (*File, error)
}

// GridFSStore implements BlobStore on a MongoDB GridFS bucket.
type GridFSStore struct {
	// mu serializes bucket calls; the read and write deadlines live on the
	// bucket and are shared by every request.
	mu       sync.Mutex
	bucket   *gridfs.Bucket
	baseURL  string
	maxBytes int64
}

// NewGridFSStore opens the images bucket. Files are served under baseURL + "/api/files/{id}".
func NewGridFSStore(database *mongo.Database, baseURL string, maxBytes int64) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(database, options.GridFSBucket().SetName(BucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &GridFSStore{
		bucket:   bucket,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

// ReadImage reads at most maxBytes from payload and checks that it is an image.
func ReadImage(payload io.Reader, maxBytes int64) ([]byte, *mimetype.MIME, error) {
	data, err := io.ReadAll(io.LimitReader(payload, maxBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, ErrEmptyPayload
	}
	if int64(len(data)) > maxBytes {
		return nil, nil, ErrTooLarge
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, nil, fmt.Errorf("%w: detected %s", ErrNotImage, mime.String())
	}
	return data, mime, nil
}

// FileURL returns the public URL of a stored file.
func FileURL(baseURL string, id primitive.ObjectID) string {
	return strings.TrimRight(baseURL, "/") + "/api/files/" + id.Hex()
}

// Upload stores the payload under key and returns its retrieval URL.
func (s *GridFSStore) Upload(ctx context.Context, key string, payload io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingKey
	}
	data, mime, err := ReadImage(payload, s.maxBytes)
	if err != nil {
		return "", err
	}

	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "key", Value: key},
		{Key: "content_type", Value: mime.String()},
	})
	var id primitive.ObjectID
	err = s.withBucket(func(bucket *gridfs.Bucket) error {
		if err := bucket.SetWriteDeadline(deadline(ctx)); err != nil {
			return err
		}
		var err error
		id, err = bucket.UploadFromStream(key, bytes.NewReader(data), opts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gridfs upload failed: %w", err)
	}

	log.WithFields(log.Fields{
		"file_id":      id.Hex(),
		"key":          key,
		"content_type": mime.String(),
		"bytes":        len(data),
	}).Info("Stored upload")

	return FileURL(s.baseURL, id), nil
}

// Open returns a reader for the file with the given hex ID.
func (s *GridFSStore) Open(ctx context.Context, id string) (*File, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrFileNotFound
	}
	var stream *gridfs.DownloadStream
	err = s.withBucket(func(bucket *gridfs.Bucket) error {
		if err := bucket.SetReadDeadline(deadline(ctx)); err != nil {
			return err
		}
		var err error
		stream, err = bucket.OpenDownloadStream(oid)
		return err
	})
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("gridfs download failed: %w", err)
	}

	file := stream.GetFile()
	out := &File{ReadCloser: stream, Key: file.Name, Size: file.Length, ContentType: "application/octet-stream"}
	if ct, ok := file.Metadata.Lookup("content_type").StringValueOK(); ok {
		out.ContentType = ct
	}
	return out, nil
}

func (s *GridFSStore) withBucket(fn func(bucket *gridfs.Bucket) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.bucket)
}

// deadline returns the deadline of ctx. Without one it returns the zero time,
// which clears whatever deadline an earlier request left on the bucket.
func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
