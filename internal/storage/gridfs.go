package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const contentTypeKey = "contentType"

// GridFSStore keeps blobs in a MongoDB GridFS bucket. Blob ids are the hex
// form of the file ObjectID.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(db *mongo.Database, bucketName string) (*GridFSStore, error) {
	if db == nil {
		return nil, ErrUnavailable
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("%w: open bucket %s: %w", ErrUnavailable, bucketName, err)
	}
	log.WithFields(log.Fields{"prefix": "storage", "bucket": bucketName}).Info("GridFS bucket initialized")
	return &GridFSStore{bucket: bucket}, nil
}

func (g *GridFSStore) Upload(ctx context.Context, r io.Reader, filename, contentType string, metadata map[string]string) (string, error) {
	if g == nil || g.bucket == nil {
		return "", ErrUnavailable
	}

	meta := bson.M{contentTypeKey: contentType}
	for k, v := range metadata {
		meta[k] = v
	}

	id := primitive.NewObjectID()
	stream, err := g.bucket.OpenUploadStreamWithID(id, filename, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return "", fmt.Errorf("%w: open upload %s: %w", ErrWrite, filename, err)
	}
	if _, err := io.Copy(stream, contextReader{ctx: ctx, r: r}); err != nil {
		_ = stream.Abort()
		return "", fmt.Errorf("%w: upload %s: %w", ErrWrite, filename, err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("%w: finish %s: %w", ErrWrite, filename, err)
	}
	return id.Hex(), nil
}

func (g *GridFSStore) Download(ctx context.Context, id string) (*Download, error) {
	if g == nil || g.bucket == nil {
		return nil, ErrUnavailable
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := g.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, id, err)
	}

	file := stream.GetFile()
	meta := map[string]string{}
	if len(file.Metadata) > 0 {
		if err := bson.Unmarshal(file.Metadata, &meta); err != nil {
			log.WithFields(log.Fields{"prefix": "storage", "blob": id}).WithError(err).Warn("unreadable blob metadata")
		}
	}
	contentType := meta[contentTypeKey]
	delete(meta, contentTypeKey)

	return NewDownload(BlobInfo{
		ID:          id,
		Filename:    file.Name,
		ContentType: contentType,
		Size:        file.Length,
		Metadata:    meta,
		UploadedAt:  file.UploadDate,
	}, stream), nil
}

func (g *GridFSStore) Delete(ctx context.Context, id string) error {
	if g == nil || g.bucket == nil {
		return ErrUnavailable
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if err := g.bucket.DeleteContext(ctx, oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrDelete, id, err)
	}
	return nil
}

func (g *GridFSStore) Exists(ctx context.Context, id string) (bool, error) {
	if g == nil || g.bucket == nil {
		return false, ErrUnavailable
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	cursor, err := g.bucket.FindContext(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, fmt.Errorf("%w: find %s: %w", ErrUnavailable, id, err)
	}
	defer cursor.Close(ctx)
	return cursor.Next(ctx), cursor.Err()
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
