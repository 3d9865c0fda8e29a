package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel/attribute"
)

// ObjectRemote stores snapshots as JSON objects in an S3-compatible bucket.
type ObjectRemote struct {
	client *minio.Client
	bucket string
}

// NewObjectRemote constructs a Remote over a bucket.
func NewObjectRemote(client *minio.Client, bucket string) *ObjectRemote {
	return &ObjectRemote{client: client, bucket: bucket}
}

// ObjectKey is the object path holding a user's live snapshot.
func ObjectKey(userID string) string {
	return fmt.Sprintf("progress/%s.json", userID)
}

// Fetch implements Remote.
func (o *ObjectRemote) Fetch(ctx context.Context, userID string) (payload []byte, err error) {
	ctx, span := tracer.Start(ctx, "object.fetch")
	span.SetAttributes(attribute.String("user", userID), attribute.String("bucket", o.bucket))
	defer func(start time.Time) {
		observe("object", "fetch", start, err)
		endSpan(span, err)
	}(time.Now())

	obj, err := o.client.GetObject(ctx, o.bucket, ObjectKey(userID), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(err)
	}
	defer obj.Close()

	payload, err = io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(err)
	}
	return payload, nil
}

// Upsert implements Remote.
func (o *ObjectRemote) Upsert(ctx context.Context, userID string, payload []byte) (err error) {
	ctx, span := tracer.Start(ctx, "object.upsert")
	span.SetAttributes(attribute.String("user", userID), attribute.String("bucket", o.bucket))
	defer func(start time.Time) {
		observe("object", "upsert", start, err)
		endSpan(span, err)
	}(time.Now())

	_, err = o.client.PutObject(ctx, o.bucket, ObjectKey(userID), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

func mapObjectError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}
