package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ParseGCSURI splits "gs://bucket/object/name" into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("invalid GCS URI %q: must start with gs://", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("invalid GCS URI %q: expected gs://bucket/object", uri)
	}
	return bucket, object, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// UploadFileAtomically copies a local file to a GCS object only if the object
// doesn't already exist. An existing object is not a failure; the returned
// bool reports whether anything was written.
func UploadFileAtomically(ctx context.Context, client *storage.Client, uri, localPath string) (bool, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return false, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return false, fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer f.Close()

	logCtx := slog.With("bucket", bucket, "object", object)
	writer := client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"

	if _, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			logCtx.Warn("Object already exists. Skipping upload.")
			return false, nil
		}
		return false, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			logCtx.Warn("Object already exists. Skipping upload.")
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	logCtx.Info("Uploaded outcome log.", "source", localPath)
	return true, nil
}

// UploadLog creates a storage client, uploads the file and closes the client.
func UploadLog(ctx context.Context, uri, localPath string) (bool, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()
	return UploadFileAtomically(ctx, client, uri, localPath)
}
