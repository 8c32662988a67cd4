// Package events turns object-storage bucket notifications into loan
// application intake events. Batch submitters drop one JSON application per
// object into the intake bucket; each object-created event starts one
// orchestration.
package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

type IntakeEvent struct {
	ApplicationID string
	Filename      string
	ObjectKey     string
	EventName     string
}

type IntakeEventSource interface {
	Run(ctx context.Context, handler func(context.Context, IntakeEvent) error) error
}

type MinioIntakeEventSource struct {
	client *minio.Client
	bucket string
	prefix string
	suffix string
}

func NewMinioIntakeEventSource(client *minio.Client, bucket string, prefix string, suffix string) *MinioIntakeEventSource {
	return &MinioIntakeEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
	}
}

func (s *MinioIntakeEventSource) Run(ctx context.Context, handler func(context.Context, IntakeEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				objectKey, err := decodeObjectKey(record.S3.Object.Key)
				if err != nil {
					continue
				}
				applicationID, filename, err := ParseObjectKey(objectKey)
				if err != nil {
					continue
				}
				event := IntakeEvent{
					ApplicationID: applicationID,
					Filename:      filename,
					ObjectKey:     objectKey,
					EventName:     record.EventName,
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// ParseObjectKey splits an intake object key of the form
// applicationID/filename.
func ParseObjectKey(objectKey string) (string, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("object key %q does not match application_id/filename", objectKey)
	}
	applicationID := strings.TrimSpace(parts[0])
	filename := strings.TrimSpace(parts[1])
	if applicationID == "" || filename == "" {
		return "", "", fmt.Errorf("object key %q missing application id or filename", objectKey)
	}
	return applicationID, filename, nil
}
