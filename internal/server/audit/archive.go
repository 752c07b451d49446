// Package audit archives moderation verdicts of flagged messages to S3.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/leroytan/the-website-sub000/internal/server/config"
	"github.com/leroytan/the-website-sub000/internal/server/models"
	"github.com/leroytan/the-website-sub000/internal/server/moderation"
)

// Putter is the part of *s3.Client the archive needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Record is the archived summary. It holds the redacted text only.
type Record struct {
	MessageID       string    `json:"message_id"`
	ChatID          string    `json:"chat_id"`
	SenderID        string    `json:"sender_id"`
	FilteredContent string    `json:"filtered_content"`
	Detected        []string  `json:"detected"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning,omitempty"`
	Provider        string    `json:"provider"`
	CreatedAt       time.Time `json:"created_at"`
}

type Archive struct {
	client Putter
	bucket string
}

func NewArchive(client Putter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// NewS3Client builds an S3 client for the configured endpoint (MinIO in
// development) using static credentials.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// ObjectKey places a record under moderation/YYYY/MM/DD/<message id>.json.
func ObjectKey(messageID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("moderation/%04d/%02d/%02d/%s.json", at.Year(), int(at.Month()), at.Day(), messageID)
}

// Record stores the verdict of a flagged message. Unflagged messages are
// ignored.
func (a *Archive) Record(ctx context.Context, msg *models.Message, v moderation.Verdict) error {
	if !msg.IsFlagged || msg.FilteredContent == nil {
		return nil
	}

	rec := Record{
		MessageID:       msg.ID,
		ChatID:          msg.ChatID,
		SenderID:        msg.SenderID,
		FilteredContent: *msg.FilteredContent,
		Detected:        v.Detected,
		Confidence:      v.Confidence,
		Reasoning:       v.Reasoning,
		Provider:        v.Provider,
		CreatedAt:       msg.CreatedAt,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(msg.ID, msg.CreatedAt)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive verdict %s: %w", msg.ID, err)
	}
	return nil
}
