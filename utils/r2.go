// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/FFXIVVenues/kino-ki/deathroll"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// TranscriptArchive stores finished match transcripts in a Cloudflare R2 bucket.
type TranscriptArchive struct {
	client *s3.Client
	bucket string
}

// R2Endpoint is the S3-compatible endpoint of an R2 account.
func R2Endpoint(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}

func NewTranscriptArchive(ctx context.Context, accountID, accessKeyID, accessKeySecret, bucket string) (*TranscriptArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(R2Endpoint(accountID))
	})
	return &TranscriptArchive{client: client, bucket: bucket}, nil
}

// TranscriptKey is the object key of a match transcript, grouped by guild and
// month so a guild's history can be listed by prefix.
func TranscriptKey(snap deathroll.Snapshot) string {
	at := snap.UpdatedAt.UTC()
	return fmt.Sprintf("deathrolls/%s/%04d/%02d/%s.json", snap.GuildID, at.Year(), int(at.Month()), snap.ID)
}

// Transcript is the archived form of a match.
type Transcript struct {
	deathroll.Snapshot
	Outcome  string `json:"outcome"`
	WinnerID string `json:"winner_id,omitempty"`
	LoserID  string `json:"loser_id,omitempty"`
}

// NewTranscript summarizes a closed match for archiving.
func NewTranscript(snap deathroll.Snapshot) Transcript {
	t := Transcript{Snapshot: snap, Outcome: string(deathroll.OutcomeIncomplete)}
	if snap.Phase == deathroll.PhaseFinished {
		t.Outcome = string(deathroll.OutcomeCompleted)
		t.LoserID = snap.UserAt(snap.Loser)
		t.WinnerID = snap.UserAt(snap.Loser.Other())
	}
	return t
}

// ArchiveMatch uploads the transcript of snap and returns its object key.
func (a *TranscriptArchive) ArchiveMatch(ctx context.Context, snap deathroll.Snapshot) (string, error) {
	body, err := json.Marshal(NewTranscript(snap))
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	key := TranscriptKey(snap)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	log.Printf("[Archive] ✅ Stored %s", key)
	return key, nil
}
