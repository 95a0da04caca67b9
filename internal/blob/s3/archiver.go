package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// Archiver implements domain.AttestationArchiver. Each settled call gets one
// JSON object under attestations/<callID>.json so auditors can verify the
// signature chain without database access.
type Archiver struct {
	client *s3.Client
	bucket string
}

// NewArchiver creates an Archiver writing to the given client's bucket.
func NewArchiver(c *Client) *Archiver {
	return &Archiver{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// attestationRecord is the archived JSON document.
type attestationRecord struct {
	CallID     int64     `json:"call_id"`
	Outcome    string    `json:"outcome"`
	Price      float64   `json:"price"`
	Signature  string    `json:"signature"`
	PublicKey  string    `json:"public_key"`
	TxRef      string    `json:"tx_ref"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ArchiveAttestation uploads the attestation record for a settled call.
func (a *Archiver) ArchiveAttestation(ctx context.Context, outcome domain.Outcome, publicKeyHex string) error {
	record := attestationRecord{
		CallID:     outcome.CallID,
		Outcome:    string(outcome.Value),
		Price:      outcome.Price,
		Signature:  outcome.SignatureHex,
		PublicKey:  publicKeyHex,
		TxRef:      outcome.TxRef,
		ArchivedAt: time.Now().UTC(),
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal attestation record: %w", err)
	}

	key := fmt.Sprintf("attestations/%d.json", outcome.CallID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put attestation %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AttestationArchiver = (*Archiver)(nil)
