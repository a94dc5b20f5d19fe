package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrust/medvault"
)

// mockS3Client implements s3Client for testing
type mockS3Client struct {
	putObjectFunc func(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	bucket        string
	key           string
	body          []byte
}

func (m *mockS3Client) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	m.bucket = *params.Bucket
	m.key = *params.Key
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
		m.body = data
	}
	return &awss3.PutObjectOutput{}, nil
}

func TestArchiverLogEvent(t *testing.T) {
	mockClient := &mockS3Client{}
	archiver := &Archiver{client: mockClient, bucket: "audit-bucket"}

	event := medvault.AuditEvent{
		EventType: medvault.EventProofVerified,
		ActorType: medvault.ActorVerifier,
		ActorID:   "hospital-a",
		Action:    "verify",
		Outcome:   medvault.OutcomeSuccess,
		Severity:  medvault.SeverityInfo,
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, archiver.LogEvent(context.Background(), event))

	assert.Equal(t, "audit-bucket", mockClient.bucket)
	assert.True(t, strings.HasPrefix(mockClient.key, "audit/2026-03-14/"))
	assert.True(t, strings.HasSuffix(mockClient.key, ".json"))

	var stored medvault.AuditEvent
	require.NoError(t, json.Unmarshal(mockClient.body, &stored))
	assert.Equal(t, medvault.EventProofVerified, stored.EventType)
	assert.Equal(t, "hospital-a", stored.ActorID)
}

func TestArchiverLogSecurityViolation(t *testing.T) {
	mockClient := &mockS3Client{}
	archiver := &Archiver{client: mockClient, bucket: "audit-bucket", prefix: "prod"}

	violation := medvault.SecurityViolation{
		ViolationType: "unauthorized_proof_revocation",
		Severity:      medvault.SeverityCritical,
		ActorID:       "patient-002",
		Timestamp:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, archiver.LogSecurityViolation(context.Background(), violation))

	assert.True(t, strings.HasPrefix(mockClient.key, "prod/violations/2026-03-14/"))

	var stored medvault.SecurityViolation
	require.NoError(t, json.Unmarshal(mockClient.body, &stored))
	assert.Equal(t, "unauthorized_proof_revocation", stored.ViolationType)
}

func TestArchiverSetsTimestampWhenMissing(t *testing.T) {
	mockClient := &mockS3Client{}
	archiver := &Archiver{client: mockClient, bucket: "audit-bucket"}

	require.NoError(t, archiver.LogEvent(context.Background(), medvault.AuditEvent{
		EventType: medvault.EventKeyStored,
	}))

	var stored medvault.AuditEvent
	require.NoError(t, json.Unmarshal(mockClient.body, &stored))
	assert.False(t, stored.Timestamp.IsZero())
}

func TestArchiverUploadError(t *testing.T) {
	mockClient := &mockS3Client{
		putObjectFunc: func(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
			return nil, errors.New("S3 upload failed")
		},
	}
	archiver := &Archiver{client: mockClient, bucket: "audit-bucket"}

	err := archiver.LogEvent(context.Background(), medvault.AuditEvent{EventType: medvault.EventKeyStored})
	assert.Error(t, err)
}

func TestNewArchiverRequiresBucket(t *testing.T) {
	_, err := NewArchiver(context.Background(), Config{})
	assert.ErrorIs(t, err, medvault.ErrInvalidConfiguration)
}
