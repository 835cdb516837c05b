package recordings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

const maxRecordingBytes = 64 << 20 // 64 MiB

// Archiver copies provider-hosted call recordings into our own S3 bucket so
// they survive provider-side retention windows.
type Archiver struct {
	s3Client   *s3.Client
	config     *Config
	httpClient *http.Client
}

// NewArchiver creates a new recording archiver
func NewArchiver(cfg *Config) (*Archiver, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("recording archival is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Recordings] Initialized S3 client for bucket: %s", cfg.BucketName)
	return &Archiver{
		s3Client:   s3Client,
		config:     cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// NewArchiverFromEnv builds an archiver from environment configuration. It
// returns (nil, nil) when archival is disabled so callers can wire it
// optionally.
func NewArchiverFromEnv() (*Archiver, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled() {
		return nil, nil
	}
	return NewArchiver(cfg)
}

// Archive downloads the recording at sourceURL and uploads it to S3. It
// returns the durable URL of the archived object.
func (a *Archiver) Archive(ctx context.Context, userID, callID uint, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build recording request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recording download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read recording body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	objectKey := a.config.GetObjectKey(userID, callID, extensionFor(contentType, sourceURL))

	log.Infof("[Recordings] Archiving call %d -> s3://%s/%s (%d bytes)",
		callID, a.config.BucketName, objectKey, len(body))

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.BucketName),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"source-url": sourceURL,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload recording to S3: %w", err)
	}

	return a.config.ObjectURL(objectKey), nil
}

// extensionFor picks a file extension from the response content type, falling
// back to the source URL path.
func extensionFor(contentType, sourceURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/mpeg", "audio/mp3":
			return ".mp3"
		case "audio/wav", "audio/x-wav":
			return ".wav"
		case "audio/ogg":
			return ".ogg"
		case "audio/mp4", "audio/m4a", "audio/x-m4a":
			return ".m4a"
		}
	}
	if ext := path.Ext(strings.SplitN(sourceURL, "?", 2)[0]); ext != "" {
		return ext
	}
	return ".mp3"
}
