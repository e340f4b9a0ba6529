package services

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"jobrunner/config"
)

// EvidenceStore uploads run screenshots to S3 when a bucket is configured.
// Without one the screenshots simply stay on local disk; storage problems
// never affect the run outcome.
type EvidenceStore struct {
	s3Client *s3.S3
	bucket   string
	region   string
}

func NewEvidenceStore(cfg config.AppConfig) (*EvidenceStore, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if accessKey == "" || secretKey == "" || cfg.S3Region == "" || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("AWS credentials not configured")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	return &EvidenceStore{
		s3Client: s3.New(sess),
		bucket:   cfg.S3Bucket,
		region:   cfg.S3Region,
	}, nil
}

// StoreScreenshot uploads a local screenshot under runs/<runID>/ and returns
// the S3 key. On any failure the local path is returned instead.
func (s *EvidenceStore) StoreScreenshot(runID, localPath string) string {
	if s == nil || s.s3Client == nil {
		return localPath
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		log.Printf("Could not read screenshot %s: %v", localPath, err)
		return localPath
	}

	key := fmt.Sprintf("runs/%s/%s", runID, filepath.Base(localPath))
	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		log.Printf("Failed to upload screenshot to S3: %v", err)
		return localPath
	}

	os.Remove(localPath)
	log.Printf("Screenshot uploaded to S3 with key: %s", key)
	return key
}
