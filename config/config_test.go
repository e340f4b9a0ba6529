package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("SOME_PRESENT_KEY", "set")

	assert.Equal(t, "set", getEnv("SOME_PRESENT_KEY", "default"))
	assert.Equal(t, "default", getEnv("SOME_ABSENT_KEY", "default"))
}

func TestAppConfigReadsAWSKeys(t *testing.T) {
	t.Setenv("AWS_S3_BUCKET", "evidence-bucket")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("ENVIRONMENT", "production")

	cfg := GetAppConfig()

	assert.Equal(t, "evidence-bucket", cfg.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.Equal(t, "production", cfg.Environment)
}

func TestAppConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AWS_REGION", "")

	cfg := GetAppConfig()

	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.True(t, cfg.Headless)
}
