package config

import (
	"os"
	"strconv"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	Port        string
	Database    DatabaseConfig
	JWTSecret   string
	Environment string

	// Credentials for the external collaborators. Request-level credentials
	// take precedence over these.
	GeminiAPIKey     string
	SolverAPIKey     string
	ProxyVendorKey   string
	ProxyVendorWSURL string

	// Browser behavior.
	Headless      bool
	ScreenshotDir string

	// Evidence storage.
	S3Bucket string
	S3Region string
}

func GetDatabaseConfig() DatabaseConfig {
	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func GetAppConfig() AppConfig {
	return AppConfig{
		Port:        getEnv("PORT", "8082"),
		Database:    GetDatabaseConfig(),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		SolverAPIKey:     getEnv("TWOCAPTCHA_API_KEY", ""),
		ProxyVendorKey:   getEnv("BROWSER_VENDOR_API_KEY", ""),
		ProxyVendorWSURL: getEnv("BROWSER_VENDOR_WS_URL", ""),

		Headless:      getEnv("BROWSER_HEADLESS", "true") != "false",
		ScreenshotDir: getEnv("SCREENSHOT_DIR", "./static"),

		S3Bucket: getEnv("AWS_S3_BUCKET", ""),
		S3Region: getEnv("AWS_REGION", "us-east-1"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
