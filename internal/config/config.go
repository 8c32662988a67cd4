package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultHTTPPort         = "8080"
	defaultTemporalAddress  = "localhost:7233"
	defaultTemporalNS       = "default"
	defaultTaskQueue        = "loan-application-task-queue"
	defaultMinioEndpoint    = "localhost:9000"
	defaultMinioBucket      = "loan-documents"
	defaultIntakeBucket     = "loan-intake"
	defaultApprovalHours    = 168 // 7 days
	defaultFollowUpHours    = 720 // 30 days
	defaultFollowUpMaxIters = 12
	defaultBankTimeoutSec   = 15
	defaultBureauTimeoutSec = 10
	defaultPollDelaySec     = 30
)

type Config struct {
	HTTPPort          string
	PostgresDSN       string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	CreditBureauURL        string
	CreditBureauAPIKey     string
	CreditBureauTimeoutSec int

	BankAPIURL     string
	BankAPIKey     string
	BankTimeoutSec int
	// PendingPollDelaySec is how long a PENDING bank transfer is given to
	// settle before the single status poll.
	PendingPollDelaySec int

	NotifyWebhookURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	IntakeBucket   string
	MinioUseSSL    bool

	WorkflowIDPrefix string
	// ApprovalTimeoutHours bounds the AWAITING_APPROVAL suspension; the
	// application expires when no decision arrives within the window.
	ApprovalTimeoutHours  int
	FollowUpIntervalHours int
	FollowUpMaxIterations int
	AllowedUploadBytes    int64
}

func Load() (Config, error) {
	cfg := Config{
		HTTPPort:               getenv("HTTP_PORT", defaultHTTPPort),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		TemporalAddress:        getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace:      getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue:      getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		CreditBureauURL:        os.Getenv("CREDIT_BUREAU_URL"),
		CreditBureauAPIKey:     os.Getenv("CREDIT_BUREAU_API_KEY"),
		CreditBureauTimeoutSec: getenvInt("CREDIT_BUREAU_TIMEOUT_SEC", defaultBureauTimeoutSec),
		BankAPIURL:             os.Getenv("BANK_API_URL"),
		BankAPIKey:             os.Getenv("BANK_API_KEY"),
		BankTimeoutSec:         getenvInt("BANK_TIMEOUT_SEC", defaultBankTimeoutSec),
		PendingPollDelaySec:    getenvInt("BANK_PENDING_POLL_DELAY_SEC", defaultPollDelaySec),
		NotifyWebhookURL:       os.Getenv("NOTIFY_WEBHOOK_URL"),
		MinioEndpoint:          getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:         os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:         os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:            getenv("MINIO_BUCKET", defaultMinioBucket),
		IntakeBucket:           getenv("INTAKE_BUCKET", defaultIntakeBucket),
		MinioUseSSL:            getenvBool("MINIO_USE_SSL", false),
		WorkflowIDPrefix:       getenv("WORKFLOW_ID_PREFIX", "loan-app"),
		ApprovalTimeoutHours:   getenvInt("APPROVAL_TIMEOUT_HOURS", defaultApprovalHours),
		FollowUpIntervalHours:  getenvInt("FOLLOWUP_INTERVAL_HOURS", defaultFollowUpHours),
		FollowUpMaxIterations:  getenvInt("FOLLOWUP_MAX_ITERATIONS", defaultFollowUpMaxIters),
		AllowedUploadBytes:     int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
