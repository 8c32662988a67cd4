package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"loan-orchestrator/internal/config"
	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/events"
	"loan-orchestrator/internal/storage"
	appTemporal "loan-orchestrator/internal/temporal"
)

// Bulk intake: partner systems drop one JSON application per object into the
// intake bucket; every object-created event starts one orchestration.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	source := events.NewMinioIntakeEventSource(minioClient, cfg.IntakeBucket, "", ".json")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("event-handler listening for intake events on bucket=%s", cfg.IntakeBucket)
	err = source.Run(ctx, func(parent context.Context, event events.IntakeEvent) error {
		execCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		app, err := fetchApplication(execCtx, minioClient, cfg.IntakeBucket, event)
		if err != nil {
			log.Printf("skipping intake object %s: %v", event.ObjectKey, err)
			return nil
		}

		if err := store.CreateSubmittedApplication(execCtx, app); err != nil {
			return fmt.Errorf("persist application %s: %w", app.ID, err)
		}

		workflowID := fmt.Sprintf("%s-%s", cfg.WorkflowIDPrefix, app.ID)
		_, startErr := temporalClient.ExecuteWorkflow(execCtx, client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: cfg.TemporalTaskQueue,
		}, appTemporal.LoanApplicationWorkflowName, appTemporal.WorkflowInput{
			Application:     app,
			ApprovalTimeout: time.Duration(cfg.ApprovalTimeoutHours) * time.Hour,
			FollowUp: appTemporal.FollowUpPolicy{
				Interval:      time.Duration(cfg.FollowUpIntervalHours) * time.Hour,
				MaxIterations: cfg.FollowUpMaxIterations,
			},
		})
		if startErr != nil {
			var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(startErr, &alreadyStarted) {
				log.Printf("workflow already started for object=%s workflow_id=%s", event.ObjectKey, workflowID)
				return nil
			}
			return fmt.Errorf("start workflow for object %s: %w", event.ObjectKey, startErr)
		}

		log.Printf("started workflow workflow_id=%s object=%s", workflowID, event.ObjectKey)
		return nil
	})
	if err != nil {
		log.Fatalf("event-handler stopped with error: %v", err)
	}
}

func fetchApplication(ctx context.Context, minioClient *minio.Client, bucket string, event events.IntakeEvent) (domain.LoanApplication, error) {
	obj, err := minioClient.GetObject(ctx, bucket, event.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		return domain.LoanApplication{}, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	var app domain.LoanApplication
	if err := json.NewDecoder(obj).Decode(&app); err != nil {
		return domain.LoanApplication{}, fmt.Errorf("decode application json: %w", err)
	}

	// The object key is authoritative for the business key.
	if app.ID != "" && app.ID != event.ApplicationID {
		return domain.LoanApplication{}, fmt.Errorf("application id %q does not match object key %q", app.ID, event.ObjectKey)
	}
	app.ID = event.ApplicationID
	if strings.TrimSpace(app.ApplicantName) == "" || app.LoanAmount <= 0 {
		return domain.LoanApplication{}, fmt.Errorf("application is missing applicant name or amount")
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	return app, nil
}
