package main

import (
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"loan-orchestrator/internal/bank"
	"loan-orchestrator/internal/config"
	"loan-orchestrator/internal/creditbureau"
	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/notify"
	"loan-orchestrator/internal/storage"
	appTemporal "loan-orchestrator/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	bureau := creditbureau.NewHTTPClient(cfg.CreditBureauURL, cfg.CreditBureauAPIKey)
	bankClient := bank.NewHTTPClient(cfg.BankAPIURL, cfg.BankAPIKey, time.Duration(cfg.BankTimeoutSec)*time.Second)
	notifier := notify.NewHTTPClient(cfg.NotifyWebhookURL, 5*time.Second)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	activities := &appTemporal.Activities{
		Store:            store,
		Bureau:           bureau,
		Bank:             bankClient,
		Notifier:         notifier,
		DocumentPolicy:   domain.DefaultDocumentPolicy(),
		RiskPolicy:       domain.DefaultRiskPolicy(),
		BureauTimeout:    time.Duration(cfg.CreditBureauTimeoutSec) * time.Second,
		PendingPollDelay: time.Duration(cfg.PendingPollDelaySec) * time.Second,
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.LoanApplicationWorkflow, workflow.RegisterOptions{Name: appTemporal.LoanApplicationWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.FollowUpWorkflow, workflow.RegisterOptions{Name: appTemporal.FollowUpWorkflowName})
	w.RegisterActivity(activities.ValidateDocumentsActivity)
	w.RegisterActivity(activities.CalculateRiskScoreActivity)
	w.RegisterActivity(activities.DisburseLoanActivity)
	w.RegisterActivity(activities.CompensateDisbursementActivity)
	w.RegisterActivity(activities.SendNotificationActivity)
	w.RegisterActivity(activities.RecordTransitionActivity)
	w.RegisterActivity(activities.RecordCompensationActivity)

	log.Printf("worker running on task queue %s", cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker stopped with error: %v", err)
	}
}
