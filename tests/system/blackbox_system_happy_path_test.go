//go:build system

package system_test

import (
	"context"
	"database/sql"
	"os"
	"strings"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"loan-orchestrator/internal/domain"
	appTemporal "loan-orchestrator/internal/temporal"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())
	})

	It("submits an application over HTTP, approves it, and disburses via a real worker", func() {
		apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")

		By("submitting a complete application exactly like an applicant")
		submitted, err := submitApplication(apiBaseURL, map[string]any{
			"applicant_name": "Jane Doe",
			"email":          "jane@example.com",
			"phone":          "+61 400 000 000",
			"loan_amount":    25000,
			"purpose":        "PERSONAL",
			"annual_income":  75000,
			"bank_account":   "AU-001-1234",
			"documents":      []string{"ID_CARD", "PROOF_OF_INCOME"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(submitted.ApplicationID).ToNot(BeEmpty())
		Expect(submitted.WorkflowID).ToNot(BeEmpty())
		Expect(submitted.State).To(Equal(domain.StateSubmitted))

		By("waiting until the instance suspends for a decision")
		Eventually(func() domain.ApplicationState {
			status, statusErr := getStatus(apiBaseURL, submitted.ApplicationID)
			Expect(statusErr).ToNot(HaveOccurred())
			Expect(status.State).ToNot(Equal(domain.StateRejected))
			Expect(status.State).ToNot(Equal(domain.StateExpired))
			return status.State
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StateAwaitingApproval))

		By("reading the risk assessment while suspended")
		risk, err := getRisk(apiBaseURL, submitted.ApplicationID)
		Expect(err).ToNot(HaveOccurred())
		Expect(risk.CreditScore).To(BeNumerically(">", 0))
		Expect(risk.RiskLevel).ToNot(Equal(domain.RiskVeryHigh))

		By("finding the application on the pending-approval worklist")
		pending, err := getPendingApprovals(apiBaseURL)
		Expect(err).ToNot(HaveOccurred())
		pendingIDs := make([]string, 0, len(pending.Items))
		for _, item := range pending.Items {
			pendingIDs = append(pendingIDs, item.Application.ID)
		}
		Expect(pendingIDs).To(ContainElement(submitted.ApplicationID))

		By("approving as a loan manager")
		Expect(sendDecision(apiBaseURL, submitted.ApplicationID, "approve", map[string]any{
			"decided_by": "system-test-manager",
			"notes":      "approved by system test",
		})).To(Succeed())

		By("polling application status until disbursement")
		Eventually(func() domain.ApplicationState {
			status, statusErr := getStatus(apiBaseURL, submitted.ApplicationID)
			Expect(statusErr).ToNot(HaveOccurred())
			Expect(status.State).ToNot(Equal(domain.StateRejected))
			Expect(status.State).ToNot(Equal(domain.StateExpired))
			return status.State
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StateDisbursed))

		By("checking the processing history endpoint")
		history, err := getHistory(apiBaseURL, submitted.ApplicationID)
		Expect(err).ToNot(HaveOccurred())
		stepNames := make([]string, 0, len(history.History))
		for _, step := range history.History {
			stepNames = append(stepNames, step.StepName)
		}
		Expect(stepNames).To(ContainElement("document_validation"))
		Expect(stepNames).To(ContainElement("risk_scoring"))
		Expect(stepNames).To(ContainElement("approval_wait"))
		Expect(stepNames).To(ContainElement("disbursement"))

		By("validating activity inputs and outputs from Temporal workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		trace, err := collectActivityTrace(context.Background(), temporalClient, submitted.WorkflowID)
		Expect(err).ToNot(HaveOccurred())

		Expect(trace.ScheduledOrder).To(Equal(cfg.ExpectedActivityOrder))
		Expect(trace.CompletedOrder).To(Equal(cfg.ExpectedActivityOrder))

		validateIn := trace.Inputs["ValidateDocumentsActivity"].(appTemporal.ValidateDocumentsInput)
		Expect(validateIn.Application.ID).To(Equal(submitted.ApplicationID))

		validateOut := trace.Outputs["ValidateDocumentsActivity"].(appTemporal.ValidateDocumentsOutput)
		Expect(validateOut.Result.IsValid).To(BeTrue())
		Expect(validateOut.Result.MissingDocuments).To(BeEmpty())

		riskOut := trace.Outputs["CalculateRiskScoreActivity"].(appTemporal.CalculateRiskScoreOutput)
		Expect(riskOut.Assessment.CreditScore).To(Equal(risk.CreditScore))
		Expect(riskOut.Assessment.RiskLevel).To(Equal(risk.RiskLevel))

		disburseOut := trace.Outputs["DisburseLoanActivity"].(appTemporal.DisburseLoanOutput)
		Expect(disburseOut.Disbursement.Status).To(Equal(domain.DisbursementCompleted))
		Expect(disburseOut.Disbursement.TransactionID).ToNot(BeEmpty())

		signalNames, err := collectWorkflowSignalNames(context.Background(), temporalClient, submitted.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(signalNames).To(ContainElement(appTemporal.ApproveSignalName))

		By("verifying audit and disbursement records in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.Ping()).To(Succeed())

		auditSteps, err := fetchStringRows(db, `SELECT step_name FROM audit_log WHERE application_id = $1 ORDER BY id`, submitted.ApplicationID)
		Expect(err).ToNot(HaveOccurred())
		Expect(auditSteps).To(ContainElement("document_validation"))
		Expect(auditSteps).To(ContainElement("risk_scoring"))
		Expect(auditSteps).To(ContainElement("approval_wait"))
		Expect(auditSteps).To(ContainElement("disbursement"))

		states, err := fetchStringRows(db, `SELECT state FROM loan_applications WHERE id = $1`, submitted.ApplicationID)
		Expect(err).ToNot(HaveOccurred())
		Expect(states).To(Equal([]string{string(domain.StateDisbursed)}))

		disbursementStatuses, err := fetchStringRows(db, `SELECT status FROM disbursements WHERE application_id = $1`, submitted.ApplicationID)
		Expect(err).ToNot(HaveOccurred())
		Expect(disbursementStatuses).To(Equal([]string{string(domain.DisbursementCompleted)}))
	})
})
