package temporal

import (
	"context"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"loan-orchestrator/internal/bank"
	"loan-orchestrator/internal/creditbureau"
	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/notify"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	validateIn  *ValidateDocumentsInput
	validateOut *ValidateDocumentsOutput
	riskIn      *CalculateRiskScoreInput
	riskOut     *CalculateRiskScoreOutput
	disburseIn  *DisburseLoanInput
	disburseOut *DisburseLoanOutput

	transitionStates []domain.ApplicationState
	notifyKinds      []notify.Kind
	compensateCalls  int
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("LoanApplicationWorkflow blackbox happy path", func() {
	It("validates, scores, waits for approval, disburses, and completes with expected output", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		store := newFakeStore()
		bureau := &fakeBureau{report: creditbureau.CreditReport{CreditScore: 780, MonthlyDebt: 400}}
		bankClient := &fakeBank{transferResult: bank.TransferResult{Status: bank.TransferSuccess}}
		notifier := &fakeNotifier{}
		acts := newTestActivities(store, bureau, bankClient, notifier)

		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			// The abandoned FollowUpWorkflow child also runs inline in the
			// test environment; keep its activities out of the parent trace.
			if strings.HasPrefix(info.WorkflowExecution.ID, "followup-") {
				return
			}
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "ValidateDocumentsActivity":
				var in ValidateDocumentsInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.validateIn = &in
				trace.mu.Unlock()
			case "CalculateRiskScoreActivity":
				var in CalculateRiskScoreInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.riskIn = &in
				trace.mu.Unlock()
			case "DisburseLoanActivity":
				var in DisburseLoanInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.disburseIn = &in
				trace.mu.Unlock()
			case "RecordTransitionActivity":
				var in RecordTransitionInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.transitionStates = append(trace.transitionStates, in.State)
				trace.mu.Unlock()
			case "SendNotificationActivity":
				var in SendNotificationInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.notifyKinds = append(trace.notifyKinds, in.Kind)
				trace.mu.Unlock()
			case "CompensateDisbursementActivity":
				trace.mu.Lock()
				trace.compensateCalls++
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			if strings.HasPrefix(info.WorkflowExecution.ID, "followup-") {
				return
			}
			trace.recordCompleted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "ValidateDocumentsActivity":
				var out ValidateDocumentsOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.validateOut = &out
				trace.mu.Unlock()
			case "CalculateRiskScoreActivity":
				var out CalculateRiskScoreOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.riskOut = &out
				trace.mu.Unlock()
			case "DisburseLoanActivity":
				var out DisburseLoanOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.disburseOut = &out
				trace.mu.Unlock()
			}
		})

		env.RegisterWorkflow(LoanApplicationWorkflow)
		env.RegisterWorkflow(FollowUpWorkflow)
		env.RegisterActivity(acts.ValidateDocumentsActivity)
		env.RegisterActivity(acts.CalculateRiskScoreActivity)
		env.RegisterActivity(acts.DisburseLoanActivity)
		env.RegisterActivity(acts.CompensateDisbursementActivity)
		env.RegisterActivity(acts.SendNotificationActivity)
		env.RegisterActivity(acts.RecordTransitionActivity)
		env.RegisterActivity(acts.RecordCompensationActivity)

		applicationID := "app-happy-blackbox-1"
		app := testApplication(applicationID)

		By("queueing a manager approval one hour into the wait")
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(ApproveSignalName, ApproveSignal{ApprovedBy: "manager-7", Notes: "income verified"})
		}, time.Hour)

		By("triggering the workflow execution")
		env.ExecuteWorkflow(LoanApplicationWorkflow, WorkflowInput{Application: app})

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var wfResult WorkflowResult
		Expect(env.GetWorkflowResult(&wfResult)).To(Succeed())
		Expect(wfResult.ApplicationID).To(Equal(applicationID))
		Expect(wfResult.State).To(Equal(domain.StateDisbursed))
		Expect(wfResult.Summary).To(Equal("DISBURSED"))

		By("validating the activity sequence for the happy path")
		expectedOrder := []string{
			"RecordTransitionActivity",
			"SendNotificationActivity",
			"ValidateDocumentsActivity",
			"RecordTransitionActivity",
			"CalculateRiskScoreActivity",
			"RecordTransitionActivity",
			"RecordTransitionActivity",
			"SendNotificationActivity",
			"RecordTransitionActivity",
			"RecordCompensationActivity",
			"DisburseLoanActivity",
			"RecordTransitionActivity",
			"SendNotificationActivity",
		}
		Expect(trace.startedOrder).To(Equal(expectedOrder))
		Expect(trace.completedOrder).To(Equal(expectedOrder))

		Expect(trace.transitionStates).To(Equal([]domain.ApplicationState{
			domain.StateDocumentValidation,
			domain.StateRiskScoring,
			domain.StateAwaitingApproval,
			domain.StateApproved,
			domain.StateDisbursing,
			domain.StateDisbursed,
		}))
		Expect(trace.notifyKinds).To(Equal([]notify.Kind{
			notify.KindApplicationConfirmation,
			notify.KindApprovalNotification,
			notify.KindDisbursementConfirmed,
		}))
		Expect(trace.compensateCalls).To(Equal(0))

		By("validating each activity input and output")
		Expect(trace.validateIn).ToNot(BeNil())
		Expect(trace.validateIn.Application.ID).To(Equal(applicationID))
		Expect(trace.validateOut).ToNot(BeNil())
		Expect(trace.validateOut.Result.IsValid).To(BeTrue())
		Expect(trace.validateOut.Result.MissingDocuments).To(BeEmpty())

		Expect(trace.riskIn).ToNot(BeNil())
		Expect(trace.riskIn.Application.ID).To(Equal(applicationID))
		Expect(trace.riskOut).ToNot(BeNil())
		Expect(trace.riskOut.Assessment.CreditScore).To(Equal(780))
		Expect(trace.riskOut.Assessment.RiskLevel).To(Equal(domain.RiskLow))

		Expect(trace.disburseIn).ToNot(BeNil())
		Expect(trace.disburseIn.Application.ID).To(Equal(applicationID))
		Expect(trace.disburseOut).ToNot(BeNil())
		Expect(trace.disburseOut.Disbursement.Status).To(Equal(domain.DisbursementCompleted))
		Expect(trace.disburseOut.Disbursement.TransactionID).ToNot(BeEmpty())

		By("validating persisted side effects from activities and workflow")
		store.mu.Lock()
		finalState := store.states[applicationID]
		decision, hasDecision := store.decisions[applicationID]
		risk := store.risks[applicationID]
		disbursement := store.disbursements[applicationID]
		_, hasCompensation := store.compensations[applicationID]
		resolved := store.resolved[applicationID]
		auditSteps := append([]domain.ProcessingStep(nil), store.audit[applicationID]...)
		store.mu.Unlock()

		Expect(finalState).To(Equal(domain.StateDisbursed))
		Expect(hasDecision).To(BeTrue())
		Expect(decision.Status).To(Equal(domain.DecisionApproved))
		Expect(decision.DecidedBy).To(Equal("manager-7"))
		Expect(risk.RiskLevel).To(Equal(domain.RiskLow))
		Expect(disbursement.Status).To(Equal(domain.DisbursementCompleted))
		Expect(disbursement.TransactionID).To(Equal(trace.disburseOut.Disbursement.TransactionID))

		// The undo obligation stays on the books untouched when nothing failed.
		Expect(hasCompensation).To(BeTrue())
		Expect(resolved).To(BeFalse())

		stepNames := make([]string, 0, len(auditSteps))
		for _, s := range auditSteps {
			stepNames = append(stepNames, s.StepName+":"+string(s.Status))
		}
		Expect(stepNames).To(Equal([]string{
			"document_validation:STARTED",
			"document_validation:COMPLETED",
			"risk_scoring:COMPLETED",
			"approval_wait:COMPLETED",
			"disbursement:STARTED",
			"disbursement:COMPLETED",
		}))
	})
})
