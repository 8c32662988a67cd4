package temporal

import (
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/notify"
)

const (
	LoanApplicationWorkflowName = "LoanApplicationWorkflow"
	FollowUpWorkflowName        = "FollowUpWorkflow"
)

const (
	defaultApprovalTimeout       = 7 * 24 * time.Hour
	defaultFollowUpInterval      = 30 * 24 * time.Hour
	defaultFollowUpMaxIterations = 12
)

type WorkflowInput struct {
	Application domain.LoanApplication
	// ApprovalTimeout bounds the AWAITING_APPROVAL suspension.
	ApprovalTimeout time.Duration
	FollowUp        FollowUpPolicy
}

type FollowUpPolicy struct {
	Interval      time.Duration
	MaxIterations int
}

type WorkflowResult struct {
	ApplicationID string
	State         domain.ApplicationState
	Summary       string
}

type FollowUpInput struct {
	State     domain.FollowUpState
	Recipient string
	Policy    FollowUpPolicy
}

// workflowState is the single-writer view of one application instance.
// Queries read it; only the workflow goroutine mutates it.
type workflowState struct {
	state         domain.ApplicationState
	application   domain.LoanApplication
	risk          *domain.RiskAssessment
	decision      *domain.ApprovalDecision
	disbursement  *domain.LoanDisbursement
	history       []domain.ProcessingStep
	compensations []domain.CompensationAction
}

// LoanApplicationWorkflow runs one application end to end:
//
//	SUBMITTED → DOCUMENT_VALIDATION → RISK_SCORING → AWAITING_APPROVAL →
//	APPROVED → DISBURSING → DISBURSED | COMPENSATING → REJECTED
//
// with terminal shortcuts to REJECTED (invalid documents, very-high risk,
// reject signal) and EXPIRED (approval window elapsed).
func LoanApplicationWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	// Version gate for safe evolution of in-flight instances.
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "loan-application.v", workflow.DefaultVersion, currentVersion)

	logger := workflow.GetLogger(ctx)
	app := input.Application

	state := &workflowState{
		state:       domain.StateSubmitted,
		application: app,
		history:     make([]domain.ProcessingStep, 0, 8),
	}
	if err := registerQueryHandlers(ctx, state); err != nil {
		return WorkflowResult{}, err
	}

	approvalTimeout := input.ApprovalTimeout
	if approvalTimeout <= 0 {
		approvalTimeout = defaultApprovalTimeout
	}

	// SUBMITTED → DOCUMENT_VALIDATION
	if err := applyTransition(ctx, state, transition{
		State: domain.StateDocumentValidation,
		Step:  domain.ProcessingStep{StepName: "document_validation", Status: domain.StepStarted},
	}); err != nil {
		return WorkflowResult{}, err
	}
	sendNotification(ctx, app.ID, app.Email, notify.KindApplicationConfirmation,
		"Loan application received",
		"Your application has been received and is being processed.")

	var validated ValidateDocumentsOutput
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyValidateDocuments),
		(*Activities).ValidateDocumentsActivity,
		ValidateDocumentsInput{Application: app},
	).Get(ctx, &validated); err != nil {
		return WorkflowResult{}, err
	}

	if !validated.Result.IsValid {
		// Fail-fast business rule: no risk scoring is attempted.
		reason := "Invalid documents"
		if err := applyTransition(ctx, state, transition{
			State: domain.StateRejected,
			Step: domain.ProcessingStep{
				StepName: "document_validation",
				Status:   domain.StepFailed,
				Details:  fmt.Sprintf("missing documents: %v", validated.Result.MissingDocuments),
			},
			RejectionReason: &reason,
			Detail:          map[string]any{"issues": validated.Result.Issues},
		}); err != nil {
			return WorkflowResult{}, err
		}
		sendNotification(ctx, app.ID, app.Email, notify.KindRejectionNotification,
			"Loan application rejected",
			fmt.Sprintf("Your application was rejected: %s.", reason))
		return terminal(state, "REJECTED - Invalid documents"), nil
	}

	if err := applyTransition(ctx, state, transition{
		State: domain.StateRiskScoring,
		Step:  domain.ProcessingStep{StepName: "document_validation", Status: domain.StepCompleted},
	}); err != nil {
		return WorkflowResult{}, err
	}

	// DOCUMENT_VALIDATION → RISK_SCORING
	var scored CalculateRiskScoreOutput
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyCalculateRiskScore),
		(*Activities).CalculateRiskScoreActivity,
		CalculateRiskScoreInput{Application: app},
	).Get(ctx, &scored); err != nil {
		// Retries are exhausted and nothing irreversible happened yet;
		// abort the instance.
		recordStepBestEffort(ctx, state, domain.ProcessingStep{
			StepName: "risk_scoring",
			Status:   domain.StepFailed,
			Details:  err.Error(),
		})
		return WorkflowResult{}, fmt.Errorf("risk scoring failed: %w", err)
	}
	state.risk = &scored.Assessment

	if scored.Assessment.RiskLevel == domain.RiskVeryHigh {
		reason := "High risk score"
		if err := applyTransition(ctx, state, transition{
			State: domain.StateRejected,
			Step: domain.ProcessingStep{
				StepName: "risk_scoring",
				Status:   domain.StepFailed,
				Details:  fmt.Sprintf("risk level %s", scored.Assessment.RiskLevel),
			},
			RejectionReason: &reason,
			Detail:          map[string]any{"risk_factors": scored.Assessment.RiskFactors},
		}); err != nil {
			return WorkflowResult{}, err
		}
		sendNotification(ctx, app.ID, app.Email, notify.KindRejectionNotification,
			"Loan application rejected",
			"Your application was rejected after risk assessment.")
		return terminal(state, "REJECTED - High risk score"), nil
	}

	// RISK_SCORING → AWAITING_APPROVAL
	if err := applyTransition(ctx, state, transition{
		State: domain.StateAwaitingApproval,
		Step: domain.ProcessingStep{
			StepName: "risk_scoring",
			Status:   domain.StepCompleted,
			Details:  fmt.Sprintf("risk level %s, credit score %d", scored.Assessment.RiskLevel, scored.Assessment.CreditScore),
		},
	}); err != nil {
		return WorkflowResult{}, err
	}

	decision, timedOut, cancelled := awaitDecision(ctx, approvalTimeout)

	if cancelled {
		logger.Info("workflow cancelled while awaiting approval", "application_id", app.ID)
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		reason := "Cancelled"
		_ = applyTransition(dctx, state, transition{
			State: domain.StateRejected,
			Step:  domain.ProcessingStep{StepName: "approval_wait", Status: domain.StepFailed, Details: "cancelled by operator"},
			RejectionReason: &reason,
		})
		sendNotification(dctx, app.ID, app.Email, notify.KindRejectionNotification,
			"Loan application cancelled", "Your application was cancelled.")
		return terminal(state, "REJECTED - Cancelled"), nil
	}

	if timedOut {
		reason := "No decision within window"
		if err := applyTransition(ctx, state, transition{
			State: domain.StateExpired,
			Step: domain.ProcessingStep{
				StepName: "approval_wait",
				Status:   domain.StepFailed,
				Details:  fmt.Sprintf("no decision within %s", approvalTimeout),
			},
			RejectionReason: &reason,
		}); err != nil {
			return WorkflowResult{}, err
		}
		// Expiry is a rejection as far as the applicant is concerned.
		sendNotification(ctx, app.ID, app.Email, notify.KindRejectionNotification,
			"Loan application expired",
			"Your application expired because no decision was made in time.")
		return terminal(state, "EXPIRED - No decision within window"), nil
	}

	if decision.Status == domain.DecisionRejected {
		reason := decision.Notes
		if reason == "" {
			reason = "Rejected by " + decision.DecidedBy
		}
		if err := applyTransition(ctx, state, transition{
			State: domain.StateRejected,
			Step: domain.ProcessingStep{
				StepName: "approval_wait",
				Status:   domain.StepCompleted,
				Details:  "rejected by " + decision.DecidedBy,
			},
			RejectionReason: &reason,
			Decision:        decision,
		}); err != nil {
			return WorkflowResult{}, err
		}
		sendNotification(ctx, app.ID, app.Email, notify.KindRejectionNotification,
			"Loan application rejected",
			fmt.Sprintf("Your application was rejected: %s.", reason))
		return terminal(state, "REJECTED - "+reason), nil
	}

	// approve signal → APPROVED → DISBURSING
	if err := applyTransition(ctx, state, transition{
		State:    domain.StateApproved,
		Step:     domain.ProcessingStep{StepName: "approval_wait", Status: domain.StepCompleted, Details: "approved by " + decision.DecidedBy},
		Decision: decision,
	}); err != nil {
		return WorkflowResult{}, err
	}
	sendNotification(ctx, app.ID, app.Email, notify.KindApprovalNotification,
		"Loan application approved",
		fmt.Sprintf("Your loan of %.2f was approved by %s.", app.LoanAmount, decision.DecidedBy))

	if err := applyTransition(ctx, state, transition{
		State: domain.StateDisbursing,
		Step:  domain.ProcessingStep{StepName: "disbursement", Status: domain.StepStarted},
	}); err != nil {
		return WorkflowResult{}, err
	}

	// The undo obligation goes on the books before the transfer so that a
	// crash mid-transfer still compensates partial bank state.
	action := domain.CompensationAction{
		Kind:          domain.CompensationCancelDisbursement,
		ApplicationID: app.ID,
		RecordedAt:    workflow.Now(ctx),
	}
	state.compensations = append(state.compensations, action)
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyRecordTransition),
		(*Activities).RecordCompensationActivity,
		RecordCompensationInput{Action: action},
	).Get(ctx, nil); err != nil {
		return WorkflowResult{}, err
	}

	var disbursed DisburseLoanOutput
	disburseErr := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyDisburseLoan),
		(*Activities).DisburseLoanActivity,
		DisburseLoanInput{Application: app},
	).Get(ctx, &disbursed)
	if disburseErr == nil {
		state.disbursement = &disbursed.Disbursement
	}

	disbursedOK := disburseErr == nil && disbursed.Disbursement.Status == domain.DisbursementCompleted

	if disbursedOK && ctx.Err() == nil {
		finErr := applyTransition(ctx, state, transition{
			State: domain.StateDisbursed,
			Step: domain.ProcessingStep{
				StepName: "disbursement",
				Status:   domain.StepCompleted,
				Details:  "transaction " + disbursed.Disbursement.TransactionID,
			},
		})
		if finErr == nil {
			if err := startFollowUp(ctx, input); err != nil {
				// The loan is out the door; a reminder loop that failed to
				// start is not worth failing the instance over.
				logger.Warn("follow-up workflow did not start", "application_id", app.ID, "error", err)
			}
			sendNotification(ctx, app.ID, app.Email, notify.KindDisbursementConfirmed,
				"Loan disbursed",
				fmt.Sprintf("Your loan of %.2f has been disbursed (transaction %s).", app.LoanAmount, disbursed.Disbursement.TransactionID))
			return terminal(state, "DISBURSED"), nil
		}
		if ctx.Err() == nil {
			return WorkflowResult{}, finErr
		}
		// A cancellation landed between the transfer completing and the
		// DISBURSED transition. The money is out, so the cancellation is
		// honored by unwinding through the compensation path below.
	}

	// DISBURSING → COMPENSATING → REJECTED
	cancelRequested := ctx.Err() != nil
	cleanupCtx := ctx
	if cancelRequested {
		cleanupCtx, _ = workflow.NewDisconnectedContext(ctx)
	}

	failureDetail := "disbursement failed"
	if disburseErr != nil {
		failureDetail = disburseErr.Error()
	} else if disbursed.Disbursement.FailureReason != "" {
		failureDetail = disbursed.Disbursement.FailureReason
	} else if cancelRequested {
		failureDetail = "cancelled by operator"
	}

	compensatingStep := domain.ProcessingStep{StepName: "disbursement", Status: domain.StepFailed, Details: failureDetail}
	if cancelRequested && disbursedOK {
		compensatingStep = domain.ProcessingStep{StepName: "compensation", Status: domain.StepStarted, Details: failureDetail}
	}
	if err := applyTransition(cleanupCtx, state, transition{
		State: domain.StateCompensating,
		Step:  compensatingStep,
	}); err != nil {
		return WorkflowResult{}, err
	}

	runCompensations(cleanupCtx, state)

	reason := "Disbursement failed and compensated"
	subject := "Loan disbursement failed"
	body := "Your approved loan could not be disbursed; any partial transfer has been reversed."
	if cancelRequested && disbursedOK {
		reason = "Cancelled and compensated"
		subject = "Loan application cancelled"
		body = "Your application was cancelled and the disbursed amount has been reversed."
	}
	if err := applyTransition(cleanupCtx, state, transition{
		State:           domain.StateRejected,
		Step:            domain.ProcessingStep{StepName: "compensation", Status: domain.StepCompleted},
		RejectionReason: &reason,
	}); err != nil {
		return WorkflowResult{}, err
	}
	sendNotification(cleanupCtx, app.ID, app.Email, notify.KindRejectionNotification, subject, body)
	return terminal(state, "REJECTED - "+reason), nil
}

// FollowUpWorkflow sends periodic reminders after disbursement. Each cycle
// hands off to a fresh execution via continue-as-new so that history stays
// bounded no matter how long the loan lives.
func FollowUpWorkflow(ctx workflow.Context, input FollowUpInput) error {
	if input.Policy.Interval <= 0 {
		input.Policy.Interval = defaultFollowUpInterval
	}
	if input.Policy.MaxIterations <= 0 {
		input.Policy.MaxIterations = defaultFollowUpMaxIterations
	}
	if input.State.IterationCount >= input.Policy.MaxIterations {
		workflow.GetLogger(ctx).Info("follow-up iteration cap reached",
			"application_id", input.State.ApplicationID, "iterations", input.State.IterationCount)
		return nil
	}

	if err := workflow.Sleep(ctx, input.Policy.Interval); err != nil {
		// External cancellation ends the reminder loop.
		return err
	}

	sendNotification(ctx, input.State.ApplicationID, input.Recipient, notify.KindFollowUpReminder,
		"Loan repayment reminder",
		fmt.Sprintf("Reminder %d for loan %s.", input.State.IterationCount+1, input.State.ApplicationID))

	input.State.IterationCount++
	input.State.LastReminderAt = workflow.Now(ctx)
	return workflow.NewContinueAsNewError(ctx, FollowUpWorkflow, input)
}

// awaitDecision suspends until the first of: approve signal, reject signal,
// the approval timer, or workflow cancellation. Signals arriving after the
// first resolution are left unconsumed and therefore ignored.
func awaitDecision(ctx workflow.Context, timeout time.Duration) (decision *domain.ApprovalDecision, timedOut bool, cancelled bool) {
	approveCh := workflow.GetSignalChannel(ctx, ApproveSignalName)
	rejectCh := workflow.GetSignalChannel(ctx, RejectSignalName)

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, timeout)
	defer cancelTimer()

	selector := workflow.NewSelector(ctx)
	selector.AddReceive(approveCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig ApproveSignal
		c.Receive(ctx, &sig)
		decision = &domain.ApprovalDecision{
			Status:    domain.DecisionApproved,
			DecidedBy: sig.ApprovedBy,
			Notes:     sig.Notes,
			DecidedAt: workflow.Now(ctx),
		}
	})
	selector.AddReceive(rejectCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig RejectSignal
		c.Receive(ctx, &sig)
		decision = &domain.ApprovalDecision{
			Status:    domain.DecisionRejected,
			DecidedBy: sig.RejectedBy,
			Notes:     sig.Reason,
			DecidedAt: workflow.Now(ctx),
		}
	})
	selector.AddFuture(timer, func(f workflow.Future) {
		if err := f.Get(ctx, nil); err == nil {
			timedOut = true
		}
	})
	selector.AddReceive(ctx.Done(), func(workflow.ReceiveChannel, bool) {
		cancelled = true
	})

	selector.Select(ctx)
	return decision, timedOut, cancelled
}

type transition struct {
	State           domain.ApplicationState
	Step            domain.ProcessingStep
	RejectionReason *string
	Decision        *domain.ApprovalDecision
	Detail          map[string]any
}

// applyTransition mutates in-memory state for queries, appends the audit
// step, and persists both through the record-transition activity.
func applyTransition(ctx workflow.Context, s *workflowState, t transition) error {
	t.Step.Timestamp = workflow.Now(ctx)
	s.state = t.State
	if t.Decision != nil {
		s.decision = t.Decision
	}
	s.history = append(s.history, t.Step)

	return workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyRecordTransition),
		(*Activities).RecordTransitionActivity,
		RecordTransitionInput{
			ApplicationID:   s.application.ID,
			State:           t.State,
			Step:            t.Step,
			RejectionReason: t.RejectionReason,
			Decision:        t.Decision,
			Detail:          t.Detail,
		},
	).Get(ctx, nil)
}

// recordStepBestEffort appends an audit step without changing state; used on
// abort paths where persistence failures must not mask the original error.
func recordStepBestEffort(ctx workflow.Context, s *workflowState, step domain.ProcessingStep) {
	step.Timestamp = workflow.Now(ctx)
	s.history = append(s.history, step)
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyRecordTransition),
		(*Activities).RecordTransitionActivity,
		RecordTransitionInput{ApplicationID: s.application.ID, State: s.state, Step: step},
	).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("audit step not persisted", "step", step.StepName, "error", err)
	}
}

// runCompensations walks the compensation stack in reverse insertion order.
// Every action is idempotent; a failure is surfaced for manual intervention
// but never blocks reaching a terminal state.
func runCompensations(ctx workflow.Context, s *workflowState) {
	logger := workflow.GetLogger(ctx)
	for i := len(s.compensations) - 1; i >= 0; i-- {
		action := s.compensations[i]
		var out CompensateDisbursementOutput
		err := workflow.ExecuteActivity(
			mustActivityContext(ctx, ActivityPolicyCompensateDisbursement),
			(*Activities).CompensateDisbursementActivity,
			CompensateDisbursementInput{ApplicationID: action.ApplicationID, Kind: action.Kind},
		).Get(ctx, &out)

		step := domain.ProcessingStep{StepName: "compensation", Status: domain.StepCompleted, Details: out.Detail}
		if err != nil || !out.Compensated {
			detail := out.Detail
			if err != nil {
				detail = err.Error()
			}
			logger.Error("compensation requires manual intervention",
				"application_id", action.ApplicationID, "kind", action.Kind, "detail", detail)
			step.Status = domain.StepFailed
			step.Details = "manual intervention required: " + detail
		}
		recordStepBestEffort(ctx, s, step)
	}
}

func sendNotification(ctx workflow.Context, applicationID, recipient string, kind notify.Kind, subject, body string) {
	var out SendNotificationOutput
	err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicySendNotification),
		(*Activities).SendNotificationActivity,
		SendNotificationInput{
			Kind:          kind,
			ApplicationID: applicationID,
			Recipient:     recipient,
			Subject:       subject,
			Body:          body,
		},
	).Get(ctx, &out)
	logger := workflow.GetLogger(ctx)
	if err != nil {
		logger.Warn("notification failed", "kind", kind, "application_id", applicationID, "error", err)
		return
	}
	if !out.Delivered {
		logger.Warn("notification not delivered", "kind", kind, "application_id", applicationID)
	}
}

func startFollowUp(ctx workflow.Context, input WorkflowInput) error {
	policy := input.FollowUp
	if policy.Interval <= 0 {
		policy.Interval = defaultFollowUpInterval
	}
	if policy.MaxIterations <= 0 {
		policy.MaxIterations = defaultFollowUpMaxIterations
	}

	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        "followup-" + input.Application.ID,
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	})
	future := workflow.ExecuteChildWorkflow(childCtx, FollowUpWorkflow, FollowUpInput{
		State: domain.FollowUpState{
			ApplicationID:  input.Application.ID,
			LastReminderAt: workflow.Now(ctx),
		},
		Recipient: input.Application.Email,
		Policy:    policy,
	})
	// Wait for the child to be scheduled, not to finish; it outlives the
	// parent under the abandon policy.
	return future.GetChildWorkflowExecution().Get(ctx, nil)
}

func registerQueryHandlers(ctx workflow.Context, s *workflowState) error {
	if err := workflow.SetQueryHandler(ctx, QueryCurrentState, func() (domain.ApplicationState, error) {
		return s.state, nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, QueryApplicationDetails, func() (domain.LoanApplication, error) {
		return s.application, nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, QueryRiskAssessment, func() (*domain.RiskAssessment, error) {
		return s.risk, nil
	}); err != nil {
		return err
	}
	return workflow.SetQueryHandler(ctx, QueryProcessingHistory, func() ([]domain.ProcessingStep, error) {
		return s.history, nil
	})
}

func terminal(s *workflowState, summary string) WorkflowResult {
	return WorkflowResult{
		ApplicationID: s.application.ID,
		State:         s.state,
		Summary:       summary,
	}
}
