package temporal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"loan-orchestrator/internal/bank"
	"loan-orchestrator/internal/creditbureau"
	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/notify"
)

type ActivityStore interface {
	UpdateApplicationState(ctx context.Context, applicationID string, state domain.ApplicationState, rejectionReason *string) error
	InsertAudit(ctx context.Context, applicationID string, step domain.ProcessingStep, detail any) error
	SaveRiskAssessment(ctx context.Context, applicationID string, assessment domain.RiskAssessment) error
	SaveDecision(ctx context.Context, applicationID string, decision domain.ApprovalDecision) error
	SaveDisbursement(ctx context.Context, d domain.LoanDisbursement) error
	GetDisbursement(ctx context.Context, applicationID string) (domain.LoanDisbursement, error)
	UpdateDisbursementStatus(ctx context.Context, applicationID string, status domain.DisbursementStatus, failureReason string) error
	RecordCompensation(ctx context.Context, action domain.CompensationAction) error
	ResolveCompensation(ctx context.Context, applicationID string, kind domain.CompensationKind) error
}

type Activities struct {
	Store            ActivityStore
	Bureau           creditbureau.Client
	Bank             bank.Client
	Notifier         notify.Client
	DocumentPolicy   domain.DocumentPolicy
	RiskPolicy       domain.RiskPolicy
	BureauTimeout    time.Duration
	PendingPollDelay time.Duration
}

type ValidateDocumentsInput struct {
	Application domain.LoanApplication
}

type ValidateDocumentsOutput struct {
	Result domain.DocumentValidationResult
}

type CalculateRiskScoreInput struct {
	Application domain.LoanApplication
}

type CalculateRiskScoreOutput struct {
	Assessment domain.RiskAssessment
}

type DisburseLoanInput struct {
	Application domain.LoanApplication
}

type DisburseLoanOutput struct {
	Disbursement domain.LoanDisbursement
}

type CompensateDisbursementInput struct {
	ApplicationID string
	Kind          domain.CompensationKind
}

type CompensateDisbursementOutput struct {
	Compensated bool
	Detail      string
}

type SendNotificationInput struct {
	Kind          notify.Kind
	ApplicationID string
	Recipient     string
	Subject       string
	Body          string
}

type SendNotificationOutput struct {
	Delivered bool
}

type RecordTransitionInput struct {
	ApplicationID   string
	State           domain.ApplicationState
	Step            domain.ProcessingStep
	RejectionReason *string
	Decision        *domain.ApprovalDecision
	Detail          map[string]any
}

type RecordCompensationInput struct {
	Action domain.CompensationAction
}

// ValidateDocumentsActivity applies the required-documents policy. A missing
// document is reported in the result, never as an activity error.
func (a *Activities) ValidateDocumentsActivity(ctx context.Context, input ValidateDocumentsInput) (ValidateDocumentsOutput, error) {
	_ = ctx
	result := a.DocumentPolicy.ValidateDocuments(input.Application)
	return ValidateDocumentsOutput{Result: result}, nil
}

// CalculateRiskScoreActivity pulls the applicant's credit report and tiers
// the application. Transient bureau failures surface as plain errors so the
// activity retry policy backs off and retries; a missing bureau file is
// wrapped non-retryable.
func (a *Activities) CalculateRiskScoreActivity(ctx context.Context, input CalculateRiskScoreInput) (CalculateRiskScoreOutput, error) {
	report, err := a.Bureau.FetchCreditReport(ctx, creditbureau.ReportRequest{
		ApplicantName: input.Application.ApplicantName,
		Email:         input.Application.Email,
		Timeout:       a.BureauTimeout,
	})
	if err != nil {
		if errors.Is(err, creditbureau.ErrApplicantNotFound) {
			return CalculateRiskScoreOutput{}, temporal.NewNonRetryableApplicationError(
				"credit bureau has no file for applicant", ErrTypeApplicantNotFound, err)
		}
		return CalculateRiskScoreOutput{}, fmt.Errorf("fetch credit report: %w", err)
	}

	assessment := a.RiskPolicy.AssessRisk(input.Application, report.CreditScore, report.MonthlyDebt)
	if err := a.Store.SaveRiskAssessment(ctx, input.Application.ID, assessment); err != nil {
		return CalculateRiskScoreOutput{}, err
	}
	return CalculateRiskScoreOutput{Assessment: assessment}, nil
}

// DisburseLoanActivity transfers the loan amount through the bank interface.
// It is idempotent: a re-execution after a crash returns the persisted
// disbursement instead of transferring twice. A PENDING bank response is
// polled once after a fixed delay to reach a terminal bank-side outcome.
func (a *Activities) DisburseLoanActivity(ctx context.Context, input DisburseLoanInput) (DisburseLoanOutput, error) {
	existing, err := a.Store.GetDisbursement(ctx, input.Application.ID)
	if err == nil && isTerminalDisbursement(existing.Status) {
		return DisburseLoanOutput{Disbursement: existing}, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return DisburseLoanOutput{}, err
	}

	d := existing
	if d.TransactionID == "" {
		d = domain.LoanDisbursement{
			TransactionID: uuid.NewString(),
			ApplicationID: input.Application.ID,
			Amount:        input.Application.LoanAmount,
			BankAccount:   input.Application.BankAccount,
			Status:        domain.DisbursementPending,
		}
		if err := a.Store.SaveDisbursement(ctx, d); err != nil {
			return DisburseLoanOutput{}, err
		}
	}

	result, err := a.Bank.Transfer(ctx, bank.TransferRequest{
		TransactionID: d.TransactionID,
		BankAccount:   d.BankAccount,
		Amount:        d.Amount,
		Reference:     "loan disbursement " + d.ApplicationID,
	})
	if err != nil {
		d.Status = domain.DisbursementFailed
		d.FailureReason = err.Error()
		if saveErr := a.Store.SaveDisbursement(ctx, d); saveErr != nil {
			return DisburseLoanOutput{}, saveErr
		}
		return DisburseLoanOutput{Disbursement: d}, nil
	}

	if result.Status == bank.TransferPending {
		d.Status = domain.DisbursementProcessing
		if err := a.Store.UpdateDisbursementStatus(ctx, d.ApplicationID, d.Status, ""); err != nil {
			return DisburseLoanOutput{}, err
		}
		result, err = a.pollPendingTransfer(ctx, d.TransactionID)
		if err != nil {
			return DisburseLoanOutput{}, err
		}
	}

	switch result.Status {
	case bank.TransferSuccess:
		d.Status = domain.DisbursementCompleted
		d.FailureReason = ""
	case bank.TransferPending:
		d.Status = domain.DisbursementFailed
		d.FailureReason = "transfer still pending after poll window"
	default:
		d.Status = domain.DisbursementFailed
		d.FailureReason = result.Reason
		if d.FailureReason == "" {
			d.FailureReason = "bank reported transfer failure"
		}
	}
	if err := a.Store.SaveDisbursement(ctx, d); err != nil {
		return DisburseLoanOutput{}, err
	}
	return DisburseLoanOutput{Disbursement: d}, nil
}

func (a *Activities) pollPendingTransfer(ctx context.Context, transactionID string) (bank.TransferResult, error) {
	delay := a.PendingPollDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	select {
	case <-ctx.Done():
		return bank.TransferResult{}, ctx.Err()
	case <-time.After(delay):
	}
	return a.Bank.GetTransferStatus(ctx, transactionID)
}

// CompensateDisbursementActivity undoes whatever the disbursement left
// behind, branching on the persisted status so a second invocation is a
// no-op. Compensated=false means the bank could not confirm the reversal and
// an operator has to step in; it is never an activity error.
func (a *Activities) CompensateDisbursementActivity(ctx context.Context, input CompensateDisbursementInput) (CompensateDisbursementOutput, error) {
	d, err := a.Store.GetDisbursement(ctx, input.ApplicationID)
	if errors.Is(err, sql.ErrNoRows) {
		// Transfer never started; nothing to undo.
		return CompensateDisbursementOutput{Compensated: true, Detail: "no disbursement recorded"}, nil
	}
	if err != nil {
		return CompensateDisbursementOutput{}, err
	}

	switch d.Status {
	case domain.DisbursementFailed, domain.DisbursementCancelled, domain.DisbursementRefunded:
		return CompensateDisbursementOutput{Compensated: true, Detail: "already safe: " + string(d.Status)}, nil

	case domain.DisbursementCompleted:
		result, err := a.Bank.ReverseTransfer(ctx, d.TransactionID)
		if err != nil || result.Status != bank.TransferSuccess {
			return CompensateDisbursementOutput{Compensated: false, Detail: reversalFailureDetail("reversal", result, err)}, nil
		}
		if err := a.Store.UpdateDisbursementStatus(ctx, d.ApplicationID, domain.DisbursementRefunded, ""); err != nil {
			return CompensateDisbursementOutput{}, err
		}
		if err := a.Store.ResolveCompensation(ctx, d.ApplicationID, input.Kind); err != nil {
			return CompensateDisbursementOutput{}, err
		}
		return CompensateDisbursementOutput{Compensated: true, Detail: "transfer reversed"}, nil

	default: // PENDING, PROCESSING
		result, err := a.Bank.CancelTransfer(ctx, d.TransactionID)
		if err != nil || result.Status != bank.TransferSuccess {
			return CompensateDisbursementOutput{Compensated: false, Detail: reversalFailureDetail("cancellation", result, err)}, nil
		}
		if err := a.Store.UpdateDisbursementStatus(ctx, d.ApplicationID, domain.DisbursementCancelled, ""); err != nil {
			return CompensateDisbursementOutput{}, err
		}
		if err := a.Store.ResolveCompensation(ctx, d.ApplicationID, input.Kind); err != nil {
			return CompensateDisbursementOutput{}, err
		}
		return CompensateDisbursementOutput{Compensated: true, Detail: "transfer cancelled"}, nil
	}
}

// SendNotificationActivity is the best-effort side channel; the workflow
// logs the outcome and never fails on it.
func (a *Activities) SendNotificationActivity(ctx context.Context, input SendNotificationInput) (SendNotificationOutput, error) {
	delivered, err := a.Notifier.Send(ctx, notify.Message{
		Kind:          input.Kind,
		ApplicationID: input.ApplicationID,
		Recipient:     input.Recipient,
		Subject:       input.Subject,
		Body:          input.Body,
	})
	if err != nil {
		return SendNotificationOutput{}, err
	}
	return SendNotificationOutput{Delivered: delivered}, nil
}

// RecordTransitionActivity persists one state transition: the state tag, the
// audit-log step, and, when present, the honored approval decision.
func (a *Activities) RecordTransitionActivity(ctx context.Context, input RecordTransitionInput) error {
	if err := a.Store.UpdateApplicationState(ctx, input.ApplicationID, input.State, input.RejectionReason); err != nil {
		return err
	}
	if input.Decision != nil {
		if err := a.Store.SaveDecision(ctx, input.ApplicationID, *input.Decision); err != nil {
			return err
		}
	}
	detail := input.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	return a.Store.InsertAudit(ctx, input.ApplicationID, input.Step, detail)
}

// RecordCompensationActivity makes the undo obligation durable before the
// forward step runs, so a crash mid-transfer still compensates.
func (a *Activities) RecordCompensationActivity(ctx context.Context, input RecordCompensationInput) error {
	return a.Store.RecordCompensation(ctx, input.Action)
}

func isTerminalDisbursement(status domain.DisbursementStatus) bool {
	switch status {
	case domain.DisbursementCompleted, domain.DisbursementFailed,
		domain.DisbursementCancelled, domain.DisbursementRefunded:
		return true
	}
	return false
}

func reversalFailureDetail(op string, result bank.TransferResult, err error) string {
	if err != nil {
		return fmt.Sprintf("bank %s failed: %v", op, err)
	}
	if result.Reason != "" {
		return fmt.Sprintf("bank %s not confirmed: %s", op, result.Reason)
	}
	return fmt.Sprintf("bank %s not confirmed: status %s", op, result.Status)
}
