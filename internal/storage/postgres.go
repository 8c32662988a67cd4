package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"loan-orchestrator/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateSubmittedApplication(ctx context.Context, app domain.LoanApplication) error {
	docs := make([]string, 0, len(app.Documents))
	for _, d := range app.Documents {
		docs = append(docs, string(d))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loan_applications
			(id, applicant_name, email, phone, loan_amount, purpose, annual_income, bank_account, documents, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, app.ID, app.ApplicantName, app.Email, app.Phone, app.LoanAmount, app.Purpose,
		app.AnnualIncome, app.BankAccount, pq.Array(docs), domain.StateSubmitted, app.CreatedAt)
	return err
}

const applicationRecordColumns = `id, applicant_name, email, COALESCE(phone, ''), loan_amount, purpose, annual_income,
	       bank_account, documents, state, created_at,
	       credit_score, risk_level, debt_to_income, loan_to_income, risk_factors,
	       decision_status, decided_by, decision_notes, decided_at, rejection_reason`

func (s *PostgresStore) GetApplication(ctx context.Context, applicationID string) (domain.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+applicationRecordColumns+`
		FROM loan_applications
		WHERE id = $1
	`, applicationID)
	return scanApplicationRecord(row.Scan)
}

func scanApplicationRecord(scan func(dest ...any) error) (domain.ApplicationRecord, error) {
	var rec domain.ApplicationRecord
	var docs []string
	var creditScore sql.NullInt64
	var riskLevel, decisionStatus, decidedBy, decisionNotes sql.NullString
	var dti, lti sql.NullFloat64
	var riskFactors []string
	var decidedAt sql.NullTime
	var rejectionReason sql.NullString

	if err := scan(
		&rec.Application.ID,
		&rec.Application.ApplicantName,
		&rec.Application.Email,
		&rec.Application.Phone,
		&rec.Application.LoanAmount,
		&rec.Application.Purpose,
		&rec.Application.AnnualIncome,
		&rec.Application.BankAccount,
		pq.Array(&docs),
		&rec.State,
		&rec.Application.CreatedAt,
		&creditScore,
		&riskLevel,
		&dti,
		&lti,
		pq.Array(&riskFactors),
		&decisionStatus,
		&decidedBy,
		&decisionNotes,
		&decidedAt,
		&rejectionReason,
	); err != nil {
		return domain.ApplicationRecord{}, err
	}

	rec.Application.Documents = make([]domain.DocumentType, 0, len(docs))
	for _, d := range docs {
		rec.Application.Documents = append(rec.Application.Documents, domain.DocumentType(d))
	}
	if creditScore.Valid {
		rec.Risk = &domain.RiskAssessment{
			CreditScore:       int(creditScore.Int64),
			RiskLevel:         domain.RiskLevel(riskLevel.String),
			DebtToIncomeRatio: dti.Float64,
			LoanToIncomeRatio: lti.Float64,
			RiskFactors:       riskFactors,
		}
	}
	if decisionStatus.Valid {
		rec.Decision = &domain.ApprovalDecision{
			Status:    domain.DecisionStatus(decisionStatus.String),
			DecidedBy: decidedBy.String,
			Notes:     decisionNotes.String,
			DecidedAt: decidedAt.Time,
		}
	}
	if rejectionReason.Valid {
		rec.RejectionReason = &rejectionReason.String
	}
	return rec, nil
}

func (s *PostgresStore) GetApplicationState(ctx context.Context, applicationID string) (domain.ApplicationState, error) {
	var state domain.ApplicationState
	row := s.db.QueryRowContext(ctx, `SELECT state FROM loan_applications WHERE id = $1`, applicationID)
	if err := row.Scan(&state); err != nil {
		return "", err
	}
	return state, nil
}

func (s *PostgresStore) UpdateApplicationState(ctx context.Context, applicationID string, state domain.ApplicationState, rejectionReason *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET state = $2,
		    rejection_reason = COALESCE($3, rejection_reason),
		    updated_at = NOW()
		WHERE id = $1
	`, applicationID, state, rejectionReason)
	return err
}

func (s *PostgresStore) SaveRiskAssessment(ctx context.Context, applicationID string, assessment domain.RiskAssessment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET credit_score = $2,
		    risk_level = $3,
		    debt_to_income = $4,
		    loan_to_income = $5,
		    risk_factors = $6,
		    updated_at = NOW()
		WHERE id = $1
	`, applicationID, assessment.CreditScore, assessment.RiskLevel,
		assessment.DebtToIncomeRatio, assessment.LoanToIncomeRatio, pq.Array(assessment.RiskFactors))
	return err
}

func (s *PostgresStore) SaveDecision(ctx context.Context, applicationID string, decision domain.ApprovalDecision) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET decision_status = $2,
		    decided_by = $3,
		    decision_notes = $4,
		    decided_at = $5,
		    updated_at = NOW()
		WHERE id = $1 AND decision_status IS NULL
	`, applicationID, decision.Status, decision.DecidedBy, decision.Notes, decision.DecidedAt)
	return err
}

func (s *PostgresStore) InsertAudit(ctx context.Context, applicationID string, step domain.ProcessingStep, detail any) error {
	var payload []byte
	switch v := detail.(type) {
	case nil:
		payload = []byte("{}")
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (application_id, step_name, status, detail, recorded_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, applicationID, step.StepName, step.Status, string(payload), step.Timestamp)
	return err
}

func (s *PostgresStore) ListProcessingSteps(ctx context.Context, applicationID string) ([]domain.ProcessingStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_name, status, recorded_at, COALESCE(detail::text, '')
		FROM audit_log
		WHERE application_id = $1
		ORDER BY id ASC
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]domain.ProcessingStep, 0)
	for rows.Next() {
		var step domain.ProcessingStep
		if err := rows.Scan(&step.StepName, &step.Status, &step.Timestamp, &step.Details); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *PostgresStore) SaveDisbursement(ctx context.Context, d domain.LoanDisbursement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disbursements (application_id, transaction_id, amount, bank_account, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (application_id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = NOW()
	`, d.ApplicationID, d.TransactionID, d.Amount, d.BankAccount, d.Status, d.FailureReason)
	return err
}

func (s *PostgresStore) GetDisbursement(ctx context.Context, applicationID string) (domain.LoanDisbursement, error) {
	var d domain.LoanDisbursement
	var failureReason sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT application_id, transaction_id, amount, bank_account, status, failure_reason
		FROM disbursements
		WHERE application_id = $1
	`, applicationID)
	if err := row.Scan(&d.ApplicationID, &d.TransactionID, &d.Amount, &d.BankAccount, &d.Status, &failureReason); err != nil {
		return domain.LoanDisbursement{}, err
	}
	d.FailureReason = failureReason.String
	return d, nil
}

func (s *PostgresStore) UpdateDisbursementStatus(ctx context.Context, applicationID string, status domain.DisbursementStatus, failureReason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE disbursements
		SET status = $2,
		    failure_reason = CASE WHEN $3 = '' THEN failure_reason ELSE $3 END,
		    updated_at = NOW()
		WHERE application_id = $1
	`, applicationID, status, failureReason)
	return err
}

func (s *PostgresStore) RecordCompensation(ctx context.Context, action domain.CompensationAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compensation_log (application_id, kind, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (application_id, kind) DO NOTHING
	`, action.ApplicationID, action.Kind, action.RecordedAt)
	return err
}

func (s *PostgresStore) ResolveCompensation(ctx context.Context, applicationID string, kind domain.CompensationKind) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE compensation_log
		SET resolved_at = NOW()
		WHERE application_id = $1 AND kind = $2
	`, applicationID, kind)
	return err
}

// ListAwaitingApproval returns the operator worklist of applications
// suspended on a human decision, oldest first.
func (s *PostgresStore) ListAwaitingApproval(ctx context.Context) ([]domain.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+applicationRecordColumns+`
		FROM loan_applications
		WHERE state = $1
		ORDER BY created_at ASC
	`, domain.StateAwaitingApproval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ApplicationRecord, 0)
	for rows.Next() {
		rec, err := scanApplicationRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) CountApplications(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_applications`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return count, nil
}
