package domain

import "time"

// LoanApplication is the immutable submission record. Its ID doubles as the
// workflow business key, so at most one orchestration runs per application.
type LoanApplication struct {
	ID            string         `json:"id"`
	ApplicantName string         `json:"applicant_name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	LoanAmount    float64        `json:"loan_amount"`
	Purpose       LoanPurpose    `json:"purpose"`
	AnnualIncome  float64        `json:"annual_income"`
	BankAccount   string         `json:"bank_account"`
	Documents     []DocumentType `json:"documents"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HasDocument reports whether the application includes the given document tag.
func (a LoanApplication) HasDocument(doc DocumentType) bool {
	for _, d := range a.Documents {
		if d == doc {
			return true
		}
	}
	return false
}

type DocumentValidationResult struct {
	IsValid          bool           `json:"is_valid"`
	ValidDocuments   []DocumentType `json:"valid_documents"`
	MissingDocuments []DocumentType `json:"missing_documents"`
	Issues           []string       `json:"issues"`
}

type RiskAssessment struct {
	CreditScore       int       `json:"credit_score"`
	RiskLevel         RiskLevel `json:"risk_level"`
	DebtToIncomeRatio float64   `json:"debt_to_income_ratio"`
	LoanToIncomeRatio float64   `json:"loan_to_income_ratio"`
	RiskFactors       []string  `json:"risk_factors"`
}

// ApprovalDecision is carried by an approve/reject signal. Only the first
// decision recorded against an application is honored.
type ApprovalDecision struct {
	Status    DecisionStatus `json:"status"`
	DecidedBy string         `json:"decided_by"`
	Notes     string         `json:"notes,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}

type LoanDisbursement struct {
	TransactionID string             `json:"transaction_id"`
	ApplicationID string             `json:"application_id"`
	Amount        float64            `json:"amount"`
	BankAccount   string             `json:"bank_account"`
	Status        DisbursementStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// ProcessingStep is one entry of the append-only audit trail kept for each
// application. Steps are ordered by insertion, never rewritten.
type ProcessingStep struct {
	StepName  string     `json:"step_name"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Details   string     `json:"details,omitempty"`
}

// CompensationAction records an undo obligation at the moment the forward
// step is attempted. Actions are replayed in reverse insertion order and must
// be safe to invoke more than once.
type CompensationAction struct {
	Kind          CompensationKind `json:"kind"`
	ApplicationID string           `json:"application_id"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// ApplicationRecord is the durable per-application row: the immutable
// submission plus everything the orchestration has learned so far.
type ApplicationRecord struct {
	Application     LoanApplication   `json:"application"`
	State           ApplicationState  `json:"state"`
	Risk            *RiskAssessment   `json:"risk,omitempty"`
	Decision        *ApprovalDecision `json:"decision,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
}

// FollowUpState is the minimal carry-over passed across continue-as-new
// boundaries so the reminder loop never accumulates history.
type FollowUpState struct {
	ApplicationID  string    `json:"application_id"`
	IterationCount int       `json:"iteration_count"`
	LastReminderAt time.Time `json:"last_reminder_at"`
}
