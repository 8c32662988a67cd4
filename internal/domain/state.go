package domain

type ApplicationState string

const (
	StateSubmitted          ApplicationState = "SUBMITTED"
	StateDocumentValidation ApplicationState = "DOCUMENT_VALIDATION"
	StateRiskScoring        ApplicationState = "RISK_SCORING"
	StateAwaitingApproval   ApplicationState = "AWAITING_APPROVAL"
	StateApproved           ApplicationState = "APPROVED"
	StateDisbursing         ApplicationState = "DISBURSING"
	StateDisbursed          ApplicationState = "DISBURSED"
	StateCompensating       ApplicationState = "COMPENSATING"
	StateRejected           ApplicationState = "REJECTED"
	StateExpired            ApplicationState = "EXPIRED"
)

// IsTerminal reports whether no further transition can occur from s.
func (s ApplicationState) IsTerminal() bool {
	switch s {
	case StateDisbursed, StateRejected, StateExpired:
		return true
	}
	return false
}

type LoanPurpose string

const (
	PurposeHomePurchase      LoanPurpose = "HOME_PURCHASE"
	PurposeCarPurchase       LoanPurpose = "CAR_PURCHASE"
	PurposeBusiness          LoanPurpose = "BUSINESS"
	PurposeEducation         LoanPurpose = "EDUCATION"
	PurposeDebtConsolidation LoanPurpose = "DEBT_CONSOLIDATION"
	PurposePersonal          LoanPurpose = "PERSONAL"
)

type DocumentType string

const (
	DocIDCard               DocumentType = "ID_CARD"
	DocProofOfIncome        DocumentType = "PROOF_OF_INCOME"
	DocTaxReturn            DocumentType = "TAX_RETURN"
	DocBankStatement        DocumentType = "BANK_STATEMENT"
	DocBusinessPlan         DocumentType = "BUSINESS_PLAN"
	DocBusinessRegistration DocumentType = "BUSINESS_REGISTRATION"
	DocPropertyAppraisal    DocumentType = "PROPERTY_APPRAISAL"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionRejected DecisionStatus = "REJECTED"
)

type DisbursementStatus string

const (
	DisbursementPending    DisbursementStatus = "PENDING"
	DisbursementProcessing DisbursementStatus = "PROCESSING"
	DisbursementCompleted  DisbursementStatus = "COMPLETED"
	DisbursementFailed     DisbursementStatus = "FAILED"
	DisbursementCancelled  DisbursementStatus = "CANCELLED"
	DisbursementRefunded   DisbursementStatus = "REFUNDED"
)

type CompensationKind string

const (
	CompensationCancelDisbursement CompensationKind = "CANCEL_DISBURSEMENT"
	CompensationRefundPayment      CompensationKind = "REFUND_PAYMENT"
)

type StepStatus string

const (
	StepStarted   StepStatus = "STARTED"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)
