package domain

import "fmt"

// DocumentPolicy decides which supporting documents an application must
// carry. Demo thresholds; override per deployment.
type DocumentPolicy struct {
	// LargeLoanThreshold is the amount above which tax returns and bank
	// statements become mandatory.
	LargeLoanThreshold float64
}

func DefaultDocumentPolicy() DocumentPolicy {
	return DocumentPolicy{LargeLoanThreshold: 50_000}
}

// RequiredDocuments resolves the document set for a (purpose, amount) tier.
func (p DocumentPolicy) RequiredDocuments(app LoanApplication) []DocumentType {
	required := []DocumentType{DocIDCard, DocProofOfIncome}
	if app.LoanAmount > p.LargeLoanThreshold {
		required = append(required, DocTaxReturn, DocBankStatement)
	}
	switch app.Purpose {
	case PurposeBusiness:
		required = append(required, DocBusinessPlan, DocBusinessRegistration)
	case PurposeHomePurchase:
		required = append(required, DocPropertyAppraisal)
	}
	return required
}

// ValidateDocuments checks the application against the policy. A missing
// document is a final business answer, not an error.
func (p DocumentPolicy) ValidateDocuments(app LoanApplication) DocumentValidationResult {
	result := DocumentValidationResult{
		ValidDocuments:   make([]DocumentType, 0),
		MissingDocuments: make([]DocumentType, 0),
		Issues:           make([]string, 0),
	}
	for _, required := range p.RequiredDocuments(app) {
		if app.HasDocument(required) {
			result.ValidDocuments = append(result.ValidDocuments, required)
			continue
		}
		result.MissingDocuments = append(result.MissingDocuments, required)
		result.Issues = append(result.Issues, fmt.Sprintf("required document %s not provided", required))
	}
	result.IsValid = len(result.MissingDocuments) == 0
	return result
}
