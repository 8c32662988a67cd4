package temporal

const (
	ApproveSignalName = "approve"
	RejectSignalName  = "reject"
)

const (
	QueryCurrentState       = "currentState"
	QueryApplicationDetails = "applicationDetails"
	QueryRiskAssessment     = "riskAssessment"
	QueryProcessingHistory  = "processingHistory"
)

type ApproveSignal struct {
	ApprovedBy string `json:"approved_by"`
	Notes      string `json:"notes,omitempty"`
}

type RejectSignal struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason,omitempty"`
}
