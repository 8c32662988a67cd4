package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"loan-orchestrator/internal/config"
	"loan-orchestrator/internal/domain"
	"loan-orchestrator/internal/storage"
	appTemporal "loan-orchestrator/internal/temporal"
)

type Handler struct {
	cfg            config.Config
	store          *storage.PostgresStore
	blob           documentBlobStore
	temporalClient client.Client
}

type documentBlobStore interface {
	PutDocument(ctx context.Context, applicationID, filename string, content []byte) (string, error)
}

type submitRequest struct {
	ApplicantName string                `json:"applicant_name"`
	Email         string                `json:"email"`
	Phone         string                `json:"phone,omitempty"`
	LoanAmount    float64               `json:"loan_amount"`
	Purpose       domain.LoanPurpose    `json:"purpose"`
	AnnualIncome  float64               `json:"annual_income"`
	BankAccount   string                `json:"bank_account"`
	Documents     []domain.DocumentType `json:"documents"`
}

type decisionRequest struct {
	DecidedBy string `json:"decided_by"`
	Notes     string `json:"notes,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type statusResponse struct {
	ApplicationID string                  `json:"application_id"`
	State         domain.ApplicationState `json:"state"`
}

func NewHandler(cfg config.Config, store *storage.PostgresStore, blob documentBlobStore, temporalClient client.Client) *Handler {
	return &Handler{cfg: cfg, store: store, blob: blob, temporalClient: temporalClient}
}

func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if msg := validateSubmission(req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
		return
	}

	app := domain.LoanApplication{
		ID:            uuid.NewString(),
		ApplicantName: req.ApplicantName,
		Email:         req.Email,
		Phone:         req.Phone,
		LoanAmount:    req.LoanAmount,
		Purpose:       req.Purpose,
		AnnualIncome:  req.AnnualIncome,
		BankAccount:   req.BankAccount,
		Documents:     req.Documents,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.store.CreateSubmittedApplication(ctx, app); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create application"})
		return
	}

	workflowID := h.workflowID(app.ID)
	_, err := h.temporalClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TemporalTaskQueue,
	}, appTemporal.LoanApplicationWorkflowName, appTemporal.WorkflowInput{
		Application:     app,
		ApprovalTimeout: time.Duration(h.cfg.ApprovalTimeoutHours) * time.Hour,
		FollowUp: appTemporal.FollowUpPolicy{
			Interval:      time.Duration(h.cfg.FollowUpIntervalHours) * time.Hour,
			MaxIterations: h.cfg.FollowUpMaxIterations,
		},
	})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "application already being processed"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to start processing"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"application_id": app.ID,
		"workflow_id":    workflowID,
		"state":          domain.StateSubmitted,
	})
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file exceeds size limit"})
		return
	}

	objectKey, err := h.blob.PutDocument(ctx, applicationID, header.Filename, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store document"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"application_id": applicationID,
		"object_key":     objectKey,
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request, applicationID string) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.DecidedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "decided_by is required"})
		return
	}

	signal := appTemporal.ApproveSignal{ApprovedBy: req.DecidedBy, Notes: req.Notes}
	if err := h.temporalClient.SignalWorkflow(r.Context(), h.workflowID(applicationID), "", appTemporal.ApproveSignalName, signal); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"application_id": applicationID, "status": "approve_signal_sent"})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request, applicationID string) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.DecidedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "decided_by is required"})
		return
	}

	signal := appTemporal.RejectSignal{RejectedBy: req.DecidedBy, Reason: req.Reason}
	if err := h.temporalClient.SignalWorkflow(r.Context(), h.workflowID(applicationID), "", appTemporal.RejectSignalName, signal); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"application_id": applicationID, "status": "reject_signal_sent"})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	state, err := h.store.GetApplicationState(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "application not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch status"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ApplicationID: applicationID, State: state})
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "application not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch application"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetHistory serves the processing trail straight from the live workflow
// instance; Temporal queries stay answerable after termination for as long
// as the history is retained.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request, applicationID string) {
	var history []domain.ProcessingStep
	if !h.queryWorkflow(w, r, applicationID, appTemporal.QueryProcessingHistory, &history) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application_id": applicationID, "history": history})
}

func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request, applicationID string) {
	var assessment *domain.RiskAssessment
	if !h.queryWorkflow(w, r, applicationID, appTemporal.QueryRiskAssessment, &assessment) {
		return
	}
	if assessment == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "risk assessment not available yet"})
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := h.store.ListAwaitingApproval(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch pending approvals"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) queryWorkflow(w http.ResponseWriter, r *http.Request, applicationID, queryType string, out any) bool {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp, err := h.temporalClient.QueryWorkflow(ctx, h.workflowID(applicationID), "", queryType)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "application not found"})
			return false
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to query workflow"})
		return false
	}
	if err := resp.Get(out); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to decode query result"})
		return false
	}
	return true
}

func (h *Handler) workflowID(applicationID string) string {
	return fmt.Sprintf("%s-%s", h.cfg.WorkflowIDPrefix, applicationID)
}

func validateSubmission(req submitRequest) string {
	if req.ApplicantName == "" {
		return "applicant_name is required"
	}
	if req.Email == "" {
		return "email is required"
	}
	if req.LoanAmount <= 0 {
		return "loan_amount must be positive"
	}
	if req.AnnualIncome < 0 {
		return "annual_income must not be negative"
	}
	if req.BankAccount == "" {
		return "bank_account is required"
	}
	switch req.Purpose {
	case domain.PurposeHomePurchase, domain.PurposeCarPurchase, domain.PurposeBusiness,
		domain.PurposeEducation, domain.PurposeDebtConsolidation, domain.PurposePersonal:
	default:
		return "purpose is invalid"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
