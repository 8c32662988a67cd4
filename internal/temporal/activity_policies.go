package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyValidateDocuments      = "validate_documents"
	ActivityPolicyCalculateRiskScore     = "calculate_risk_score"
	ActivityPolicyDisburseLoan           = "disburse_loan"
	ActivityPolicyCompensateDisbursement = "compensate_disbursement"
	ActivityPolicySendNotification       = "send_notification"
	ActivityPolicyRecordTransition       = "record_transition"
)

// ErrTypeApplicantNotFound marks bureau lookups that can never succeed on
// retry. The risk-scoring retry policy excludes it.
const ErrTypeApplicantNotFound = "ApplicantNotFound"

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var activityPolicies = map[string]activityPolicy{
	// Document validation is a pure rule check; retries only cover store
	// hiccups when persisting the outcome.
	ActivityPolicyValidateDocuments: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
	// The bureau fails transiently (timeouts, rate limits); bounded
	// exponential backoff, then the whole application aborts.
	ActivityPolicyCalculateRiskScore: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:        1 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeApplicantNotFound},
		},
	},
	// A failed transfer is never blindly retried; failure routes to the
	// compensation path instead. Timeout covers the PENDING settle poll.
	ActivityPolicyDisburseLoan: {
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	// Compensation is idempotent, so crash-retry is safe.
	ActivityPolicyCompensateDisbursement: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	},
	ActivityPolicySendNotification: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyRecordTransition: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}
