package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssessRisk_ExcellentScoreLowRatios(t *testing.T) {
	policy := DefaultRiskPolicy()
	app := LoanApplication{LoanAmount: 25_000, AnnualIncome: 75_000}

	assessment := policy.AssessRisk(app, 800, 500)
	require.Equal(t, RiskLow, assessment.RiskLevel)
	require.Equal(t, 800, assessment.CreditScore)
	require.InDelta(t, 0.08, assessment.DebtToIncomeRatio, 0.001)
	require.Empty(t, assessment.RiskFactors)
}

func TestAssessRisk_PoorScoreIsVeryHigh(t *testing.T) {
	policy := DefaultRiskPolicy()
	app := LoanApplication{LoanAmount: 75_000, AnnualIncome: 25_000}

	assessment := policy.AssessRisk(app, 450, 400)
	require.Equal(t, RiskVeryHigh, assessment.RiskLevel)
	require.NotEmpty(t, assessment.RiskFactors)
	require.Contains(t, assessment.RiskFactors[0], "credit score 450")
}

func TestAssessRisk_RatiosWorsenTier(t *testing.T) {
	policy := DefaultRiskPolicy()
	// Good score, but loan is five times income.
	app := LoanApplication{LoanAmount: 250_000, AnnualIncome: 50_000}

	assessment := policy.AssessRisk(app, 760, 2_500)
	require.Equal(t, RiskHigh, assessment.RiskLevel)
	require.Len(t, assessment.RiskFactors, 2)
	require.Contains(t, assessment.RiskFactors[0], "debt-to-income")
	require.Contains(t, assessment.RiskFactors[1], "loan-to-income")
}

func TestAssessRisk_TierIsCapped(t *testing.T) {
	policy := DefaultRiskPolicy()
	app := LoanApplication{LoanAmount: 500_000, AnnualIncome: 20_000}

	assessment := policy.AssessRisk(app, 400, 5_000)
	require.Equal(t, RiskVeryHigh, assessment.RiskLevel)
}

func TestAssessRisk_ZeroIncome(t *testing.T) {
	policy := DefaultRiskPolicy()
	app := LoanApplication{LoanAmount: 10_000}

	assessment := policy.AssessRisk(app, 780, 0)
	require.Equal(t, RiskVeryHigh, assessment.RiskLevel)
	require.Contains(t, assessment.RiskFactors, "annual income not positive")
}
