package domain

import "fmt"

// RiskPolicy holds the tiering thresholds. The values are demo defaults, not
// a documented credit policy; deployments tune them through configuration.
type RiskPolicy struct {
	ExcellentScore int     // at or above: base tier LOW
	GoodScore      int     // at or above: base tier MEDIUM
	FairScore      int     // at or above: base tier HIGH, below: VERY_HIGH
	MaxDebtRatio   float64 // debt-to-income above this worsens the tier
	MaxLoanRatio   float64 // loan-to-income above this worsens the tier
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		ExcellentScore: 740,
		GoodScore:      670,
		FairScore:      580,
		MaxDebtRatio:   0.43,
		MaxLoanRatio:   4.0,
	}
}

// AssessRisk combines the bureau credit score with the applicant's debt and
// loan ratios into one of four ordinal tiers. Every contributing condition is
// recorded verbatim in RiskFactors for audit.
func (p RiskPolicy) AssessRisk(app LoanApplication, creditScore int, monthlyDebt float64) RiskAssessment {
	assessment := RiskAssessment{
		CreditScore: creditScore,
		RiskFactors: make([]string, 0),
	}
	if app.AnnualIncome > 0 {
		assessment.DebtToIncomeRatio = monthlyDebt * 12 / app.AnnualIncome
		assessment.LoanToIncomeRatio = app.LoanAmount / app.AnnualIncome
	}

	tier := 0 // 0=LOW .. 3=VERY_HIGH
	switch {
	case creditScore >= p.ExcellentScore:
		tier = 0
	case creditScore >= p.GoodScore:
		tier = 1
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("credit score %d below excellent threshold %d", creditScore, p.ExcellentScore))
	case creditScore >= p.FairScore:
		tier = 2
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("credit score %d below good threshold %d", creditScore, p.GoodScore))
	default:
		tier = 3
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("credit score %d below fair threshold %d", creditScore, p.FairScore))
	}

	if assessment.DebtToIncomeRatio > p.MaxDebtRatio {
		tier++
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("debt-to-income ratio %.2f exceeds %.2f", assessment.DebtToIncomeRatio, p.MaxDebtRatio))
	}
	if assessment.LoanToIncomeRatio > p.MaxLoanRatio {
		tier++
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("loan-to-income ratio %.2f exceeds %.2f", assessment.LoanToIncomeRatio, p.MaxLoanRatio))
	}
	if app.AnnualIncome <= 0 {
		tier = 3
		assessment.RiskFactors = append(assessment.RiskFactors, "annual income not positive")
	}

	if tier > 3 {
		tier = 3
	}
	assessment.RiskLevel = [...]RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskVeryHigh}[tier]
	return assessment
}
