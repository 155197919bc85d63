package modal

// RiskAssessment is computed per request and never persisted as-is.
type RiskAssessment struct {
	Score    int      `json:"score"`
	Decision Decision `json:"decision"`
	Reasons  []string `json:"reasons"`
}

func (a RiskAssessment) Rejected() bool { return a.Decision == DecisionReject }
func (a RiskAssessment) Flagged() bool  { return a.Decision == DecisionFlag }
