package modal

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionFlag   Decision = "flag"
	DecisionReject Decision = "reject"
)

type ReviewOutcome string

const (
	ReviewApproved ReviewOutcome = "APPROVED"
	ReviewRejected ReviewOutcome = "REJECTED"
	ReviewExpired  ReviewOutcome = "EXPIRED"
)
