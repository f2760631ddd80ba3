package ledger

const (
	operationCredit = "credit"
	operationDebit  = "debit"

	operationStatusOK         = "ok"
	operationStatusError      = "error"
	operationStatusRolledBack = "rolled_back"

	defaultPageLimit = 20
	maxPageLimit     = 100

	errorOperationService = "service"
	errorSubjectBalance   = "balance"
	errorCodeNegative     = "negative"
)

// Reason codes written by the rewards core.
var (
	ReasonCodeRedeem      = Reason{value: "code_redeem"}
	ReasonCodeBadgeReward = Reason{value: "code_badge_reward"}
	ReasonGachaSpend      = Reason{value: "gacha_spend"}
	ReasonAdminGrant      = Reason{value: "admin_grant"}
)
