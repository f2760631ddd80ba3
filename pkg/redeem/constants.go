package redeem

const (
	operationRedeem      = "redeem"
	operationIssue       = "issue"
	operationCreateCode  = "create_code"
	operationDisableCode = "disable_code"
	operationExpireCodes = "expire_codes"
	operationGachaPlay   = "gacha_play"

	operationStatusOK       = "ok"
	operationStatusError    = "error"
	operationStatusReplayed = "replayed"
	operationStatusSkipped  = "skipped"

	referenceTypeCode      = "redemption_code"
	referenceTypeCodeBadge = "redemption_code_badge"

	maxUserAgentLength = 500
	gachaMaxAttempts   = 5
	defaultGachaCost   = 50
	defaultPageLimit   = 20
	maxPageLimit       = 100
	defaultItemAmount  = 1
)
