package event

// AccountCreatedPayload captures the payload for account.created events.
type AccountCreatedPayload struct {
	AccountID uint64   `json:"account_id"`
	Owners    []string `json:"owners"`
}

// DepositPayload captures the payload for account.deposited events.
type DepositPayload struct {
	Depositor string `json:"depositor"`
	AccountID uint64 `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// WithdrawalRequestedPayload captures the payload for withdrawal.requested events.
type WithdrawalRequestedPayload struct {
	Requester    string `json:"requester"`
	AccountID    uint64 `json:"account_id"`
	WithdrawalID uint64 `json:"withdrawal_id"`
	Amount       int64  `json:"amount"`
}

// WithdrawalApprovedPayload captures the payload for withdrawal.approved events.
type WithdrawalApprovedPayload struct {
	Approver     string `json:"approver"`
	AccountID    uint64 `json:"account_id"`
	WithdrawalID uint64 `json:"withdrawal_id"`
	Approvals    int    `json:"approvals"`
}

// WithdrawalExecutedPayload captures the payload for withdrawal.executed events.
type WithdrawalExecutedPayload struct {
	AccountID    uint64 `json:"account_id"`
	WithdrawalID uint64 `json:"withdrawal_id"`
	Amount       int64  `json:"amount"`
}
