// Package errors provides structured error handling for the vault engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidOwners Code = "INVALID_OWNERS"
	CodeInvalidAmount Code = "INVALID_AMOUNT"

	// Lookup errors
	CodeAccountNotFound Code = "ACCOUNT_NOT_FOUND"
	CodeRequestNotFound Code = "REQUEST_NOT_FOUND"

	// Authorization errors
	CodeNotOwner     Code = "NOT_OWNER"
	CodeNotRequester Code = "NOT_REQUESTER"
	CodeSelfApproval Code = "SELF_APPROVAL"

	// State errors
	CodeRequestAlreadyExecuted Code = "REQUEST_ALREADY_EXECUTED"
	CodeAlreadyApproved        Code = "ALREADY_APPROVED"
	CodeQuorumNotMet           Code = "QUORUM_NOT_MET"

	// Resource errors
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// Infrastructure errors
	CodeInternal Code = "INTERNAL"
)
