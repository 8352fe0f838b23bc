package errors

import "net/http"

// HTTPStatus maps domain codes to HTTP status codes for client responses.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidOwners, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeAccountNotFound, CodeRequestNotFound:
		return http.StatusNotFound
	case CodeNotOwner, CodeNotRequester, CodeSelfApproval:
		return http.StatusForbidden
	case CodeRequestAlreadyExecuted, CodeAlreadyApproved, CodeQuorumNotMet, CodeInsufficientFunds:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
