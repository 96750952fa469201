package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

//Error Codes
type ErrCode string

var (
	FAILED_REQUEST      ErrCode = "REQUEST_FAILED"
	BAD_REQUEST         ErrCode = "FAILED_TO_DECODE"
	NOT_FOUND           ErrCode = "NOT_FOUND"
	LOCKED              ErrCode = "LOCKED"
	CONFLICT            ErrCode = "CONFLICT"
	DUPLICATE_BOOKING   ErrCode = "DUPLICATE_BOOKING"
	CLOSED_DAY          ErrCode = "CLOSED_DAY"
	INVALID_SLOT        ErrCode = "INVALID_SLOT"
	ACCOUNT_EXISTS      ErrCode = "ACCOUNT_EXISTS"
	INVALID_CREDENTIALS ErrCode = "INVALID_CREDENTIALS"
	FORBIDDEN           ErrCode = "FORBIDDEN"
	UNAUTHORIZED        ErrCode = "UNAUTHORIZED"
)

var (
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("resource not found")
	ErrLocked             = errors.New("resource is locked")
	ErrConflict           = errors.New("conflict")
	ErrDuplicateBooking   = errors.New("booking already exists for this slot")
	ErrClosedDay          = errors.New("school is closed on this day")
	ErrInvalidSlot        = errors.New("unknown time slot")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("operation not allowed")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
