package domain

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable identifier of an error kind.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeItemNotFound      Code = "ITEM_NOT_FOUND"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeEmptyOrder        Code = "EMPTY_ORDER"
	CodeDuplicateRequest  Code = "DUPLICATE_REQUEST"
	CodeTransaction       Code = "TRANSACTION_ERROR"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeForbidden         Code = "FORBIDDEN"
)

// Error is the error type returned by every core operation.
// Field names the offending input field, ItemID the offending item.
type Error struct {
	Code    Code
	Message string
	Field   string
	ItemID  string
}

func (e *Error) Error() string {
	switch {
	case e.ItemID != "":
		return fmt.Sprintf("%s: %s (item %s)", e.Code, e.Message, e.ItemID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Is matches on Code. A target carrying an ItemID only matches errors for that item.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.ItemID == "" || t.ItemID == e.ItemID
}

// Sentinels for errors.Is.
var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrItemNotFound      = &Error{Code: CodeItemNotFound, Message: "item not found"}
	ErrInvalidQuantity   = &Error{Code: CodeInvalidQuantity, Message: "quantity must be a positive integer"}
	ErrInsufficientStock = &Error{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrEmptyOrder        = &Error{Code: CodeEmptyOrder, Message: "order must contain at least one item"}
	ErrDuplicateRequest  = &Error{Code: CodeDuplicateRequest, Message: "duplicate request"}
	ErrTransaction       = &Error{Code: CodeTransaction, Message: "transaction failed, retry the operation"}
	ErrUnauthenticated   = &Error{Code: CodeUnauthenticated, Message: "access denied, no token provided"}
	ErrSessionExpired    = &Error{Code: CodeSessionExpired, Message: "session expired, please log in again"}
	ErrInvalidCredential = &Error{Code: CodeInvalidCredential, Message: "invalid token, please log in again"}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "access denied, admins only"}
)

func NewValidationError(field, message string) error {
	return &Error{Code: CodeValidation, Message: message, Field: field}
}

func NotFound(what, id string) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func ItemNotFound(itemID string) error {
	return &Error{Code: CodeItemNotFound, Message: "item not found", ItemID: itemID}
}

func InvalidQuantity(itemID string) error {
	return &Error{Code: CodeInvalidQuantity, Message: "quantity must be a positive integer", ItemID: itemID}
}

func InsufficientStock(itemID string) error {
	return &Error{Code: CodeInsufficientStock, Message: "not enough stock", ItemID: itemID}
}

func EmptyOrder() error {
	return &Error{Code: CodeEmptyOrder, Message: ErrEmptyOrder.Message}
}

func DuplicateRequest(requestID string) error {
	return &Error{Code: CodeDuplicateRequest, Message: fmt.Sprintf("request %s was already submitted", requestID)}
}

// Transaction hides the underlying fault; callers log it before converting.
func Transaction() error {
	return &Error{Code: CodeTransaction, Message: ErrTransaction.Message}
}

// CodeOf returns the code carried by err. Errors that are not *Error are storage
// or programming faults and report CodeTransaction.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeTransaction
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
