// Package apperr holds the error taxonomy shared by the registry, the query
// translator and the entity services.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindInvalidField   Kind = "INVALID_FIELD"
	KindInvalidPage    Kind = "INVALID_PAGE"
	KindInvalidLimit   Kind = "INVALID_LIMIT"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindValidation     Kind = "VALIDATION_ERROR"
	KindNotFound       Kind = "RECORD_NOT_FOUND"
	KindQueryExecution Kind = "QUERY_EXECUTION_ERROR"
	KindTransaction    Kind = "TRANSACTION_ERROR"
	KindConfiguration  Kind = "CONFIGURATION_ERROR"
)

// Error is the single error type for every kind in the taxonomy.
// Fields lists offending field names for INVALID_FIELD / INVALID_INPUT.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Details any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Operational reports whether the error is caused by the client and is safe
// to describe in a response.
func (e *Error) Operational() bool {
	switch e.Kind {
	case KindQueryExecution, KindTransaction, KindConfiguration:
		return false
	}
	return true
}

func InvalidField(entity string, fields []string) *Error {
	return &Error{
		Kind:    KindInvalidField,
		Message: fmt.Sprintf("invalid field(s) for %s", entity),
		Fields:  fields,
	}
}

func InvalidPage(raw any) *Error {
	return &Error{Kind: KindInvalidPage, Message: fmt.Sprintf("page must be >= 1, got %v", raw)}
}

func InvalidLimit(raw any, max int) *Error {
	return &Error{Kind: KindInvalidLimit, Message: fmt.Sprintf("limit must be between 1 and %d, got %v", max, raw)}
}

func InvalidInput(msg string, fields ...string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Fields: fields}
}

func Validation(details any) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Details: details}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "No document found with that ID",
		Details: map[string]string{"entity": entity, "id": id},
	}
}

func QueryExecution(entity string, err error) *Error {
	return &Error{Kind: KindQueryExecution, Message: fmt.Sprintf("query on %s failed", entity), Err: err}
}

func Transaction(err error) *Error {
	return &Error{Kind: KindTransaction, Message: "transaction failed", Err: err}
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// As unwraps err into an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
