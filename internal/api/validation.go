package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"roster/internal/apperr"
	"roster/internal/roster"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error codes used in FieldError.
const (
	ErrRequired     = "required"
	ErrTypeMismatch = "type_mismatch"
	ErrEnumInvalid  = "enum_invalid"
	ErrInvalidUUID  = "invalid_uuid"
	ErrTooShort     = "too_short"
	ErrTooLong      = "too_long"
	ErrOutOfRange   = "out_of_range"
	ErrBadFormat    = "bad_format"
	ErrInvalidJSON  = "invalid_json"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

var setupOnce sync.Once
var setupErr error

// setupValidator registers the payload tags on gin's validator and makes
// errors report JSON field names.
func setupValidator() error {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			setupErr = errors.New("api: gin validator is not go-playground/validator")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		setupErr = roster.RegisterValidation(v)
	})
	return setupErr
}

// bindJSON decodes and validates the body into dst. Any failure is a
// VALIDATION_ERROR carrying one FieldError per problem.
func bindJSON(c *gin.Context, dst any) error {
	err := decodeJSON(c, dst)
	if err == nil {
		if n, ok := dst.(normalizer); ok {
			n.Normalize()
		}
		err = binding.Validator.ValidateStruct(dst)
	}
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, translateFieldError(fe))
		}
		return apperr.Validation(out)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation([]FieldError{
			ferr(ErrTypeMismatch, typeErr.Field, fmt.Sprintf("Field '%s' expected %s", typeErr.Field, typeErr.Type)),
		})
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation([]FieldError{ferr(ErrInvalidJSON, "", "Request body is empty")})
	}
	return apperr.Validation([]FieldError{ferr(ErrInvalidJSON, "", "Invalid JSON")})
}

// normalizer is implemented by payloads that clean input before validation.
type normalizer interface {
	Normalize()
}

func decodeJSON(c *gin.Context, dst any) error {
	if c.Request == nil || c.Request.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(c.Request.Body).Decode(dst)
}

// fieldPath keeps the JSON names only, dropping Go type names of the root
// and embedded structs: "CreateTeamInput.TeamInput.name" -> "name".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return fe.Field()
	}
	return strings.Join(out, ".")
}

func translateFieldError(fe validator.FieldError) FieldError {
	field := fieldPath(fe)
	text := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return ferr(ErrRequired, field, fmt.Sprintf("Field '%s' is required", field))
	case "oneof":
		return ferr(ErrEnumInvalid, field, fmt.Sprintf("Field '%s' must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
	case "uuid":
		return ferr(ErrInvalidUUID, field, fmt.Sprintf("Field '%s' must be a valid UUID", field))
	case "alphaspace":
		return ferr(ErrBadFormat, field, fmt.Sprintf("Field '%s' may contain only letters and spaces", field))
	case "min":
		if text {
			return ferr(ErrTooShort, field, fmt.Sprintf("Field '%s' must be at least %s characters", field, fe.Param()))
		}
		return ferr(ErrOutOfRange, field, fmt.Sprintf("Field '%s' must be >= %s", field, fe.Param()))
	case "max":
		if text {
			return ferr(ErrTooLong, field, fmt.Sprintf("Field '%s' must be at most %s characters", field, fe.Param()))
		}
		return ferr(ErrOutOfRange, field, fmt.Sprintf("Field '%s' must be <= %s", field, fe.Param()))
	case "gt":
		return ferr(ErrOutOfRange, field, fmt.Sprintf("Field '%s' must be greater than %s", field, fe.Param()))
	}
	return ferr(fe.Tag(), field, fmt.Sprintf("Field '%s' failed on '%s'", field, fe.Tag()))
}

// idParam reads :id and checks it is a UUID.
func idParam(c *gin.Context) (string, error) {
	raw := c.Param("id")
	if _, err := uuid.Parse(raw); err != nil {
		return "", apperr.Validation([]FieldError{ferr(ErrInvalidUUID, "id", "Invalid ID format")})
	}
	return raw, nil
}
