package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roster/internal/apperr"
	"roster/internal/query"
	"roster/internal/store"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// Error codes for store constraint violations.
const (
	CodeDuplicateEntry  = "DUPLICATE_ENTRY"
	CodeForeignKeyError = "FOREIGN_KEY_ERROR"
	CodeInvalidValue    = "INVALID_VALUE"
)

type envelope struct {
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Results    *int              `json:"results,omitempty"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
	Data       any               `json:"data"`
}

func sendSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Status: statusSuccess, Message: "success", Data: data})
}

func sendList(c *gin.Context, data any, p query.Pagination) {
	total := p.Total
	c.JSON(http.StatusOK, envelope{
		Status:     statusSuccess,
		Message:    "success",
		Results:    &total,
		Pagination: &p,
		Data:       data,
	})
}

func sendCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, envelope{Status: statusSuccess, Message: "Resource created successfully", Data: data})
}

func sendNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

type errorBody struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// problem is an error resolved for the wire.
type problem struct {
	status      int
	code        string
	message     string
	details     any
	operational bool
}

func classify(err error) problem {
	if e, ok := apperr.As(err); ok {
		p := problem{code: string(e.Kind), message: e.Message, details: e.Details, operational: e.Operational()}
		switch {
		case e.Kind == apperr.KindNotFound:
			p.status = http.StatusNotFound
		case e.Operational():
			p.status = http.StatusBadRequest
			if p.details == nil && len(e.Fields) > 0 {
				p.details = gin.H{"fields": e.Fields}
			}
		default:
			p.status = http.StatusInternalServerError
		}
		return p
	}

	if ce, ok := store.AsConstraint(err); ok {
		p := problem{status: http.StatusBadRequest, operational: true, details: gin.H{"field": ce.Field}}
		switch ce.Kind {
		case store.ConstraintUnique:
			p.code, p.message = CodeDuplicateEntry, fmt.Sprintf("Duplicate value for %s", ce.Field)
		case store.ConstraintForeignKey:
			p.code, p.message = CodeForeignKeyError, "Related record constraint failed"
		default:
			p.code, p.message = CodeInvalidValue, fmt.Sprintf("Invalid value for %s", ce.Field)
		}
		return p
	}

	if errors.Is(err, store.ErrNotFound) {
		return problem{status: http.StatusNotFound, code: string(apperr.KindNotFound), message: "No document found with that ID", operational: true}
	}
	return problem{status: http.StatusInternalServerError}
}

// writeError renders err. Outside development, internal failures carry
// only a generic message.
func writeError(c *gin.Context, log *zap.Logger, dev bool, err error) {
	p := classify(err)
	fields := []zap.Field{zap.String("request_id", requestIDFrom(c)), zap.Error(err)}
	if p.operational {
		log.Debug("request failed", fields...)
	} else {
		log.Error("request failed", fields...)
	}

	body := errorBody{Status: statusFail, Message: p.message, ErrorCode: p.code, Details: p.details, Timestamp: time.Now().UTC()}
	if p.status >= http.StatusInternalServerError {
		body = errorBody{Status: statusError, Message: "Something went wrong", Timestamp: body.Timestamp}
	}
	if dev {
		body.Error = err.Error()
		if !p.operational {
			body.ErrorCode = p.code
		}
	}
	c.AbortWithStatusJSON(p.status, body)
}

// fail hands err to the error boundary.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// errorBoundary renders the last error a handler recorded.
func errorBoundary(log *zap.Logger, dev bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, log, dev, c.Errors.Last().Err)
	}
}
