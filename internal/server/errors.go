package server

import (
	"errors"
	"net/http"
	"strings"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	chainingdomain "github.com/anoteng/regnskap/internal/chaining/domain"
	csvimportdomain "github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/anoteng/regnskap/internal/journal"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Difference string            `json:"difference,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var jErr *journal.ValidationError
	if errors.As(err, &jErr) {
		payload := errorPayload{
			Type:    "validation_error",
			Message: jErr.Message,
			Errors: []ValidationError{
				{Field: "entries", Code: string(jErr.Code), Message: jErr.Message},
			},
		}
		if jErr.Code == journal.CodeUnbalanced {
			payload.Difference = jErr.Difference.StringFixed(2)
		}
		return http.StatusBadRequest, payload
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if errors.Is(err, transactiondomain.ErrInvalidState) {
		message := "transaction is not in a state that allows this operation"
		var stateErr *transactiondomain.StateError
		if errors.As(err, &stateErr) {
			message = stateErr.Error()
		}
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: message,
		}
	}

	if isProviderError(err) {
		payload := errorPayload{
			Type:    "provider_error",
			Message: "bank provider request failed",
		}
		var syncErr *banksyncdomain.SyncError
		if errors.As(err, &syncErr) {
			payload.Errors = []ValidationError{{Field: "sync", Code: syncErr.Code, Message: syncErr.Message}}
		}
		return http.StatusBadGateway, payload
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests, try again later",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, transactiondomain.ErrConcurrentModification):
		return http.StatusConflict, errorPayload{
			Type:    "concurrent_modification",
			Message: "transaction was modified by another request",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isAccountValidationError(err),
		isBankAccountValidationError(err),
		isTransactionValidationError(err),
		isCSVValidationError(err),
		isBankSyncValidationError(err),
		isChainingValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, accountdomain.ErrInvalidLedger),
		errors.Is(err, accountdomain.ErrInvalidID),
		errors.Is(err, accountdomain.ErrInvalidNumber),
		errors.Is(err, accountdomain.ErrInvalidName),
		errors.Is(err, accountdomain.ErrInvalidType),
		errors.Is(err, accountdomain.ErrInvalidParent),
		errors.Is(err, accountdomain.ErrParentCycle),
		errors.Is(err, accountdomain.ErrImmutableField):
		return true
	}
	return false
}

func isBankAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, bankaccountdomain.ErrInvalidLedger),
		errors.Is(err, bankaccountdomain.ErrInvalidID),
		errors.Is(err, bankaccountdomain.ErrInvalidName),
		errors.Is(err, bankaccountdomain.ErrInvalidType),
		errors.Is(err, bankaccountdomain.ErrInvalidGLAccount),
		errors.Is(err, bankaccountdomain.ErrInactive):
		return true
	}
	return false
}

func isTransactionValidationError(err error) bool {
	switch {
	case errors.Is(err, transactiondomain.ErrInvalidLedger),
		errors.Is(err, transactiondomain.ErrInvalidID),
		errors.Is(err, transactiondomain.ErrInvalidUser),
		errors.Is(err, transactiondomain.ErrInvalidDate),
		errors.Is(err, transactiondomain.ErrInvalidDescription),
		errors.Is(err, transactiondomain.ErrInvalidReference),
		errors.Is(err, transactiondomain.ErrInvalidStatus),
		errors.Is(err, transactiondomain.ErrInvalidSource),
		errors.Is(err, transactiondomain.ErrInvalidEntry),
		errors.Is(err, transactiondomain.ErrInvalidAccount),
		errors.Is(err, transactiondomain.ErrInactiveAccount),
		errors.Is(err, transactiondomain.ErrInvalidPageToken):
		return true
	}
	return false
}

func isCSVValidationError(err error) bool {
	switch {
	case errors.Is(err, csvimportdomain.ErrInvalidLedger),
		errors.Is(err, csvimportdomain.ErrInvalidUser),
		errors.Is(err, csvimportdomain.ErrInvalidID),
		errors.Is(err, csvimportdomain.ErrInvalidName),
		errors.Is(err, csvimportdomain.ErrMissingColumn),
		errors.Is(err, csvimportdomain.ErrInvalidDateFormat),
		errors.Is(err, csvimportdomain.ErrInvalidSeparator),
		errors.Is(err, csvimportdomain.ErrInvalidDelimiter),
		errors.Is(err, csvimportdomain.ErrInvalidSkipRows),
		errors.Is(err, csvimportdomain.ErrMappingRequired),
		errors.Is(err, csvimportdomain.ErrEmptyFile),
		errors.Is(err, csvimportdomain.ErrInvalidEncoding),
		errors.Is(err, csvimportdomain.ErrMalformedCSV),
		errors.Is(err, csvimportdomain.ErrInvalidFileName):
		return true
	}
	return false
}

func isBankSyncValidationError(err error) bool {
	switch {
	case errors.Is(err, banksyncdomain.ErrInvalidLedger),
		errors.Is(err, banksyncdomain.ErrInvalidUser),
		errors.Is(err, banksyncdomain.ErrInvalidID),
		errors.Is(err, banksyncdomain.ErrInvalidImportStatus),
		errors.Is(err, banksyncdomain.ErrInvalidSyncType),
		errors.Is(err, banksyncdomain.ErrInvalidFrequency),
		errors.Is(err, banksyncdomain.ErrProviderInactive),
		errors.Is(err, banksyncdomain.ErrUnsupportedProvider),
		errors.Is(err, banksyncdomain.ErrInvalidState),
		errors.Is(err, banksyncdomain.ErrStateExpired),
		errors.Is(err, banksyncdomain.ErrNoExternalAccounts),
		errors.Is(err, banksyncdomain.ErrExternalAccountUnknown):
		return true
	}
	return false
}

func isChainingValidationError(err error) bool {
	switch {
	case errors.Is(err, chainingdomain.ErrInvalidLedger),
		errors.Is(err, chainingdomain.ErrInvalidID),
		errors.Is(err, chainingdomain.ErrSameTransaction),
		errors.Is(err, chainingdomain.ErrNotSingleEntry),
		errors.Is(err, chainingdomain.ErrSameAccount),
		errors.Is(err, chainingdomain.ErrSameSide):
		return true
	}
	return false
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidLedger),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, accountdomain.ErrDuplicateNumber),
		errors.Is(err, accountdomain.ErrAccountInUse),
		errors.Is(err, transactiondomain.ErrAlreadyReversed),
		errors.Is(err, csvimportdomain.ErrDuplicateMapping),
		errors.Is(err, banksyncdomain.ErrConnectionExists),
		errors.Is(err, banksyncdomain.ErrConnectionDisconnected),
		errors.Is(err, banksyncdomain.ErrStateUsed),
		errors.Is(err, banksyncdomain.ErrStagedNotIgnorable),
		db.IsDuplicateKeyErr(err):
		return true
	}
	return false
}

func conflictMessage(err error) string {
	var inUse *accountdomain.InUseError
	if errors.As(err, &inUse) {
		return inUse.Error()
	}
	if db.IsDuplicateKeyErr(err) {
		return "conflict"
	}
	return strings.ReplaceAll(rootCode(err), "_", " ")
}

func isProviderError(err error) bool {
	var providerErr *banksyncdomain.ProviderError
	var syncErr *banksyncdomain.SyncError
	switch {
	case errors.As(err, &providerErr),
		errors.As(err, &syncErr),
		errors.Is(err, banksyncdomain.ErrProviderMisconfigured),
		errors.Is(err, banksyncdomain.ErrTokenUnavailable):
		return true
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrTemplateNotFound),
		errors.Is(err, bankaccountdomain.ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, csvimportdomain.ErrNotFound),
		errors.Is(err, csvimportdomain.ErrPresetNotFound),
		errors.Is(err, banksyncdomain.ErrNotFound),
		errors.Is(err, banksyncdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// rootCode is the innermost error text, which for domain sentinels is the
// snake_case code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return rootCode(err)
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "":
		return "invalid value"
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}
