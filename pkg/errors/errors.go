// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeDispatchOperationNotFound Code = "dispatch.operation.not_found"
	CodeDispatchInputInvalid      Code = "dispatch.input.invalid"
	CodeDispatchLocalFailure      Code = "dispatch.local.failure"

	CodeProviderRemoteTransient    Code = "provider.remote.transient"
	CodeProviderRemoteNonRetryable Code = "provider.remote.non_retryable"
	CodeProviderAttemptTimeout     Code = "provider.attempt.timeout"
	CodeProviderResponseInvalid    Code = "provider.response.invalid"
	CodeProviderNotFound           Code = "provider.registry.not_found"

	CodeImagingDecodeInvalid    Code = "imaging.decode.invalid_input"
	CodeImagingEncodeFailure    Code = "imaging.encode.failure"
	CodeImagingTransformFailure Code = "imaging.transform.failure"

	CodeAuthCredentialsInvalid Code = "auth.credentials.invalid"
	CodeAuthTokenInvalid       Code = "auth.token.invalid"
	CodeAuthTokenExpired       Code = "auth.token.expired"
	CodeAuthUserNotFound       Code = "auth.user.not_found"
	CodeAuthUserConflict       Code = "auth.user.conflict"
	CodeAuthOAuthDenied        Code = "auth.oauth.denied"

	CodeBillingPlanNotFound       Code = "billing.plan.not_found"
	CodeBillingQuotaExceeded      Code = "billing.quota.exceeded"
	CodeBillingSubscriptionLapsed Code = "billing.subscription.expired"
	CodeBillingVerifyFailure      Code = "billing.verify.failure"
	CodeBillingPurchaseInvalid    Code = "billing.purchase.invalid"

	CodeLedgerTransactionNotFound Code = "ledger.transaction.not_found"
	CodeLedgerStatusInvalid       Code = "ledger.status.invalid"

	CodeStoreEntityNotFound  Code = "store.entity.get.not_found"
	CodeStoreConflict        Code = "store.conflict"
	CodeStoreInvalidInput    Code = "store.invalid_input"
	CodeStoreDatabaseFailure Code = "store.database.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput   Code = "secret.invalid_input"
	CodeSecretNotFound       Code = "secret.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldUserID(value string) Attr {
	return Field("user_id", value)
}

func FieldPlanID(value string) Attr {
	return Field("plan_id", value)
}

func FieldTransactionID(value string) Attr {
	return Field("transaction_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	code := CodeOf(err)
	r := reason(code)
	if r == "expired" {
		return strings.HasPrefix(string(code), "auth.")
	}
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

// IsTransient reports whether err represents a remote failure that may
// succeed on retry. Timeouts count as transient.
func IsTransient(err error) bool {
	r := reason(CodeOf(err))
	return r == "transient" || r == "timeout"
}

// IsNonRetryable reports whether err represents a remote rejection that
// retrying cannot fix.
func IsNonRetryable(err error) bool {
	return reason(CodeOf(err)) == "non_retryable"
}

func IsQuotaExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeAuthCredentialsInvalid), HasCode(err, CodeAuthTokenInvalid):
		// Bad credentials are an authentication failure, not a malformed
		// request, despite the "invalid" reason.
		return http.StatusUnauthorized
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case HasCode(err, CodeBillingSubscriptionLapsed):
		return http.StatusPaymentRequired
	case IsUnauthorized(err):
		if reason(CodeOf(err)) == "forbidden" || reason(CodeOf(err)) == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
