// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
// Codes follow the shape "area.operation.reason"; the trailing reason
// segment drives classification (validation, not-found, resource, ...).
type Code string

const (
	CodeStoreRecordNotFound     Code = "store.record.get.not_found"
	CodeStoreRecordInvalid      Code = "store.record.invalid_input"
	CodeStoreRecordConflict     Code = "store.record.conflict"
	CodeStoreDatabaseBusy       Code = "store.database.busy"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"

	CodeIndexConfigInvalid     Code = "index.config.invalid_value"
	CodeIndexDimensionMismatch Code = "index.vector.dimension_mismatch"
	CodeIndexNotReady          Code = "index.search.not_ready"
	CodeIndexCapacityExceeded  Code = "index.insert.capacity_exceeded"

	CodeCacheDatabaseFailure Code = "cache.database.failure"
	CodeCacheEntryCorrupt    Code = "cache.entry.corrupt"

	CodePromotionCycleFailure   Code = "promotion.cycle.failure"
	CodePromotionRecordConflict Code = "promotion.record.conflict"

	CodeProviderEmbedFailure  Code = "provider.embed.upstream_failure"
	CodeProviderRerankFailure Code = "provider.rerank.upstream_failure"
	CodeProviderDegraded      Code = "provider.embed.degraded"

	CodeQueryRequestInvalid Code = "query.request.invalid_input"
	CodeQuerySearchFailure  Code = "query.search.failure"
	CodeQuerySearchTimeout  Code = "query.search.timeout"

	CodeRetryExhausted Code = "retry.attempts.exhausted"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeInternalFailure Code = "internal.failure"
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

func FieldRecordID(value string) Attr {
	return Field("record_id", value)
}

func FieldLayer(value string) Attr {
	return Field("layer", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
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
		code = CodeInternalFailure
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

// IsNotFound reports whether err identifies a missing record, entry, or model.
// Callers decide fallback; a missing referent is a normal outcome for weak
// cross-tier references.
func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

// IsValidation reports whether err is a validation failure (bad configuration,
// dimension mismatch). Validation errors are never retried.
func IsValidation(err error) bool {
	switch reason(CodeOf(err)) {
	case "invalid", "invalid_input", "invalid_value", "invalid_format", "dimension_mismatch":
		return true
	}
	return false
}

// IsResource reports whether err is a transient resource failure (lock busy,
// index not initialized, resource temporarily unavailable).
func IsResource(err error) bool {
	switch reason(CodeOf(err)) {
	case "busy", "locked", "not_ready", "unavailable":
		return true
	}
	return false
}

// IsConflict reports whether err indicates a concurrent modification of the
// same record. Conflicts are surfaced, not retried: the caller must re-read
// and re-apply.
func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

// IsInference reports whether err comes from an embedding or reranking
// provider. Inference failures degrade gracefully rather than failing a query.
func IsInference(err error) bool {
	switch reason(CodeOf(err)) {
	case "upstream_failure", "degraded":
		return true
	}
	return false
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsExhausted(err error) bool {
	return reason(CodeOf(err)) == "exhausted"
}

// Retryable reports whether err may succeed on a later attempt and is safe
// for the bounded-retry wrapper to re-issue. Only resource-class failures
// qualify; everything else propagates immediately.
func Retryable(err error) bool {
	return IsResource(err)
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
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
