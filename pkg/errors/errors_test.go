// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package errors_test

import (
	stderrors "errors"
	"testing"

	strataerr "github.com/strata-dev/strata/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := strataerr.New(
		strataerr.CodeStoreRecordNotFound,
		"record missing from tier",
		strataerr.FieldRecordID("rec-123"),
		strataerr.FieldLayer("interact"),
	)

	require.Error(t, err)
	assert.Equal(t, strataerr.CodeStoreRecordNotFound, strataerr.CodeOf(err))
	assert.True(t, strataerr.HasCode(err, strataerr.CodeStoreRecordNotFound))

	fields := strataerr.FieldsOf(err)
	assert.Equal(t, "rec-123", fields["record_id"])
	assert.Equal(t, "interact", fields["layer"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := strataerr.Errorf(strataerr.CodeIndexDimensionMismatch, "vector has %d dims, index wants %d", 3, 384)
	require.Error(t, err)
	assert.Equal(t, strataerr.CodeIndexDimensionMismatch, strataerr.CodeOf(err))
	assert.Contains(t, err.Error(), "vector has 3 dims, index wants 384")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := strataerr.Errorf(strataerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, strataerr.CodeStoreDatabaseFailure, strataerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / With
// ---------------------------------------------------------------------------

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, strataerr.Wrap(nil, strataerr.CodeStoreDatabaseFailure, "ignored"))
	assert.NoError(t, strataerr.Wrapf(nil, strataerr.CodeStoreDatabaseFailure, "ignored"))
	assert.NoError(t, strataerr.With(nil, strataerr.Field("k", "v")))
}

func TestWrapPreservesInnerAndAddsFields(t *testing.T) {
	inner := stderrors.New("database is locked")
	err := strataerr.Wrap(inner, strataerr.CodeStoreDatabaseBusy, "inserting record",
		strataerr.FieldLayer("insights"))

	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, strataerr.CodeStoreDatabaseBusy, strataerr.CodeOf(err))
	assert.Equal(t, "insights", strataerr.FieldsOf(err)["layer"])
}

func TestWithKeepsExistingCode(t *testing.T) {
	err := strataerr.New(strataerr.CodeIndexNotReady, "index not initialized")
	err = strataerr.With(err, strataerr.Field("tier", "assets"))

	assert.Equal(t, strataerr.CodeIndexNotReady, strataerr.CodeOf(err))
	assert.Equal(t, "assets", strataerr.FieldsOf(err)["tier"])
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", strataerr.New(strataerr.CodeStoreRecordNotFound, "gone"), strataerr.IsNotFound, true},
		{"validation config", strataerr.New(strataerr.CodeIndexConfigInvalid, "ef < M"), strataerr.IsValidation, true},
		{"validation dimension", strataerr.New(strataerr.CodeIndexDimensionMismatch, "dims"), strataerr.IsValidation, true},
		{"resource busy", strataerr.New(strataerr.CodeStoreDatabaseBusy, "locked"), strataerr.IsResource, true},
		{"resource not ready", strataerr.New(strataerr.CodeIndexNotReady, "cold"), strataerr.IsResource, true},
		{"conflict", strataerr.New(strataerr.CodeStoreRecordConflict, "modified"), strataerr.IsConflict, true},
		{"inference upstream", strataerr.New(strataerr.CodeProviderEmbedFailure, "down"), strataerr.IsInference, true},
		{"inference degraded", strataerr.New(strataerr.CodeProviderDegraded, "fallback"), strataerr.IsInference, true},
		{"timeout", strataerr.New(strataerr.CodeQuerySearchTimeout, "slow"), strataerr.IsTimeout, true},
		{"exhausted", strataerr.New(strataerr.CodeRetryExhausted, "gave up"), strataerr.IsExhausted, true},
		{"not found is not validation", strataerr.New(strataerr.CodeStoreRecordNotFound, "gone"), strataerr.IsValidation, false},
		{"failure is not resource", strataerr.New(strataerr.CodeStoreDatabaseFailure, "broken"), strataerr.IsResource, false},
		{"plain error has no class", stderrors.New("plain"), strataerr.IsResource, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestRetryableOnlyCoversResourceErrors(t *testing.T) {
	assert.True(t, strataerr.Retryable(strataerr.New(strataerr.CodeStoreDatabaseBusy, "locked")))
	assert.True(t, strataerr.Retryable(strataerr.New(strataerr.CodeIndexNotReady, "not ready")))

	assert.False(t, strataerr.Retryable(strataerr.New(strataerr.CodeIndexDimensionMismatch, "dims")))
	assert.False(t, strataerr.Retryable(strataerr.New(strataerr.CodeStoreRecordConflict, "conflict")))
	assert.False(t, strataerr.Retryable(strataerr.New(strataerr.CodeStoreRecordNotFound, "gone")))
	assert.False(t, strataerr.Retryable(nil))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, strataerr.Code(""), strataerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, strataerr.Code(""), strataerr.CodeOf(nil))
}
