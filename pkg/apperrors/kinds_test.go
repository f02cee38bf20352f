package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(base))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("ping: %w", context.DeadlineExceeded)))

	wrapped := fmt.Errorf("sampling: %w", NewScanError(KindPermissionDeniedPartial, StageSample, "public.secrets", base))
	assert.Equal(t, KindPermissionDeniedPartial, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestNewScanError_Nil(t *testing.T) {
	assert.NoError(t, NewScanError(KindInternal, StageDocs, "t", nil))
}

func TestScanError_Message(t *testing.T) {
	err := NewScanError(KindTimeoutPartial, StageSample, "public.orders", errors.New("deadline"))
	assert.Equal(t, "sample: public.orders (timeout-partial): deadline", err.Error())

	err = NewScanError(KindAuthFailed, StageConnect, "", errors.New("bad password"))
	assert.Equal(t, "connect (auth-failed): bad password", err.Error())
}

func TestKind_Policies(t *testing.T) {
	assert.True(t, KindPermissionDeniedPartial.IsRecoverable())
	assert.True(t, KindTimeoutPartial.IsRecoverable())
	assert.False(t, KindInternal.IsRecoverable())

	assert.True(t, KindAuthFailed.AbortsBeforeRun())
	assert.True(t, KindConnectionUnreachable.AbortsBeforeRun())
	assert.False(t, KindPermissionDeniedPartial.AbortsBeforeRun())
}
