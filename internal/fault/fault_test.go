package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(CodeLocked, "traversal is locked").AtStep("3").With("op", "insert")
	assert.Equal(t, "E101: traversal is locked (step=3) op=insert", err.Error())

	wrapped := Wrap(CodeUnreachable, errors.New("disk gone"), "read vertex %d", 4)
	assert.Equal(t, "E301: read vertex 4: disk gone", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(CodeMutation, nil, "never"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code   Code
		config bool
		exec   bool
		res    bool
	}{
		{CodeLocked, true, false, false},
		{CodeStrategyCycle, true, false, false},
		{CodeVerification, true, false, false},
		{CodeEmptyKey, false, true, false},
		{CodeCeiling, false, true, false},
		{CodeWorkerFailure, false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("outer: %w", New(tt.code, "x"))
			assert.Equal(t, tt.config, IsConfiguration(err))
			assert.Equal(t, tt.exec, IsExecution(err))
			assert.Equal(t, tt.res, IsResource(err))
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(CodeNonLocal, "vertex 2 is not local")
	outer := Wrap(CodeWorkerFailure, inner, "partition 1")

	assert.Equal(t, CodeWorkerFailure, CodeOf(outer))
	assert.True(t, Is(outer, CodeNonLocal))
	assert.True(t, Is(outer, CodeWorkerFailure))
	assert.False(t, Is(outer, CodeLocked))
	assert.False(t, Is(errors.New("plain"), CodeLocked))
}

func TestWithDoesNotShareDetails(t *testing.T) {
	base := New(CodeInvalidConfig, "bad").With("a", "1")
	derived := base.With("b", "2")

	require.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
}
