package sensor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{code: 1, want: PermissionDenied},
		{code: 2, want: Unavailable},
		{code: 3, want: Timeout},
		{code: 0, want: Unknown},
		{code: 42, want: Unknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			got := KindFromCode(tt.code)
			assert.Equal(t, tt.want, got)
			if tt.want != Unknown {
				assert.Equal(t, tt.code, got.Code())
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("acquire: %w", NewError(PermissionDenied, "denied"))
	assert.Equal(t, PermissionDenied, KindOf(wrapped))
	assert.Equal(t, Timeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
}

func TestKind_Retryable(t *testing.T) {
	assert.False(t, PermissionDenied.Retryable())
	assert.True(t, Unavailable.Retryable())
	assert.True(t, Timeout.Retryable())
	assert.True(t, Unknown.Retryable())
}

func TestClassify_KeepsKindSetsAttempt(t *testing.T) {
	orig := NewError(Unavailable, "no fix")
	got := classify(orig, 2)
	assert.Equal(t, Unavailable, got.Kind)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, 0, orig.Attempt, "original must not be mutated")
	assert.Contains(t, got.Error(), "position_unavailable")
}
