package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindBranching(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"Config", NewConfigError("model", "unknown"), ErrConfig},
		{"ImageLoad", NewImageLoadError("a.png", nil), ErrImageLoad},
		{"Extraction", NewExtractionError("a.png", "dinov2s", nil), ErrExtraction},
		{"InsufficientData", NewInsufficientDataError("cluster", 2, 5), ErrInsufficientData},
		{"State", NewStateError("merge", "need two labels"), ErrState},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.kind)
			// Wrapping must not lose the kind.
			assert.ErrorIs(t, fmt.Errorf("outer: %w", tc.err), tc.kind)
		})
	}
}

func TestCausePreserved(t *testing.T) {
	cause := errors.New("disk on fire")

	err := NewExtractionError("a.png", "dinov2s", NewImageLoadError("a.png", cause))
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, ErrImageLoad)
	assert.ErrorIs(t, err, cause)

	var loadErr *ImageLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "a.png", loadErr.Path)
}

func TestMessages(t *testing.T) {
	assert.Contains(t, NewConfigError("k", "must be positive").Error(), "k")
	assert.Contains(t, NewInsufficientDataError("cluster", 3, 10).Error(), "have 3, need 10")
}
