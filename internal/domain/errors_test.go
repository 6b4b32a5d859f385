package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"fetch", fmt.Errorf("list channel: %w", ErrFetch), KindTransient},
		{"no transcript", fmt.Errorf("fetch transcript abc: %w", ErrNoTranscript), KindPermanentVideo},
		{"disabled", ErrTranscriptsDisabled, KindPermanentVideo},
		{"too short", ErrTranscriptTooShort, KindPermanentVideo},
		{"generation rate limited", fmt.Errorf("%w: %w", ErrGeneration, ErrRateLimited), KindGeneration},
		{"publish", fmt.Errorf("create post: %w", ErrPublish), KindPublish},
		{"configuration", ErrConfiguration, KindConfiguration},
		{"store", fmt.Errorf("list projects: %w", ErrStoreUnavailable), KindStoreUnavailable},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestGenerationSubKindIsVisible(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("generate article: %w", fmt.Errorf("%w: %w", ErrGeneration, ErrUnauthorized))
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, IsPermanentVideo(err))
}
