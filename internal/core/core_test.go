package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		field string
	}{
		{"ok default length", Query{Question: "What is VAT rate?"}, ""},
		{"ok explicit length", Query{Question: "VAT?", MaxLength: 50}, ""},
		{"ok upper bound", Query{Question: strings.Repeat("a", 500), MaxLength: 500}, ""},
		{"empty question", Query{Question: ""}, "question"},
		{"whitespace question", Query{Question: "   \n"}, "question"},
		{"question too long", Query{Question: strings.Repeat("a", 501)}, "question"},
		{"length too small", Query{Question: "VAT?", MaxLength: 49}, "max_length"},
		{"length too large", Query{Question: "VAT?", MaxLength: 501}, "max_length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestQuestionLengthCountsRunes(t *testing.T) {
	// 500 naira signs are 1500 bytes but 500 characters.
	q := Query{Question: strings.Repeat("₦", 500)}
	assert.NoError(t, q.Validate())
}

func TestEffectiveMaxLength(t *testing.T) {
	assert.Equal(t, DefaultAnswerLength, Query{Question: "x"}.EffectiveMaxLength())
	assert.Equal(t, 80, Query{Question: "x", MaxLength: 80}.EffectiveMaxLength())
}

func TestErrorsUnwrap(t *testing.T) {
	root := context.DeadlineExceeded

	gerr := &GenerationError{Provider: "groq", Err: root}
	assert.ErrorIs(t, gerr, context.DeadlineExceeded)
	assert.Contains(t, gerr.Error(), "groq")
	assert.Contains(t, gerr.Error(), "Error:")

	rerr := fmt.Errorf("pipeline: %w", &RetrievalError{Stage: "search", Err: root})
	var target *RetrievalError
	require.ErrorAs(t, rerr, &target)
	assert.Equal(t, "search", target.Stage)

	cerr := &ConfigurationError{Field: "embedding.dimension", Reason: "embedder 768, store 384", Err: ErrDimensionMismatch}
	assert.True(t, errors.Is(cerr, ErrDimensionMismatch))
	assert.Equal(t, "configuration error (embedding.dimension): embedder 768, store 384: embedding dimension mismatch", cerr.Error())
}
