package d4

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_Names(t *testing.T) {
	for _, s := range Steps() {
		got, err := ParseStep(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "step(9)", Step(9).String())

	_, err := ParseStep("report")
	assert.Error(t, err)
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := stepError(StepExpand, cause)
	assert.EqualError(t, err, "expand: boom")
	assert.ErrorIs(t, err, cause)

	// The innermost step wins.
	assert.Same(t, err, stepError(StepLocalDomains, err))
	assert.NoError(t, stepError(StepExpand, nil))
}
