package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	ok := Of(42, nil)
	assert.True(t, ok.OK())
	require.NotNil(t, ok.Ptr())
	assert.Equal(t, 42, *ok.Ptr())

	boom := errors.New("boom")
	failed := Of(7, boom)
	assert.False(t, failed.OK())
	assert.ErrorIs(t, failed.Err, boom)
	assert.Nil(t, failed.Ptr())
	assert.Zero(t, failed.Value)
}
