package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapMsgKeepsTaxonomy(t *testing.T) {
	err := ErrValidation.WrapMsg("bad field", "field", "text")
	require.ErrorIs(t, err, ErrValidation)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "field=text")

	// wrapping never mutates the sentinel
	require.Empty(t, ErrValidation.Detail)
}

func TestWrapMsgThroughFmtChain(t *testing.T) {
	inner := ErrPersistence.WrapMsg("insert")
	outer := WrapMsg(inner, "send path", "receiver", "doctor-1")
	require.ErrorIs(t, outer, ErrPersistence)
	require.True(t, IsCode(outer, ErrPersistence.Code))
}

func TestIsCodeOnForeignError(t *testing.T) {
	require.False(t, IsCode(errors.New("plain"), ErrInternal.Code))
	require.False(t, IsCode(nil, ErrInternal.Code))
}
