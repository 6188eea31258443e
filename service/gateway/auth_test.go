package gateway

import (
	"testing"
	"time"

	"MedLink/tools/errs"
	"MedLink/tools/security"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func TestAuthenticateValidToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	token, _, err := security.Generate(security.DefaultOptions(testSecret), "patient-1", "patient")
	require.NoError(t, err)

	id, err := auth.Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "patient-1", Role: "patient"}, id)
}

func TestAuthenticateMissingToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	_, err := auth.Authenticate("")
	require.ErrorIs(t, err, errs.ErrTokenMissing)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	_, err := auth.Authenticate("not.a.jwt")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestAuthenticateWrongSecret(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	token, _, err := security.Generate(security.DefaultOptions([]byte("other-secret")), "patient-1", "patient")
	require.NoError(t, err)

	_, err = auth.Authenticate(token)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	opts := security.DefaultOptions(testSecret)
	opts.TTL = time.Nanosecond
	token, _, err := security.Generate(opts, "patient-1", "patient")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = auth.Authenticate(token)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestAuthenticateUnknownRole(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	token, _, err := security.Generate(security.DefaultOptions(testSecret), "svc-1", "robot")
	require.NoError(t, err)

	_, err = auth.Authenticate(token)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}
