package gateway

import (
	"errors"

	"MedLink/module/messaging/model"
	"MedLink/tools/errs"
	"MedLink/tools/security"
)

// Identity is the verified output of the handshake. A connection with
// no Identity accepts no events.
type Identity struct {
	UserID string
	Role   string
}

// Authenticator validates the bearer token presented at connection
// time. It has no side effects on failure.
type Authenticator struct {
	opts security.Options
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{opts: security.DefaultOptions(secret)}
}

func (a *Authenticator) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, errs.ErrTokenMissing
	}
	claims, err := security.Verify(a.opts, token)
	if err != nil {
		if errors.Is(err, security.ErrExpired) {
			return Identity{}, errs.ErrTokenExpired
		}
		return Identity{}, errs.ErrTokenInvalid
	}
	switch claims.Role {
	case model.RolePatient, model.RoleDoctor, model.RoleAdmin:
	default:
		return Identity{}, errs.ErrTokenInvalid.WrapMsg("unknown role", "role", claims.Role)
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
