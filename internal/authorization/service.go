package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authenticate resolves an admin token to its operator.
	Authenticate(token string) (Operator, bool)
	Authorize(ctx context.Context, operator Operator, object string, action string) error
}

// Operator is an administrator identified by a configured token.
type Operator struct {
	Name string
	Role string
}

func (o Operator) Subject() string {
	return "admin:" + o.Name
}

var (
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrInvalidObject     = errors.New("invalid_object")
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidAdminToken = errors.New("invalid_admin_token")
	ErrForbidden         = errors.New("forbidden")
)
