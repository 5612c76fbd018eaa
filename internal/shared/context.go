package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrAnonymous is returned when the request carries no signed-in user.
var ErrAnonymous = errors.New("shared: anonymous request")

type sessionContextKey struct{}

// ContextWithSession binds the request session to ctx.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the bound session, or nil outside the session middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// SessionUserID parses the user bound to the request session. It returns
// ErrAnonymous when there is no session or no user on it.
func SessionUserID(ctx context.Context) (uuid.UUID, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return uuid.Nil, ErrAnonymous
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return uuid.Nil, ErrAnonymous
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session user %q: %w", raw, err)
	}
	return id, nil
}
