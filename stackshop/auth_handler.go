package stackshop

import (
	"context"
	"strings"

	"encore.dev/beta/auth"
	"encore.dev/beta/errs"
)

// End-user authentication lives in the fronting route layer; it forwards the
// verified identity and proves itself with the shared internal token. This
// handler only checks that trust boundary.

type AuthParams struct {
	Authorization string `header:"Authorization"`
	Username      string `header:"X-Stackshop-User"`
}

type AuthUser struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

//encore:authhandler
func (s *Service) AuthHandler(ctx context.Context, p *AuthParams) (auth.UID, *AuthUser, error) {
	if s.cfg.InternalToken != "" {
		bearer := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Authorization), "Bearer"))
		if bearer != s.cfg.InternalToken {
			return "", nil, &errs.Error{Code: errs.Unauthenticated, Message: "invalid internal token"}
		}
	}
	username := strings.ToLower(strings.TrimSpace(p.Username))
	if username == "" {
		return "", nil, &errs.Error{Code: errs.Unauthenticated, Message: "missing user identity"}
	}
	user := &AuthUser{
		Username: username,
		IsAdmin:  s.cfg.IsAdminUser(username),
	}
	return auth.UID(username), user, nil
}

func requireAuthUser() (*AuthUser, error) {
	user, ok := auth.Data().(*AuthUser)
	if !ok || user == nil {
		return nil, &errs.Error{Code: errs.Unauthenticated, Message: "authentication required"}
	}
	return user, nil
}
