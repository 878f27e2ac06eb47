package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// Principal is an authenticated human/service user, resolved from a
// bearer JWT's subject claim.
type Principal struct {
	UserID string
	Admin  bool
}

// IdentityProvider resolves a username to a stable user id, used by C10
// to resolve membership usernames against an external directory.
type IdentityProvider interface {
	ResolveUsername(ctx context.Context, username string) (userID string, err error)
}

// UserService authenticates principals from a verified JWT and resolves
// usernames via an IdentityProvider.
type UserService struct {
	keyFunc  jwt.Keyfunc
	admins   map[string]struct{}
	provider IdentityProvider
}

func NewUserService(keyFunc jwt.Keyfunc, admins []string, provider IdentityProvider) *UserService {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		set[a] = struct{}{}
	}
	return &UserService{keyFunc: keyFunc, admins: set, provider: provider}
}

// AuthenticateUser verifies the bearer token and returns the resolved
// Principal. Any verification failure collapses to a single
// KindAuthentication error.
func (s *UserService) AuthenticateUser(token string) (*Principal, error) {
	parsed, err := jwt.Parse(token, s.keyFunc)
	if err != nil || !parsed.Valid {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}
	_, isAdmin := s.admins[sub]
	return &Principal{UserID: sub, Admin: isAdmin}, nil
}

// ResolveUsernames resolves a batch of usernames for set_members (§4.10).
// Empty user-ids are passed through unresolved (anonymous access,
// permitted by spec); any unknown non-empty username is a permanent
// failure, matching "failing permanently if any username is unknown".
func (s *UserService) ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error) {
	resolved := make(map[string]string, len(usernames))
	for _, u := range usernames {
		if u == "" {
			resolved[u] = ""
			continue
		}
		id, err := s.provider.ResolveUsername(ctx, u)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindPermanent, "unknown username: "+u, err)
		}
		resolved[u] = id
	}
	return resolved, nil
}
