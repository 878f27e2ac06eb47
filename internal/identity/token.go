package identity

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// AccessToken is the persisted shape: never the plaintext, only its
// bcrypt hash plus enough metadata for list/delete.
type AccessToken struct {
	Prefix      string
	UserID      string
	HashedToken string
	Description string
}

// TokenStore is the storage half of the access-token service. The schema
// migrations create a matching access_tokens table; this repository has
// no Postgres implementation of the interface.
type TokenStore interface {
	Insert(ctx context.Context, t AccessToken) error
	Lookup(ctx context.Context, prefix string) (*AccessToken, error)
	List(ctx context.Context, userID string) ([]AccessToken, error)
	Delete(ctx context.Context, userID, prefix string) error
}

const prefixLen = 8

// TokenService implements create/list/delete/authenticate for access
// tokens (§4.1): a random prefix identifies the row without revealing
// the secret, and only a bcrypt hash of the remainder is ever stored.
type TokenService struct {
	store TokenStore
	cost  int
}

func NewTokenService(store TokenStore, bcryptCost int) *TokenService {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &TokenService{store: store, cost: bcryptCost}
}

// Create generates a fresh (prefix, plaintext) pair, persists the hash,
// and returns the plaintext exactly once — it is never recoverable
// after this call returns.
func (s *TokenService) Create(ctx context.Context, userID, description string) (prefix, plaintext string, err error) {
	prefix, err = randomToken(prefixLen)
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindPermanent, "generating token prefix", err)
	}
	secret, err := randomToken(32)
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindPermanent, "generating token secret", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindPermanent, "hashing token", err)
	}

	if err := s.store.Insert(ctx, AccessToken{
		Prefix:      prefix,
		UserID:      userID,
		HashedToken: string(hashed),
		Description: description,
	}); err != nil {
		return "", "", err
	}

	return prefix, prefix + "." + secret, nil
}

func (s *TokenService) List(ctx context.Context, userID string) ([]AccessToken, error) {
	return s.store.List(ctx, userID)
}

func (s *TokenService) Delete(ctx context.Context, userID, prefix string) error {
	return s.store.Delete(ctx, userID, prefix)
}

// Authenticate splits the presented token into (prefix, secret), looks
// up the stored hash by prefix, and bcrypt-compares — bcrypt's own
// comparison is constant-time with respect to the hash.
func (s *TokenService) Authenticate(ctx context.Context, token string) (*AccessToken, error) {
	prefix, secret, ok := splitToken(token)
	if !ok {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}

	stored, err := s.store.Lookup(ctx, prefix)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(stored.HashedToken), []byte(secret)) != nil {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}
	return stored, nil
}

func splitToken(token string) (prefix, secret string, ok bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

var base32Enc = base32.StdEncoding.WithPadding(base32.NoPadding)

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToLower(base32Enc.EncodeToString(buf)), nil
}
