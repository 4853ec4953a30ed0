// Package connect provides the Connect RPC player service.
package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/osa030/19deck/internal/infra/config"
)

const (
	// TokenHeader is the header name for the API token.
	TokenHeader = "X-Deck-Token"
)

// Errors
var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the caller resolved from a token.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity may control playback.
func (i Identity) IsAdmin() bool {
	return i.Role == config.RoleAdmin
}

// CanCall reports whether the identity may call the procedure.
func (i Identity) CanCall(procedure string) bool {
	if i.IsAdmin() {
		return true
	}
	return i.Role == config.RoleViewer && viewerProcedures[procedure]
}

// Procedures open to viewers
var viewerProcedures = map[string]bool{
	GetStateProcedure:  true,
	SubscribeProcedure: true,
}

type identityKey struct{}

// IdentityFromContext returns the identity of an authenticated request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Claims are the JWT claims accepted by the Authenticator.
// The subject is the user ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves tokens to identities.
type Authenticator struct {
	tokens    map[string]Identity
	jwtSecret []byte
}

// NewAuthenticator creates an authenticator from the static token table.
// JWTs are accepted only when jwtSecret is set.
func NewAuthenticator(tokens []config.TokenConfig, jwtSecret string) *Authenticator {
	a := &Authenticator{tokens: make(map[string]Identity, len(tokens))}
	for _, t := range tokens {
		a.tokens[t.Token] = Identity{UserID: t.UserID, Role: t.Role}
	}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

// Authenticate resolves a token.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	if id, ok := a.tokens[token]; ok {
		return id, nil
	}
	if a.jwtSecret == nil || strings.Count(token, ".") != 2 {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return Identity{}, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	if claims.Role != config.RoleAdmin && claims.Role != config.RoleViewer {
		return Identity{}, errors.Wrapf(ErrInvalidToken, "unknown role %q", claims.Role)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken signs an HS256 JWT for the identity. A zero ttl never expires.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is required")
	}
	now := time.Now()
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// authInterceptor authenticates handler calls and checks roles.
type authInterceptor struct {
	auth *Authenticator
}

// NewAuthInterceptor creates an interceptor that resolves the token header of
// every call and rejects callers whose role does not allow the procedure.
func NewAuthInterceptor(auth *Authenticator) connect.Interceptor {
	return &authInterceptor{auth: auth}
}

func (i *authInterceptor) authorize(ctx context.Context, procedure, token string) (context.Context, error) {
	id, err := i.auth.Authenticate(token)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}
	if !id.CanCall(procedure) {
		return nil, connect.NewError(connect.CodePermissionDenied,
			errors.Newf("role %s may not call %s", id.Role, procedure))
	}
	return context.WithValue(ctx, identityKey{}, id), nil
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.authorize(ctx, req.Spec().Procedure, req.Header().Get(TokenHeader))
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authorize(ctx, conn.Spec().Procedure, conn.RequestHeader().Get(TokenHeader))
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// tokenInterceptor sets the token header on client calls.
type tokenInterceptor struct {
	token string
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && i.token != "" {
			req.Header().Set(TokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(TokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
