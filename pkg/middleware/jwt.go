/*
Copyright (C) 2022-2025 Contributors | TIM S.p.A. to CAMARA a Series of LF Projects, LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/logger"
)

type CtxKey string

const (
	Sub CtxKey = "sub"
)

// KeyFunc resolves the verification key for a parsed token. Binaries wire
// this to whatever key source backs their issuer (a static HS256 secret,
// or a JWKS-backed RS256/ES256 lookup); it is never hard-coded here.
type KeyFunc func(*jwt.Token) (interface{}, error)

// Verifier extracts and verifies the bearer token on every request, binding
// the verified subject into the request context. Unlike the unverified
// payload peek this replaces, it rejects any token with a bad signature,
// wrong issuer/audience, or that has expired.
type Verifier struct {
	KeyFunc  KeyFunc
	Issuer   string
	Audience string
}

func (v *Verifier) extractSub(req *http.Request) (string, int, string) {
	log := logger.Get()
	reqToken := req.Header.Get("Authorization")
	splitToken := strings.Split(reqToken, "Bearer ")
	if len(splitToken) != 2 {
		msg := "invalid Bearer token in Authorization header"
		log.Error(msg)
		return "", http.StatusUnauthorized, msg
	}
	raw := splitToken[1]

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	token, err := jwt.Parse(raw, v.KeyFunc, opts...)
	if err != nil || !token.Valid {
		msg := "invalid or expired JWT"
		log.With(zap.Error(err)).Warn(msg)
		return "", http.StatusUnauthorized, msg
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", http.StatusUnauthorized, "unexpected claims type"
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", http.StatusUnauthorized, "sub claim not found in JWT"
	}

	return sub, 0, ""
}

// JWT returns echo middleware enforcing bearer-token auth on every request
// except the health endpoint.
func (v *Verifier) JWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/healthz" || path == "/readyz" {
				return next(c)
			}
			sub, status, msg := v.extractSub(c.Request())
			if status != 0 {
				return c.String(status, msg)
			}
			ctx := context.WithValue(c.Request().Context(), Sub, sub)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// StaticKeyFunc builds a KeyFunc backed by a single HS256 secret, the
// default verification source when no JWKS endpoint is configured.
func StaticKeyFunc(secret string) KeyFunc {
	key := []byte(secret)
	return func(*jwt.Token) (interface{}, error) {
		return key, nil
	}
}

func CtxSub(ctx context.Context) string {
	var sub string
	if s, ok := ctx.Value(Sub).(string); ok {
		sub = s
	}
	return sub
}
