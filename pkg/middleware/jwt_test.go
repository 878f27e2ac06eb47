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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

func TestVerifier_JWT(t *testing.T) {
	v := &Verifier{
		KeyFunc: func(*jwt.Token) (interface{}, error) { return testSecret, nil },
	}

	type test struct {
		name        string
		authHeader  string
		wantSub     string
		wantErrCode int
	}

	tests := []test{
		{
			name: "sets sub on context when present and signature valid",
			authHeader: "Bearer " + signHS256(t, jwt.MapClaims{
				"sub": "tom",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "tom",
		},
		{
			name: "fails when sub claim is missing",
			authHeader: "Bearer " + signHS256(t, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErrCode: http.StatusUnauthorized,
		},
		{
			name: "fails when token is expired",
			authHeader: "Bearer " + signHS256(t, jwt.MapClaims{
				"sub": "tom",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErrCode: http.StatusUnauthorized,
		},
		{
			name: "fails when signature does not match",
			authHeader: "Bearer " + func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"sub": "tom",
					"exp": time.Now().Add(time.Hour).Unix(),
				})
				s, _ := token.SignedString([]byte("wrong-secret"))
				return s
			}(),
			wantErrCode: http.StatusUnauthorized,
		},
		{
			name:        "fails when the auth header is invalid",
			authHeader:  "invalid",
			wantErrCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			var gotSub string
			h := func(c echo.Context) error {
				gotSub = CtxSub(c.Request().Context())
				return c.NoContent(http.StatusOK)
			}
			handler := v.JWT()(h)
			e.POST("/test", handler)

			req := httptest.NewRequest("POST", "/test", nil)
			req.Header.Set("Authorization", tt.authHeader)
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			if tt.wantErrCode != 0 {
				assert.Equal(t, tt.wantErrCode, rec.Code)
			} else {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Equal(t, tt.wantSub, gotSub)
			}
		})
	}
}
