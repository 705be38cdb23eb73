package host

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTService_Tokens(t *testing.T) {
	service := NewJWTService(testSecret, "rokubridge", 1)

	token, err := service.GenerateToken("remote")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "remote", claims.Client)
	assert.Equal(t, "remote", claims.Subject)
	assert.Equal(t, "rokubridge", claims.Issuer)

	_, err = NewJWTService("another-secret-value", "rokubridge", 1).ValidateToken(token)
	assert.Error(t, err)

	_, err = NewJWTService(testSecret, "someone-else", 1).ValidateToken(token)
	assert.Error(t, err)

	_, err = service.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestJWTService_RequireAuth(t *testing.T) {
	service := NewJWTService(testSecret, "rokubridge", 1)
	token, err := service.GenerateToken("remote")
	require.NoError(t, err)

	handler := service.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(claims.Client))
	}))

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"bearer header", "/", "Bearer " + token, http.StatusOK},
		{"query parameter", "/?token=" + token, "", http.StatusOK},
		{"missing token", "/", "", http.StatusUnauthorized},
		{"wrong scheme", "/", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "/", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "remote", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}
