package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/mocks"
	"github.com/target/cyano-batch/internal/service"
)

const testSecret = "test-signing-key"

var handlerTestNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var alice = &model.User{ID: 7, Username: "alice", Email: "alice@example.com"}

type apiFixture struct {
	router http.Handler
	jobs   *mocks.MockBatchJobRepository
	users  *mocks.MockUserRepository
	broker *mocks.MockTaskBroker
}

// newAPIFixture wires the real router and BatchService over gomock repositories.
func newAPIFixture(t *testing.T, withAuth bool) *apiFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &apiFixture{
		jobs:   mocks.NewMockBatchJobRepository(ctrl),
		users:  mocks.NewMockUserRepository(ctrl),
		broker: mocks.NewMockTaskBroker(ctrl),
	}
	svc := service.MustNewBatchService(service.BatchServiceOptions{
		Jobs:   f.jobs,
		Users:  f.users,
		Broker: f.broker,
		Config: service.BatchServiceConfig{
			LocationsLimit: 3,
			Now:            func() time.Time { return handlerTestNow },
			NewID:          func() string { return "job-1" },
		},
	})
	var verifier *TokenVerifier
	if withAuth {
		var err error
		verifier, err = NewTokenVerifier(testSecret, 0)
		require.NoError(t, err)
	}
	f.router = NewRouter(RouterServices{Batch: svc, Verifier: verifier, MaxBodyBytes: 1 << 20})
	return f
}

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
