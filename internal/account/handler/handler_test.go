package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"shopcore/internal/account/service"
	accountStore "shopcore/internal/account/store"
	"shopcore/internal/audit"
	"shopcore/internal/credential"
	"shopcore/internal/credential/tokenstore"
	"shopcore/internal/geo/resolver"
	geoStore "shopcore/internal/geo/store"
	"shopcore/internal/notify"
	"shopcore/internal/platform/middleware"
	"shopcore/internal/session"
)

// HandlerSuite drives the account routes end to end over a real router with
// real components behind them.
type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	notifier *notify.Recorder
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.notifier = notify.NewRecorder()

	creds, err := credential.New(tokenstore.NewInMemory(), credential.WithCost(bcrypt.MinCost))
	s.Require().NoError(err)

	gs := geoStore.NewInMemory()
	s.Require().NoError(geoStore.SeedReferenceData(context.Background(), gs))
	geo, err := resolver.New(gs)
	s.Require().NoError(err)

	svc, err := service.New(accountStore.NewInMemory(), creds, s.notifier, geo,
		service.WithLogger(logger),
		service.WithAudit(audit.NewPublisher(audit.NewInMemoryStore())),
	)
	s.Require().NoError(err)

	sessions, err := session.NewIssuer("test-signing-key", time.Hour)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RequestTime)
	New(svc, sessions, logger).Register(s.router)
}

func (s *HandlerSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) register(email string) string {
	rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
		"email":     email,
		"password":  "secret1",
		"firstName": "Jane",
		"lastName":  "Doe",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var view struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	return view.ID
}

// lastToken pulls the token parameter out of the most recent mail body.
func (s *HandlerSuite) lastToken() string {
	sent := s.notifier.Sent()
	s.Require().NotEmpty(sent)
	body := sent[len(sent)-1].Body
	idx := strings.Index(body, "token=")
	s.Require().GreaterOrEqual(idx, 0)
	token := body[idx+len("token="):]
	if end := strings.IndexAny(token, `"&`); end >= 0 {
		token = token[:end]
	}
	return token
}

func (s *HandlerSuite) confirm(accountID, token string) {
	rec := s.do(http.MethodGet,
		fmt.Sprintf("/account/confirm?accountId=%s&token=%s", accountID, token), "", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) login(email, password string) (string, int) {
	rec := s.do(http.MethodPost, "/account/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		return "", rec.Code
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("Bearer", resp.TokenType)
	return resp.AccessToken, rec.Code
}

func (s *HandlerSuite) TestRegister() {
	s.Run("creates an account pending confirmation", func() {
		rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
			"email":     "jane.doe@example.com",
			"password":  "secret1",
			"firstName": "Jane",
			"lastName":  "Doe",
		})
		s.Require().Equal(http.StatusCreated, rec.Code)
		s.Contains(rec.Body.String(), `"state":"pending_confirmation"`)
		s.NotContains(rec.Body.String(), "password")
	})

	s.Run("rejects a malformed email", func() {
		rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
			"email":     "not-an-email",
			"password":  "secret1",
			"firstName": "Jane",
			"lastName":  "Doe",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), `"error":"bad_request"`)
	})

	s.Run("rejects a short password", func() {
		rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
			"email":     "jane.doe@example.com",
			"password":  "short",
			"firstName": "Jane",
			"lastName":  "Doe",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("duplicate email maps to 409", func() {
		s.register("jane.doe@example.com")
		rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
			"email":     "jane.doe@example.com",
			"password":  "secret1",
			"firstName": "Jane",
			"lastName":  "Doe",
		})
		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), `"error":"duplicate_email"`)
	})

	s.Run("inconsistent address selection maps to 400", func() {
		rec := s.do(http.MethodPost, "/account/register", "", map[string]any{
			"email":     "jane.doe@example.com",
			"password":  "secret1",
			"firstName": "Jane",
			"lastName":  "Doe",
			"addressSelection": map[string]int64{
				"countryId": 1,
				"stateId":   2,
				"cityId":    999999,
			},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), `"error":"hierarchy_mismatch"`)
	})
}

func (s *HandlerSuite) TestConfirmAndLogin() {
	s.Run("login before confirmation is forbidden", func() {
		s.register("jane.doe@example.com")
		_, code := s.login("jane.doe@example.com", "secret1")
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("confirmation link activates the account", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())

		token, code := s.login("jane.doe@example.com", "secret1")
		s.Equal(http.StatusOK, code)
		s.NotEmpty(token)
	})

	s.Run("missing query parameters are rejected", func() {
		rec := s.do(http.MethodGet, "/account/confirm?accountId=abc", "", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("wrong credentials map to 401 with one shared message", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())

		unknown := s.do(http.MethodPost, "/account/login", "", map[string]string{
			"email": "nobody@example.com", "password": "secret1",
		})
		wrongPw := s.do(http.MethodPost, "/account/login", "", map[string]string{
			"email": "jane.doe@example.com", "password": "wrong",
		})
		s.Equal(http.StatusUnauthorized, unknown.Code)
		s.Equal(http.StatusUnauthorized, wrongPw.Code)
		s.Equal(unknown.Body.String(), wrongPw.Body.String())
	})

	s.Run("lockout maps to 429 with Retry-After", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())

		for i := 0; i < 3; i++ {
			_, code := s.login("jane.doe@example.com", "wrong")
			s.Equal(http.StatusUnauthorized, code)
		}

		rec := s.do(http.MethodPost, "/account/login", "", map[string]string{
			"email": "jane.doe@example.com", "password": "secret1",
		})
		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Contains(rec.Body.String(), `"error":"locked_out"`)
		s.NotEmpty(rec.Header().Get("Retry-After"))
	})

	s.Run("resend issues a fresh confirmation link", func() {
		id := s.register("jane.doe@example.com")

		rec := s.do(http.MethodPost, "/account/confirm/resend", "", map[string]string{
			"email": "jane.doe@example.com",
		})
		s.Require().Equal(http.StatusAccepted, rec.Code)
		s.Require().Len(s.notifier.Sent(), 2)

		s.confirm(id, s.lastToken())
	})
}

func (s *HandlerSuite) TestLogout() {
	rec := s.do(http.MethodPost, "/account/logout", "", nil)
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *HandlerSuite) TestPasswordRecovery() {
	s.Run("forgot-password answers 202 for known and unknown emails alike", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())

		known := s.do(http.MethodPost, "/account/password/forgot", "", map[string]string{
			"email": "jane.doe@example.com",
		})
		unknown := s.do(http.MethodPost, "/account/password/forgot", "", map[string]string{
			"email": "nobody@example.com",
		})
		s.Equal(http.StatusAccepted, known.Code)
		s.Equal(http.StatusAccepted, unknown.Code)
		s.Equal(known.Body.String(), unknown.Body.String())
	})

	s.Run("reset link sets a new password", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())

		rec := s.do(http.MethodPost, "/account/password/forgot", "", map[string]string{
			"email": "jane.doe@example.com",
		})
		s.Require().Equal(http.StatusAccepted, rec.Code)

		rec = s.do(http.MethodPost, "/account/password/reset", "", map[string]string{
			"accountId":   id,
			"token":       s.lastToken(),
			"newPassword": "secret2",
		})
		s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

		_, code := s.login("jane.doe@example.com", "secret2")
		s.Equal(http.StatusOK, code)
	})

	s.Run("a burned reset token maps to 401", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())
		s.do(http.MethodPost, "/account/password/forgot", "", map[string]string{
			"email": "jane.doe@example.com",
		})
		token := s.lastToken()

		first := s.do(http.MethodPost, "/account/password/reset", "", map[string]string{
			"accountId": id, "token": token, "newPassword": "secret2",
		})
		s.Require().Equal(http.StatusNoContent, first.Code)

		second := s.do(http.MethodPost, "/account/password/reset", "", map[string]string{
			"accountId": id, "token": token, "newPassword": "secret3",
		})
		s.Equal(http.StatusUnauthorized, second.Code)
		s.Contains(second.Body.String(), `"error":"invalid_token"`)
	})
}

func (s *HandlerSuite) TestAuthenticatedRoutes() {
	s.Run("profile requires a bearer token", func() {
		rec := s.do(http.MethodGet, "/account/profile", "", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("garbage token is rejected", func() {
		rec := s.do(http.MethodGet, "/account/profile", "garbage", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("profile round trip", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())
		token, _ := s.login("jane.doe@example.com", "secret1")

		rec := s.do(http.MethodGet, "/account/profile", token, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"email":"jane.doe@example.com"`)

		rec = s.do(http.MethodPut, "/account/profile", token, map[string]any{
			"firstName": "Janet",
			"lastName":  "Doe",
			"phone":     "3001234567",
		})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		s.Contains(rec.Body.String(), `"firstName":"Janet"`)
		s.Contains(rec.Body.String(), `"fullName":"Janet Doe"`)
	})

	s.Run("audit trail lists the caller's lifecycle events", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())
		token, _ := s.login("jane.doe@example.com", "secret1")

		rec := s.do(http.MethodGet, "/account/audit", token, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"action":"email_confirmed"`)
		s.Contains(rec.Body.String(), `"action":"login_succeeded"`)
	})

	s.Run("change password verifies the old one", func() {
		id := s.register("jane.doe@example.com")
		s.confirm(id, s.lastToken())
		token, _ := s.login("jane.doe@example.com", "secret1")

		rec := s.do(http.MethodPost, "/account/password/change", token, map[string]string{
			"oldPassword": "wrong",
			"newPassword": "secret2",
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Contains(rec.Body.String(), `"error":"wrong_old_password"`)

		rec = s.do(http.MethodPost, "/account/password/change", token, map[string]string{
			"oldPassword": "secret1",
			"newPassword": "secret1",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), `"error":"same_password"`)

		rec = s.do(http.MethodPost, "/account/password/change", token, map[string]string{
			"oldPassword": "secret1",
			"newPassword": "secret2",
		})
		s.Require().Equal(http.StatusNoContent, rec.Code)

		_, code := s.login("jane.doe@example.com", "secret2")
		s.Equal(http.StatusOK, code)
	})
}
