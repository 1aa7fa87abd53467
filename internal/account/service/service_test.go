package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"shopcore/internal/account/models"
	accountStore "shopcore/internal/account/store"
	"shopcore/internal/audit"
	"shopcore/internal/credential"
	"shopcore/internal/credential/tokenstore"
	geoModel "shopcore/internal/geo/models"
	"shopcore/internal/geo/resolver"
	geoStore "shopcore/internal/geo/store"
	"shopcore/internal/notify"
	dErrors "shopcore/pkg/domain-errors"
	"shopcore/pkg/requestcontext"
)

// countingCredentials wraps the real credential service to observe whether
// an operation touched it at all.
type countingCredentials struct {
	credential.Service
	hashCalls   int
	verifyCalls int
}

func (c *countingCredentials) HashPassword(password string) (string, error) {
	c.hashCalls++
	return c.Service.HashPassword(password)
}

func (c *countingCredentials) VerifyPassword(hash, password string) error {
	c.verifyCalls++
	return c.Service.VerifyPassword(hash, password)
}

// ServiceSuite exercises the lifecycle state machine against real in-memory
// components, no mocks.
type ServiceSuite struct {
	suite.Suite
	accounts    *accountStore.InMemory
	credentials *countingCredentials
	notifier    *notify.Recorder
	auditStore  *audit.InMemoryStore
	service     *Service
	ctx         context.Context
	now         time.Time

	colombiaID  int64
	antioquiaID int64
	medellinID  int64
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.accounts = accountStore.NewInMemory()
	s.notifier = notify.NewRecorder()
	s.auditStore = audit.NewInMemoryStore()

	creds, err := credential.New(tokenstore.NewInMemory(), credential.WithCost(bcrypt.MinCost))
	s.Require().NoError(err)
	s.credentials = &countingCredentials{Service: creds}

	gs := geoStore.NewInMemory()
	colombia, err := geoModel.NewCountry(0, "Colombia")
	s.Require().NoError(err)
	s.Require().NoError(gs.AddCountry(context.Background(), colombia))
	antioquia, err := geoModel.NewState(0, colombia.ID, "Antioquia")
	s.Require().NoError(err)
	s.Require().NoError(gs.AddState(context.Background(), antioquia))
	medellin, err := geoModel.NewCity(0, antioquia.ID, "Medellín")
	s.Require().NoError(err)
	s.Require().NoError(gs.AddCity(context.Background(), medellin))
	s.colombiaID, s.antioquiaID, s.medellinID = colombia.ID, antioquia.ID, medellin.ID

	geo, err := resolver.New(gs)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.service, err = New(s.accounts, s.credentials, s.notifier, geo,
		WithLogger(logger),
		WithAudit(audit.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)

	s.now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// SetupSubTest gives every s.Run a fresh set of components.
func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

// at shifts the request clock by d.
func (s *ServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *ServiceSuite) register(email, password string) *models.Account {
	account, err := s.service.Register(s.ctx, RegisterRequest{
		Email:    email,
		Password: password,
		Profile:  models.Profile{FirstName: "Jane", LastName: "Doe"},
	})
	s.Require().NoError(err)
	return account
}

// lastToken digs the issued token out of the most recently delivered mail.
func (s *ServiceSuite) lastToken() string {
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

func (s *ServiceSuite) registerAndConfirm(email, password string) *models.Account {
	account := s.register(email, password)
	s.Require().NoError(s.service.ConfirmEmail(s.ctx, account.ID, s.lastToken()))
	return account
}

func (s *ServiceSuite) TestRegister() {
	s.Run("creates account pending confirmation and sends the link", func() {
		account := s.register("jane.doe@example.com", "secret1")
		s.Equal(models.StatePendingConfirmation, account.State)
		s.Equal(models.KindUser, account.Kind)

		sent := s.notifier.Sent()
		s.Require().Len(sent, 1)
		s.Equal("jane.doe@example.com", sent[0].To)
		s.Contains(sent[0].Body, account.ID)
	})

	s.Run("rejects duplicate email case-insensitively", func() {
		s.register("jane.doe@example.com", "secret1")
		_, err := s.service.Register(s.ctx, RegisterRequest{
			Email:    "Jane.Doe@Example.com",
			Password: "secret1",
			Profile:  models.Profile{FirstName: "Jane", LastName: "Doe"},
		})
		s.True(dErrors.Is(err, dErrors.CodeDuplicateEmail))
	})

	s.Run("keeps the account when notification delivery fails", func() {
		s.notifier.FailWith(errors.New("smtp down"))
		account, err := s.service.Register(s.ctx, RegisterRequest{
			Email:    "jane.doe@example.com",
			Password: "secret1",
			Profile:  models.Profile{FirstName: "Jane", LastName: "Doe"},
		})
		s.True(dErrors.Is(err, dErrors.CodeNotificationFailed))
		s.Require().NotNil(account)

		// The caller may resend once delivery recovers.
		s.notifier.FailWith(nil)
		s.NoError(s.service.ResendConfirmation(s.ctx, "jane.doe@example.com"))
		s.NoError(s.service.ConfirmEmail(s.ctx, account.ID, s.lastToken()))
	})

	s.Run("validates the address hierarchy before creating", func() {
		_, err := s.service.Register(s.ctx, RegisterRequest{
			Email:    "bad.address@example.com",
			Password: "secret1",
			Profile:  models.Profile{FirstName: "Jane", LastName: "Doe"},
			Address:  &AddressSelection{CountryID: s.colombiaID, StateID: s.antioquiaID, CityID: 9999},
		})
		s.True(dErrors.Is(err, dErrors.CodeHierarchyMismatch))
	})

	s.Run("accepts a consistent address selection", func() {
		account, err := s.service.Register(s.ctx, RegisterRequest{
			Email:    "good.address@example.com",
			Password: "secret1",
			Profile:  models.Profile{FirstName: "Jane", LastName: "Doe"},
			Address:  &AddressSelection{CountryID: s.colombiaID, StateID: s.antioquiaID, CityID: s.medellinID},
		})
		s.Require().NoError(err)
		s.Require().NotNil(account.CityID)
		s.Equal(s.medellinID, *account.CityID)
	})
}

func (s *ServiceSuite) TestConfirmEmail() {
	s.Run("activates a pending account", func() {
		account := s.register("jane.doe@example.com", "secret1")
		s.Require().NoError(s.service.ConfirmEmail(s.ctx, account.ID, s.lastToken()))

		stored, err := s.service.Get(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Equal(models.StateActive, stored.State)
	})

	s.Run("is idempotent on an already-active account", func() {
		account := s.register("jane.doe2@example.com", "secret1")
		token := s.lastToken()
		s.Require().NoError(s.service.ConfirmEmail(s.ctx, account.ID, token))

		auditBefore, err := s.auditStore.ListByAccount(s.ctx, account.ID)
		s.Require().NoError(err)

		// The token is already consumed; the second call must still succeed
		// without new side effects.
		s.NoError(s.service.ConfirmEmail(s.ctx, account.ID, token))

		auditAfter, err := s.auditStore.ListByAccount(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Len(auditAfter, len(auditBefore))
	})

	s.Run("rejects an invalid token", func() {
		account := s.register("jane.doe3@example.com", "secret1")
		err := s.service.ConfirmEmail(s.ctx, account.ID, "bogus")
		s.True(dErrors.Is(err, dErrors.CodeInvalidToken))
	})

	s.Run("rejects a token consumed twice while pending", func() {
		account := s.register("jane.doe4@example.com", "secret1")
		token := s.lastToken()
		s.Require().NoError(s.service.ConfirmEmail(s.ctx, account.ID, token))

		// Force back to pending to prove the token itself is burned.
		stored, err := s.accounts.FindByID(s.ctx, account.ID)
		s.Require().NoError(err)
		stored.State = models.StatePendingConfirmation
		s.Require().NoError(s.accounts.Update(s.ctx, stored))

		err = s.service.ConfirmEmail(s.ctx, account.ID, token)
		s.True(dErrors.Is(err, dErrors.CodeInvalidToken))
	})

	s.Run("unknown account returns not found", func() {
		err := s.service.ConfirmEmail(s.ctx, "missing", "token")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestLoginRoundTrip() {
	s.Run("pending account cannot log in even with the right password", func() {
		s.register("jane.doe@example.com", "secret1")
		_, err := s.service.Login(s.ctx, "jane.doe@example.com", "secret1")
		s.True(dErrors.Is(err, dErrors.CodeNotConfirmed))
	})

	s.Run("confirmed account logs in", func() {
		account := s.registerAndConfirm("john.doe@example.com", "secret1")
		got, err := s.service.Login(s.ctx, "john.doe@example.com", "secret1")
		s.Require().NoError(err)
		s.Equal(account.ID, got.ID)
	})

	s.Run("unknown email and wrong password share one message", func() {
		s.registerAndConfirm("amy.doe@example.com", "secret1")

		_, errUnknown := s.service.Login(s.ctx, "nobody@example.com", "secret1")
		_, errWrongPw := s.service.Login(s.ctx, "amy.doe@example.com", "wrong")
		s.True(dErrors.Is(errUnknown, dErrors.CodeInvalidCredentials))
		s.True(dErrors.Is(errWrongPw, dErrors.CodeInvalidCredentials))
		s.Equal(errUnknown.Error(), errWrongPw.Error())
	})
}

func (s *ServiceSuite) TestLockout() {
	s.Run("three consecutive failures lock the account", func() {
		s.registerAndConfirm("jane.doe@example.com", "secret1")

		for i := 0; i < 3; i++ {
			_, err := s.service.Login(s.ctx, "jane.doe@example.com", "wrong")
			s.True(dErrors.Is(err, dErrors.CodeInvalidCredentials))
		}

		// Fourth attempt fails locked even with the correct password.
		_, err := s.service.Login(s.ctx, "jane.doe@example.com", "secret1")
		s.True(dErrors.Is(err, dErrors.CodeLockedOut))
		remaining, ok := dErrors.RetryAfterOf(err)
		s.True(ok)
		s.Equal(5*time.Minute, remaining)
	})

	s.Run("locked result does not distinguish password correctness", func() {
		s.registerAndConfirm("john.doe@example.com", "secret1")
		for i := 0; i < 3; i++ {
			_, _ = s.service.Login(s.ctx, "john.doe@example.com", "wrong")
		}

		verifyCallsBefore := s.credentials.verifyCalls
		_, errRight := s.service.Login(s.ctx, "john.doe@example.com", "secret1")
		_, errWrong := s.service.Login(s.ctx, "john.doe@example.com", "wrong")

		s.Equal(errRight.Error(), errWrong.Error())
		// The password is never checked while the lockout window is open.
		s.Equal(verifyCallsBefore, s.credentials.verifyCalls)
	})

	s.Run("remaining wait time is recomputed live", func() {
		s.registerAndConfirm("amy.doe@example.com", "secret1")
		for i := 0; i < 3; i++ {
			_, _ = s.service.Login(s.ctx, "amy.doe@example.com", "wrong")
		}

		_, err := s.service.Login(s.at(2*time.Minute), "amy.doe@example.com", "secret1")
		remaining, ok := dErrors.RetryAfterOf(err)
		s.True(ok)
		s.Equal(3*time.Minute, remaining)
	})

	s.Run("lockout expires and the account logs in again", func() {
		account := s.registerAndConfirm("max.doe@example.com", "secret1")
		for i := 0; i < 3; i++ {
			_, _ = s.service.Login(s.ctx, "max.doe@example.com", "wrong")
		}

		got, err := s.service.Login(s.at(5*time.Minute+time.Second), "max.doe@example.com", "secret1")
		s.Require().NoError(err)
		s.Equal(account.ID, got.ID)

		stored, err := s.service.Get(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Equal(models.StateActive, stored.State)
		s.Zero(stored.FailedLogins)
		s.Nil(stored.LockedUntil)
	})

	s.Run("successful login resets the failure counter", func() {
		s.registerAndConfirm("eva.doe@example.com", "secret1")

		_, _ = s.service.Login(s.ctx, "eva.doe@example.com", "wrong")
		_, _ = s.service.Login(s.ctx, "eva.doe@example.com", "wrong")
		_, err := s.service.Login(s.ctx, "eva.doe@example.com", "secret1")
		s.Require().NoError(err)

		// Two more failures must not trip the threshold after the reset.
		_, _ = s.service.Login(s.ctx, "eva.doe@example.com", "wrong")
		_, err = s.service.Login(s.ctx, "eva.doe@example.com", "wrong")
		s.True(dErrors.Is(err, dErrors.CodeInvalidCredentials))

		_, err = s.service.Login(s.ctx, "eva.doe@example.com", "secret1")
		s.NoError(err)
	})

	s.Run("failures after an expired lockout start a fresh count", func() {
		s.registerAndConfirm("leo.doe@example.com", "secret1")
		for i := 0; i < 3; i++ {
			_, _ = s.service.Login(s.ctx, "leo.doe@example.com", "wrong")
		}

		later := s.at(6 * time.Minute)
		_, err := s.service.Login(later, "leo.doe@example.com", "wrong")
		s.True(dErrors.Is(err, dErrors.CodeInvalidCredentials))

		// One failure so far in the new window; correct password still works.
		_, err = s.service.Login(later, "leo.doe@example.com", "secret1")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestPasswordReset() {
	s.Run("unknown email reports not found to the service caller", func() {
		err := s.service.RequestPasswordReset(s.ctx, "nobody@example.com")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("reset replaces the password and clears an active lockout", func() {
		account := s.registerAndConfirm("jane.doe@example.com", "secret1")
		for i := 0; i < 3; i++ {
			_, _ = s.service.Login(s.ctx, "jane.doe@example.com", "wrong")
		}

		s.Require().NoError(s.service.RequestPasswordReset(s.ctx, "jane.doe@example.com"))
		token := s.lastToken()
		s.Require().NoError(s.service.ResetPassword(s.ctx, account.ID, token, "secret2"))

		// Lockout is gone and the new password works immediately.
		got, err := s.service.Login(s.ctx, "jane.doe@example.com", "secret2")
		s.Require().NoError(err)
		s.Equal(account.ID, got.ID)

		_, err = s.service.Login(s.ctx, "jane.doe@example.com", "secret1")
		s.True(dErrors.Is(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("reset token is single use", func() {
		account := s.registerAndConfirm("john.doe@example.com", "secret1")
		s.Require().NoError(s.service.RequestPasswordReset(s.ctx, "john.doe@example.com"))
		token := s.lastToken()

		s.Require().NoError(s.service.ResetPassword(s.ctx, account.ID, token, "secret2"))
		err := s.service.ResetPassword(s.ctx, account.ID, token, "secret3")
		s.True(dErrors.Is(err, dErrors.CodeInvalidToken))
	})

	s.Run("a confirmation token cannot reset a password", func() {
		account := s.register("amy.doe@example.com", "secret1")
		confirmToken := s.lastToken()

		err := s.service.ResetPassword(s.ctx, account.ID, confirmToken, "secret2")
		s.True(dErrors.Is(err, dErrors.CodeInvalidToken))
	})
}

func (s *ServiceSuite) TestChangePassword() {
	s.Run("identical passwords are rejected before the credential service", func() {
		account := s.registerAndConfirm("jane.doe@example.com", "secret1")

		hashBefore := s.credentials.hashCalls
		verifyBefore := s.credentials.verifyCalls
		err := s.service.ChangePassword(s.ctx, account.ID, "secret1", "secret1")
		s.True(dErrors.Is(err, dErrors.CodeSamePassword))
		s.Equal(hashBefore, s.credentials.hashCalls)
		s.Equal(verifyBefore, s.credentials.verifyCalls)
	})

	s.Run("wrong old password is rejected", func() {
		account := s.registerAndConfirm("john.doe@example.com", "secret1")
		err := s.service.ChangePassword(s.ctx, account.ID, "wrong", "secret2")
		s.True(dErrors.Is(err, dErrors.CodeWrongOldPassword))
	})

	s.Run("valid change takes effect", func() {
		account := s.registerAndConfirm("amy.doe@example.com", "secret1")
		s.Require().NoError(s.service.ChangePassword(s.ctx, account.ID, "secret1", "secret2"))

		_, err := s.service.Login(s.ctx, "amy.doe@example.com", "secret2")
		s.NoError(err)
	})

	s.Run("unknown account returns not found", func() {
		err := s.service.ChangePassword(s.ctx, "missing", "secret1", "secret2")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateProfile() {
	s.Run("updates person fields and validated address", func() {
		account := s.registerAndConfirm("jane.doe@example.com", "secret1")

		updated, err := s.service.UpdateProfile(s.ctx, account.ID, models.Profile{
			FirstName: "Janet",
			LastName:  "Doe",
			Address:   "Calle 10 # 20-30",
			Phone:     "3001234567",
		}, &AddressSelection{CountryID: s.colombiaID, StateID: s.antioquiaID, CityID: s.medellinID})
		s.Require().NoError(err)
		s.Equal("Janet", updated.FirstName)
		s.Require().NotNil(updated.CityID)
		s.Equal(s.medellinID, *updated.CityID)
	})

	s.Run("rejects an inconsistent address chain", func() {
		account := s.registerAndConfirm("john.doe@example.com", "secret1")
		_, err := s.service.UpdateProfile(s.ctx, account.ID, models.Profile{
			FirstName: "John",
			LastName:  "Doe",
		}, &AddressSelection{CountryID: 9999, StateID: s.antioquiaID, CityID: s.medellinID})
		s.True(dErrors.Is(err, dErrors.CodeHierarchyMismatch))
	})

	s.Run("keeps the stored image when the update carries none", func() {
		account := s.registerAndConfirm("ida.doe@example.com", "secret1")

		imageID := uuid.New()
		_, err := s.service.UpdateProfile(s.ctx, account.ID, models.Profile{
			FirstName: "Ida",
			LastName:  "Doe",
			ImageID:   imageID,
		}, nil)
		s.Require().NoError(err)

		updated, err := s.service.UpdateProfile(s.ctx, account.ID, models.Profile{
			FirstName: "Ida",
			LastName:  "Doe",
			Phone:     "3001234567",
		}, nil)
		s.Require().NoError(err)
		s.Equal(imageID, updated.ImageID)
	})
}

func (s *ServiceSuite) TestAuditTrail() {
	account := s.registerAndConfirm("jane.doe@example.com", "secret1")
	_, err := s.service.Login(s.ctx, "jane.doe@example.com", "secret1")
	s.Require().NoError(err)

	events, err := s.service.AuditTrail(s.ctx, account.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.ActionAccountRegistered, events[0].Action)
	s.Equal(audit.ActionEmailConfirmed, events[1].Action)
	s.Equal(audit.ActionLoginSucceeded, events[2].Action)
}

func (s *ServiceSuite) TestCreateAdmin() {
	account, err := s.service.CreateAdmin(s.ctx, RegisterRequest{
		Email:    "admin@example.com",
		Password: "secret1",
		Profile:  models.Profile{FirstName: "Ada", LastName: "Admin"},
	})
	s.Require().NoError(err)
	s.Equal(models.KindAdmin, account.Kind)
	s.Equal(models.StateActive, account.State)

	// No confirmation mail for operator-provisioned accounts.
	s.Empty(s.notifier.Sent())

	_, err = s.service.Login(s.ctx, "admin@example.com", "secret1")
	s.NoError(err)
}
