// Package service owns the account lifecycle state machine: registration,
// email confirmation, login with failed-attempt lockout, and password
// management. Every operation is one logical transaction against the single
// account it targets, serialized through the store's compare-and-swap
// contract; different accounts proceed fully in parallel.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"shopcore/internal/account/models"
	"shopcore/internal/account/store"
	"shopcore/internal/audit"
	"shopcore/internal/credential"
	"shopcore/internal/notify"
	"shopcore/internal/platform/metrics"
	dErrors "shopcore/pkg/domain-errors"
	"shopcore/pkg/requestcontext"
	"shopcore/pkg/sentinel"
)

var tracer = otel.Tracer("shopcore/account/service")

// maxCASRetries bounds the re-read-and-retry loop when a concurrent writer
// wins the version race on the same account.
const maxCASRetries = 3

// GeoValidator confirms that a Country→State→City selection forms a
// consistent parent chain. Satisfied by the geo resolver.
type GeoValidator interface {
	ValidateSelection(ctx context.Context, countryID, stateID, cityID int64) error
}

// Config carries the lifecycle tunables.
type Config struct {
	// MaxFailedAttempts consecutive failures trip a lockout.
	MaxFailedAttempts int
	// LockoutDuration is the window during which a locked account rejects
	// logins without checking the password.
	LockoutDuration time.Duration

	ConfirmationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// PublicBaseURL prefixes the action links embedded in outbound mail.
	PublicBaseURL string
	// NotifyTimeout bounds every notifier call.
	NotifyTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts:    3,
		LockoutDuration:      5 * time.Minute,
		ConfirmationTokenTTL: 72 * time.Hour,
		ResetTokenTTL:        time.Hour,
		PublicBaseURL:        "http://localhost:8080",
		NotifyTimeout:        10 * time.Second,
	}
}

// Service is the account lifecycle manager.
type Service struct {
	accounts    store.AccountStore
	credentials credential.Service
	notifier    notify.Notifier
	geo         GeoValidator
	audit       *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	config      Config
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAudit sets the audit publisher.
func WithAudit(publisher *audit.Publisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithConfig overrides the lifecycle tunables.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// New creates the lifecycle service.
func New(accounts store.AccountStore, credentials credential.Service, notifier notify.Notifier, geo GeoValidator, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if credentials == nil {
		return nil, errors.New("credential service is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if geo == nil {
		return nil, errors.New("geo validator is required")
	}

	svc := &Service{
		accounts:    accounts,
		credentials: credentials,
		notifier:    notifier,
		geo:         geo,
		logger:      slog.Default(),
		config:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AddressSelection is the full cascading-picker choice accompanying an
// address write.
type AddressSelection struct {
	CountryID int64
	StateID   int64
	CityID    int64
}

// RegisterRequest carries everything needed to create an account.
type RegisterRequest struct {
	Email    string
	Password string
	Profile  models.Profile
	// Address, when present, is validated against the geo hierarchy before
	// the account is created.
	Address *AddressSelection
}

// Register creates an account in PendingConfirmation and dispatches the
// confirmation link. When delivery fails the account stays created and the
// error carries notification_failed — the caller may resend via
// ResendConfirmation.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	ctx, span := tracer.Start(ctx, "account.Register")
	defer span.End()

	account, err := s.createAccount(ctx, req, models.KindUser)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AccountsRegistered.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: account.ID,
		Email:     account.Email,
		Action:    audit.ActionAccountRegistered,
	})

	if err := s.sendConfirmation(ctx, account); err != nil {
		// Partial failure by contract: registration is committed, only the
		// notification is reported as failed.
		return account, err
	}
	return account, nil
}

// CreateAdmin creates a back-office account. Admin accounts are provisioned
// by an operator, not self-registered, so they start Active with no
// confirmation round-trip.
func (s *Service) CreateAdmin(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	account, err := s.createAccount(ctx, req, models.KindAdmin)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	account.State = models.StateActive
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate admin account")
	}

	s.emitAudit(ctx, audit.Event{
		AccountID: account.ID,
		Email:     account.Email,
		Action:    audit.ActionAdminAccountCreated,
	})
	return account, nil
}

func (s *Service) createAccount(ctx context.Context, req RegisterRequest, kind models.Kind) (*models.Account, error) {
	now := requestcontext.Now(ctx)

	profile := req.Profile
	if req.Address != nil {
		if err := s.geo.ValidateSelection(ctx, req.Address.CountryID, req.Address.StateID, req.Address.CityID); err != nil {
			return nil, err
		}
		cityID := req.Address.CityID
		profile.CityID = &cityID
	}

	if req.Password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "password is required")
	}
	hash, err := s.credentials.HashPassword(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	account, err := models.NewAccount(req.Email, hash, profile, kind, now)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicateEmail, "this email is already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	return account, nil
}

// ResendConfirmation re-issues the confirmation link for a pending account.
// Already-active accounts are a no-op success.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	if account.State != models.StatePendingConfirmation {
		return nil
	}
	return s.sendConfirmation(ctx, account)
}

func (s *Service) sendConfirmation(ctx context.Context, account *models.Account) error {
	token, err := s.credentials.IssueToken(ctx, account.ID, models.TokenConfirmEmail, s.config.ConfirmationTokenTTL)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue confirmation token")
	}

	msg := notify.ConfirmationMessage(s.config.PublicBaseURL, account.Email, account.FullName(), account.ID, token)
	if err := s.send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "confirmation email delivery failed",
			"account_id", account.ID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.NotificationsFailed.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeNotificationFailed, "confirmation email could not be delivered")
	}
	return nil
}

// send bounds the notifier call; a slow mail provider must not hold the
// request past its own deadline.
func (s *Service) send(ctx context.Context, msg notify.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.NotifyTimeout)
	defer cancel()
	return s.notifier.Send(sendCtx, msg)
}

// ConfirmEmail redeems a confirmation token, transitioning
// PendingConfirmation → Active. Confirming an already-active account is an
// idempotent success and consumes nothing.
func (s *Service) ConfirmEmail(ctx context.Context, accountID, token string) error {
	now := requestcontext.Now(ctx)

	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	if account.State != models.StatePendingConfirmation {
		return nil
	}

	if err := s.credentials.ConsumeToken(ctx, accountID, models.TokenConfirmEmail, token); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidToken, "confirmation token is invalid or expired")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate confirmation token")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		account.State = models.StateActive
		account.UpdatedAt = now
		err := s.accounts.Update(ctx, account)
		if errors.Is(err, sentinel.ErrConflict) {
			account, err = s.accounts.FindByID(ctx, accountID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
			}
			if account.State != models.StatePendingConfirmation {
				return nil
			}
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate account")
		}

		if s.metrics != nil {
			s.metrics.EmailsConfirmed.Inc()
		}
		s.emitAudit(ctx, audit.Event{
			AccountID: account.ID,
			Email:     account.Email,
			Action:    audit.ActionEmailConfirmed,
		})
		return nil
	}
	return dErrors.New(dErrors.CodeInternal, "account update contention")
}

// Login verifies credentials and advances the lockout state machine.
//
// Ordering is deliberate: a live lockout fails fast before the password is
// ever checked, so the result leaks nothing about password correctness while
// locked. Unknown emails and wrong passwords share one external message.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Account, error) {
	ctx, span := tracer.Start(ctx, "account.Login")
	defer span.End()

	now := requestcontext.Now(ctx)

	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		if s.metrics != nil {
			s.metrics.LoginFailures.Inc()
		}
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "email or password is incorrect")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if account.IsLockedAt(now) {
			return nil, dErrors.NewLockedOut(account.LockoutRemaining(now))
		}
		if account.State == models.StatePendingConfirmation {
			return nil, dErrors.New(dErrors.CodeNotConfirmed, "account email has not been confirmed")
		}
		// A lockout whose window has elapsed reverts to Active before any
		// counting resumes. Remember that a repair is pending: clearing
		// zeroes the very fields the write-back guard below inspects.
		expiredLockout := account.State == models.StateLockedOut
		if expiredLockout {
			account.ClearLockout()
		}

		if verr := s.credentials.VerifyPassword(account.PasswordHash, password); verr != nil {
			locked := account.RecordFailedLogin(now, s.config.MaxFailedAttempts, s.config.LockoutDuration)
			account.UpdatedAt = now
			if uerr := s.accounts.Update(ctx, account); uerr != nil {
				if errors.Is(uerr, sentinel.ErrConflict) {
					if account, err = s.accounts.FindByEmail(ctx, email); err != nil {
						return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
					}
					continue
				}
				return nil, dErrors.Wrap(uerr, dErrors.CodeInternal, "failed to record login failure")
			}

			if s.metrics != nil {
				s.metrics.LoginFailures.Inc()
			}
			s.emitAudit(ctx, audit.Event{
				AccountID: account.ID,
				Email:     account.Email,
				Action:    audit.ActionLoginFailed,
			})
			if locked {
				if s.metrics != nil {
					s.metrics.LockoutsTriggered.Inc()
				}
				s.emitAudit(ctx, audit.Event{
					AccountID: account.ID,
					Email:     account.Email,
					Action:    audit.ActionAccountLocked,
					Reason:    "failed login threshold reached",
				})
			}
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "email or password is incorrect")
		}

		if expiredLockout || account.FailedLogins != 0 || account.LockedUntil != nil {
			account.ClearLockout()
			account.UpdatedAt = now
			if uerr := s.accounts.Update(ctx, account); uerr != nil {
				if errors.Is(uerr, sentinel.ErrConflict) {
					if account, err = s.accounts.FindByEmail(ctx, email); err != nil {
						return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
					}
					continue
				}
				return nil, dErrors.Wrap(uerr, dErrors.CodeInternal, "failed to reset login counter")
			}
		}

		if s.metrics != nil {
			s.metrics.LoginSuccesses.Inc()
		}
		s.emitAudit(ctx, audit.Event{
			AccountID: account.ID,
			Email:     account.Email,
			Action:    audit.ActionLoginSucceeded,
		})
		return account, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "account update contention")
}

// RequestPasswordReset issues a reset token and dispatches the reset link.
// The service reports NotFound internally; the transport layer frames the
// response uniformly so callers cannot probe for registered emails.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	token, err := s.credentials.IssueToken(ctx, account.ID, models.TokenPasswordReset, s.config.ResetTokenTTL)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue reset token")
	}

	msg := notify.PasswordResetMessage(s.config.PublicBaseURL, account.Email, account.FullName(), account.ID, token)
	if err := s.send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "reset email delivery failed",
			"account_id", account.ID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.NotificationsFailed.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeNotificationFailed, "reset email could not be delivered")
	}

	s.emitAudit(ctx, audit.Event{
		AccountID: account.ID,
		Email:     account.Email,
		Action:    audit.ActionPasswordResetRequested,
	})
	return nil
}

// ResetPassword redeems a reset token, replaces the credential and clears
// any failed-login state, including an active lockout.
func (s *Service) ResetPassword(ctx context.Context, accountID, token, newPassword string) error {
	ctx, span := tracer.Start(ctx, "account.ResetPassword")
	defer span.End()

	now := requestcontext.Now(ctx)

	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	if err := s.credentials.ConsumeToken(ctx, accountID, models.TokenPasswordReset, token); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidToken, "reset token is invalid or expired")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate reset token")
	}

	if newPassword == "" {
		return dErrors.New(dErrors.CodeBadRequest, "new password is required")
	}
	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		account.PasswordHash = hash
		account.ClearLockout()
		account.UpdatedAt = now
		err := s.accounts.Update(ctx, account)
		if errors.Is(err, sentinel.ErrConflict) {
			if account, err = s.accounts.FindByID(ctx, accountID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
			}
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update credential")
		}

		if s.metrics != nil {
			s.metrics.PasswordResets.Inc()
		}
		s.emitAudit(ctx, audit.Event{
			AccountID: account.ID,
			Email:     account.Email,
			Action:    audit.ActionPasswordReset,
		})
		return nil
	}
	return dErrors.New(dErrors.CodeInternal, "account update contention")
}

// ChangePassword replaces the credential after verifying the old one. Equal
// old and new passwords are rejected before the credential service is ever
// contacted.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if oldPassword == newPassword {
		return dErrors.New(dErrors.CodeSamePassword, "the new password must be different from the current one")
	}

	now := requestcontext.Now(ctx)

	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	if err := s.credentials.VerifyPassword(account.PasswordHash, oldPassword); err != nil {
		return dErrors.New(dErrors.CodeWrongOldPassword, "current password is incorrect")
	}

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		account.PasswordHash = hash
		account.UpdatedAt = now
		err := s.accounts.Update(ctx, account)
		if errors.Is(err, sentinel.ErrConflict) {
			if account, err = s.accounts.FindByID(ctx, accountID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
			}
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update credential")
		}

		s.emitAudit(ctx, audit.Event{
			AccountID: account.ID,
			Email:     account.Email,
			Action:    audit.ActionPasswordChanged,
		})
		return nil
	}
	return dErrors.New(dErrors.CodeInternal, "account update contention")
}

// UpdateProfile edits the person fields. An address change re-validates the
// full Country→State→City chain before anything is written.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, profile models.Profile, address *AddressSelection) (*models.Account, error) {
	now := requestcontext.Now(ctx)

	if address != nil {
		if err := s.geo.ValidateSelection(ctx, address.CountryID, address.StateID, address.CityID); err != nil {
			return nil, err
		}
		cityID := address.CityID
		profile.CityID = &cityID
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		account.FirstName = profile.FirstName
		account.LastName = profile.LastName
		account.Document = profile.Document
		account.Address = profile.Address
		account.Phone = profile.Phone
		// Absent selections keep the current values; a profile edit cannot
		// silently detach the image or the address.
		if profile.ImageID != uuid.Nil {
			account.ImageID = profile.ImageID
		}
		if profile.CityID != nil {
			account.CityID = profile.CityID
		}
		account.UpdatedAt = now
		err := s.accounts.Update(ctx, account)
		if errors.Is(err, sentinel.ErrConflict) {
			if account, err = s.accounts.FindByID(ctx, accountID); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-read account")
			}
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
		}

		s.emitAudit(ctx, audit.Event{
			AccountID: account.ID,
			Email:     account.Email,
			Action:    audit.ActionProfileUpdated,
		})
		return account, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "account update contention")
}

// Get returns one account by ID.
func (s *Service) Get(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	return account, nil
}

// AuditTrail returns the lifecycle events recorded for one account, oldest
// first. Empty when auditing is not configured.
func (s *Service) AuditTrail(ctx context.Context, accountID string) ([]audit.Event, error) {
	if s.audit == nil {
		return []audit.Event{}, nil
	}
	events, err := s.audit.List(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}

// emitAudit records the event and logs on failure; auditing never fails the
// business operation.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
