// Package account enrols respondents and drives them through email verification, password and
// email changes.
package account

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ONSdigital/ras-party-accounts/clients"
	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/notify"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
	"github.com/ONSdigital/ras-party-accounts/store"
	"github.com/ONSdigital/ras-party-accounts/token"
	"github.com/ONSdigital/ras-party-accounts/transaction"
)

const defaultTokenExpiry = 24 * time.Hour

type IACService interface {
	GetIAC(ctx context.Context, code string) (*models.IAC, error)
}

type CaseService interface {
	GetCaseByEnrolmentCode(ctx context.Context, code string) (*models.Case, error)
	PostCaseEvent(ctx context.Context, caseID string, event models.CaseEvent) error
}

type CollectionExerciseService interface {
	GetCollectionExercise(ctx context.Context, id string) (*models.CollectionExercise, error)
}

type SurveyService interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
}

// CredentialService holds the respondent's login
type CredentialService interface {
	CreateAccount(ctx context.Context, username, password string) error
	UpdateAccount(ctx context.Context, update models.AccountUpdate) error
}

type Notifier interface {
	Send(ctx context.Context, template notify.Template, recipient string, personalisation map[string]string, reference string) error
}

// Recorder counts completed state transitions
type Recorder interface {
	IncrementRespondentsRegistered()
	IncrementAccountsActivated()
	IncrementEnrolmentsEnabled()
}

// Collaborators are the remote services the account service calls
type Collaborators struct {
	IAC                IACService
	Case               CaseService
	CollectionExercise CollectionExerciseService
	Survey             SurveyService
	Credentials        CredentialService
	Notifier           Notifier
}

// PublicWebsite builds the links emailed to respondents
type PublicWebsite struct {
	URL string
}

func (w PublicWebsite) ActivateAccountURL(token string) string {
	return w.URL + "/register/activate-account/" + token
}

func (w PublicWebsite) ResetPasswordURL(token string) string {
	return w.URL + "/passwords/reset-password/" + token
}

func (w PublicWebsite) ConfirmEmailChangeURL(token string) string {
	return w.URL + "/my-account/confirm-account-email-change/" + token
}

type Service struct {
	db          *sql.DB
	coordinator *transaction.Coordinator
	tokens      *token.Service
	website     PublicWebsite
	remote      Collaborators
	tokenExpiry time.Duration
	logger      *slog.Logger
	recorder    Recorder
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTokenExpiry sets how long an emailed token stays valid
func WithTokenExpiry(d time.Duration) Option {
	return func(s *Service) {
		s.tokenExpiry = d
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(db *sql.DB, coordinator *transaction.Coordinator, tokens *token.Service, website PublicWebsite, remote Collaborators, opts ...Option) *Service {
	s := &Service{
		db:          db,
		coordinator: coordinator,
		tokens:      tokens,
		website:     website,
		remote:      remote,
		tokenExpiry: defaultTokenExpiry,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopRecorder struct{}

func (nopRecorder) IncrementRespondentsRegistered() {}
func (nopRecorder) IncrementAccountsActivated()     {}
func (nopRecorder) IncrementEnrolmentsEnabled()     {}

// verifyToken decodes the email address from a token issued for one of purposes
func (s *Service) verifyToken(tok string, purposes ...token.Purpose) (string, error) {
	email, err := s.tokens.Verify(tok, s.tokenExpiry, purposes...)
	switch {
	case errors.Is(err, token.ErrExpired):
		return "", raserrors.Wrap(err, raserrors.ExpiredToken, "Expired email verification token")
	case err != nil:
		return "", raserrors.Wrap(err, raserrors.InvalidToken, "Unknown email verification token")
	}
	return email, nil
}

func (s *Service) respondentByEmail(ctx context.Context, email string) (*store.Respondent, error) {
	r, err := store.RespondentByEmail(ctx, s.db, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, raserrors.Wrap(err, raserrors.UnknownRespondent, "Respondent does not exist")
	}
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	}
	return r, nil
}

// sendVerification emails a fresh activation token, placed in the page link builds.
// A failure is logged and never returned.
func (s *Service) sendVerification(ctx context.Context, r *store.Respondent, link func(token string) string) {
	tok, err := s.tokens.Issue(token.Activation, r.EmailAddress)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error issuing verification token", "party_id", r.PartyUUID.String(), "error", err)
		return
	}
	personalisation := map[string]string{"ACCOUNT_VERIFICATION_URL": link(tok)}
	s.notify(ctx, notify.EmailVerification, r, personalisation)
}

func (s *Service) notify(ctx context.Context, template notify.Template, r *store.Respondent, personalisation map[string]string) {
	partyID := r.PartyUUID.String()
	err := s.remote.Notifier.Send(ctx, template, r.EmailAddress, personalisation, partyID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error sending notification email", "party_id", partyID, "template", template.String(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "Notification email sent", "party_id", partyID, "template", template.String())
}

// remoteError maps a failed call to a collaborator
func remoteError(err error, message string) error {
	return raserrors.Wrap(err, raserrors.RemoteService, message)
}

// persistenceError maps a failed datastore write. Errors already classified pass through.
func persistenceError(err error, message string) error {
	var rasErr *raserrors.Error
	if errors.As(err, &rasErr) {
		return err
	}
	return raserrors.Wrap(err, raserrors.Persistence, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, clients.ErrNotFound) || errors.Is(err, store.ErrNotFound)
}

// obfuscateEmail keeps the first and last character of the local part and of the domain name,
// e.g. "example@example.com" becomes "e*****e@e*****e.com"
func obfuscateEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return mask(email)
	}
	name, tld, hasTLD := strings.Cut(domain, ".")
	masked := mask(local) + "@" + mask(name)
	if hasTLD {
		masked += "." + tld
	}
	return masked
}

func mask(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}
