package account

import (
	"context"
	"errors"
	"strings"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/notify"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
	"github.com/ONSdigital/ras-party-accounts/store"
	"github.com/ONSdigital/ras-party-accounts/token"
	"github.com/ONSdigital/ras-party-accounts/transaction"
	"github.com/google/uuid"
)

// VerifyEmail activates the respondent the token was issued for and enables their pending
// enrolment. Verifying an already active respondent succeeds without changing anything, so a
// token can be used more than once until it expires.
func (s *Service) VerifyEmail(ctx context.Context, tok string) (*models.Respondent, error) {
	email, err := s.verifyToken(tok, token.Activation)
	if err != nil {
		return nil, err
	}
	r, err := s.respondentByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("party_id", r.PartyUUID.String())

	if r.Status != models.RespondentActive {
		err := s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
			return s.activate(ctx, scope, r)
		})
		if err != nil {
			return nil, persistenceError(err, "Error activating respondent")
		}
		r.Status = models.RespondentActive
	}

	verified := true
	err = s.remote.Credentials.UpdateAccount(ctx, models.AccountUpdate{Username: email, AccountVerified: &verified})
	if err != nil {
		logger.ErrorContext(ctx, "Unable to set the user verified on the credential service", "error", err)
	}

	associations, err := store.Associations(ctx, s.db, r.ID)
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent associations")
	}
	return r.Projection(associations), nil
}

// activate moves the respondent to ACTIVE under a row lock, so of two concurrent verifications
// only one promotes the pending enrolment
func (s *Service) activate(ctx context.Context, scope *transaction.Scope, r *store.Respondent) error {
	tx := scope.Tx()
	logger := s.logger.With("party_id", r.PartyUUID.String())

	status, err := store.LockRespondentStatus(ctx, tx, r.ID)
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error locking respondent")
	}
	if status == models.RespondentActive {
		return nil
	}
	if err := store.UpdateRespondentStatus(ctx, tx, r.ID, models.RespondentActive); err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error activating respondent")
	}
	scope.OnSuccess(func() {
		s.recorder.IncrementAccountsActivated()
		logger.Info("Respondent activated")
	})

	pe, err := store.PendingEnrolmentForRespondent(ctx, tx, r.ID)
	if errors.Is(err, store.ErrNotFound) {
		logger.InfoContext(ctx, "No pending enrolment for respondent while checking email verification token")
		return nil
	}
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error reading pending enrolment")
	}

	logger = logger.With("case_id", pe.CaseID, "business_id", pe.BusinessID, "survey_id", pe.SurveyID)
	if err := store.EnableEnrolment(ctx, tx, pe.BusinessID, pe.SurveyID, r.ID); err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error enabling pending enrolment")
	}
	err = s.remote.Case.PostCaseEvent(ctx, pe.CaseID, models.CaseEvent{
		Description: "Respondent enrolled",
		Category:    models.CategoryRespondentEnroled,
		PartyID:     r.PartyUUID.String(),
		CreatedBy:   createdBy,
	})
	if err != nil {
		return remoteError(err, "Error posting case event")
	}
	if err := store.DeletePendingEnrolment(ctx, tx, pe.ID); err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error deleting pending enrolment")
	}
	scope.OnSuccess(func() {
		s.recorder.IncrementEnrolmentsEnabled()
		logger.Info("Enabled pending enrolment for respondent")
	})
	return nil
}

// ChangeEmail moves the respondent and their login to a new email address and asks them to
// verify it. The login is renamed back if the change can't be stored.
func (s *Service) ChangeEmail(ctx context.Context, p models.ChangeEmail) (*models.Respondent, error) {
	if missing := missingFields("email_address", p.EmailAddress, "new_email_address", p.NewEmailAddress); missing != "" {
		return nil, raserrors.New(raserrors.Validation, "Required fields are missing: "+missing)
	}
	r, err := s.respondentByEmail(ctx, p.EmailAddress)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmailChange(ctx, r, p.NewEmailAddress); err != nil {
		return nil, err
	}
	if p.NewEmailAddress == r.EmailAddress {
		return r.Projection(nil), nil
	}

	err = s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		return s.changeEmail(ctx, scope, r, p.NewEmailAddress)
	})
	if err != nil {
		return nil, persistenceError(err, "Error changing respondent email")
	}
	return r.Projection(nil), nil
}

// ChangeRespondentDetails updates the respondent's name and telephone and, when a different new
// email address is given, changes their email in the same unit of work. A current email address,
// when supplied, must be the respondent's own.
func (s *Service) ChangeRespondentDetails(ctx context.Context, id string, p models.ChangeDetails) error {
	partyUUID, err := parsePartyUUID(id)
	if err != nil {
		return err
	}
	if missing := missingFields("firstName", p.FirstName, "lastName", p.LastName, "telephone", p.Telephone); missing != "" {
		return raserrors.New(raserrors.Validation, "Required fields are missing: "+missing)
	}
	r, err := store.RespondentByPartyUUID(ctx, s.db, partyUUID)
	if errors.Is(err, store.ErrNotFound) {
		return raserrors.Wrap(err, raserrors.UnknownRespondent, "Respondent id does not exist")
	}
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	}

	if p.EmailAddress != "" && !strings.EqualFold(p.EmailAddress, r.EmailAddress) {
		return raserrors.New(raserrors.Validation, "Email address does not belong to respondent")
	}

	newEmail := p.NewEmailAddress
	if newEmail != "" {
		if err := s.checkEmailChange(ctx, r, newEmail); err != nil {
			return err
		}
	}

	err = s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		err := store.UpdateRespondentDetails(ctx, scope.Tx(), r.ID, p.FirstName, p.LastName, p.Telephone)
		if err != nil {
			return raserrors.Wrap(err, raserrors.Persistence, "Error updating respondent details")
		}
		if newEmail == "" || newEmail == r.EmailAddress {
			return nil
		}
		return s.changeEmail(ctx, scope, r, newEmail)
	})
	if err != nil {
		return persistenceError(err, "Error updating respondent details")
	}
	return nil
}

// checkEmailChange rejects a new address already used by another respondent. A change of case
// only matches the respondent themselves.
func (s *Service) checkEmailChange(ctx context.Context, r *store.Respondent, newEmail string) error {
	if newEmail == r.EmailAddress {
		return nil
	}
	existing, err := store.RespondentByEmail(ctx, s.db, newEmail)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	case existing.ID != r.ID:
		return raserrors.New(raserrors.EmailTaken, "New email address already taken")
	}
	return nil
}

func (s *Service) changeEmail(ctx context.Context, scope *transaction.Scope, r *store.Respondent, newEmail string) error {
	oldEmail := r.EmailAddress
	if err := store.UpdateRespondentEmail(ctx, scope.Tx(), r.ID, newEmail); err != nil {
		if store.IsUniqueViolation(err) {
			return raserrors.Wrap(err, raserrors.EmailTaken, "New email address already taken")
		}
		return raserrors.Wrap(err, raserrors.Persistence, "Error updating respondent email")
	}

	unverified := false
	err := s.remote.Credentials.UpdateAccount(ctx, models.AccountUpdate{
		Username:        oldEmail,
		NewUsername:     newEmail,
		AccountVerified: &unverified,
	})
	if err != nil {
		return remoteError(err, "Failed to change respondent email")
	}
	scope.Compensate(func() error {
		verified := true
		err := s.remote.Credentials.UpdateAccount(context.WithoutCancel(ctx), models.AccountUpdate{
			Username:        newEmail,
			NewUsername:     oldEmail,
			AccountVerified: &verified,
		})
		if err != nil {
			return raserrors.Wrap(err, raserrors.RemoteService, "Failed to rollback change to respondent email")
		}
		return nil
	})

	scope.OnSuccess(func() {
		r.EmailAddress = newEmail
		s.sendVerification(ctx, r, s.website.ConfirmEmailChangeURL)
		s.logger.InfoContext(ctx, "Respondent has changed their email address", "party_id", r.PartyUUID.String())
	})
	return nil
}

// ChangePassword sets a new password for the respondent a password reset token was issued for
func (s *Service) ChangePassword(ctx context.Context, tok string, p models.ChangePassword) error {
	if missing := missingFields("new_password", p.NewPassword); missing != "" {
		return raserrors.New(raserrors.Validation, "Required fields are missing: "+missing)
	}
	email, err := s.verifyToken(tok, token.PasswordReset)
	if err != nil {
		return err
	}
	r, err := s.respondentByEmail(ctx, email)
	if err != nil {
		return err
	}

	verified := true
	err = s.remote.Credentials.UpdateAccount(ctx, models.AccountUpdate{
		Username:        email,
		Password:        p.NewPassword,
		AccountVerified: &verified,
	})
	if err != nil {
		return remoteError(err, "Failed to change respondent password")
	}

	s.notify(ctx, notify.ConfirmPasswordChange, r, map[string]string{"FIRST_NAME": r.FirstName})
	s.logger.InfoContext(ctx, "Respondent has changed their password", "party_id", r.PartyUUID.String())
	return nil
}

// RequestPasswordChange emails a password reset link. The outcome of sending the email is
// never reported, so the answer is the same whether or not it was delivered.
func (s *Service) RequestPasswordChange(ctx context.Context, p models.PasswordResetRequest) error {
	if missing := missingFields("email_address", p.EmailAddress); missing != "" {
		return raserrors.New(raserrors.Validation, "Required fields are missing: "+missing)
	}
	r, err := s.respondentByEmail(ctx, p.EmailAddress)
	if err != nil {
		return err
	}

	tok, err := s.tokens.Issue(token.PasswordReset, r.EmailAddress)
	if err != nil {
		return raserrors.Wrap(err, raserrors.Internal, "Error issuing password reset token")
	}
	s.notify(ctx, notify.RequestPasswordChange, r, map[string]string{
		"RESET_PASSWORD_URL": s.website.ResetPasswordURL(tok),
		"FIRST_NAME":         r.FirstName,
	})
	return nil
}

// ResendVerificationEmail sends the respondent a new activation link
func (s *Service) ResendVerificationEmail(ctx context.Context, partyID string) error {
	partyUUID, err := parsePartyUUID(partyID)
	if err != nil {
		return err
	}
	r, err := store.RespondentByPartyUUID(ctx, s.db, partyUUID)
	if errors.Is(err, store.ErrNotFound) {
		return raserrors.Wrap(err, raserrors.UnknownRespondent, "There is no respondent with that party ID")
	}
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	}
	s.sendVerification(ctx, r, s.website.ActivateAccountURL)
	return nil
}

// VerifyToken checks a token of any purpose belongs to an existing respondent
func (s *Service) VerifyToken(ctx context.Context, tok string) error {
	email, err := s.verifyToken(tok, token.Activation, token.PasswordReset, token.EmailChange)
	if err != nil {
		return err
	}
	_, err = s.respondentByEmail(ctx, email)
	return err
}

func parsePartyUUID(id string) (uuid.UUID, error) {
	partyUUID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, raserrors.Wrap(err, raserrors.Validation, "'"+id+"' is not a valid UUID format for property 'id'")
	}
	return partyUUID, nil
}

// missingFields takes name, value pairs and lists the names of the empty values
func missingFields(pairs ...string) string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return strings.Join(missing, ", ")
}
