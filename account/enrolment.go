package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
	"github.com/ONSdigital/ras-party-accounts/store"
	"github.com/ONSdigital/ras-party-accounts/transaction"
	"github.com/google/uuid"
)

const createdBy = "Party Service"

// enrolmentContext is what the enrolment code resolves to across the case, collection exercise
// and survey services
type enrolmentContext struct {
	caseID     string
	businessID string
	surveyID   string
	surveyName string
}

// RegisterRespondent creates a respondent from an enrolment code. Every lookup happens before
// anything is written; the respondent, its business association, its pending enrolment and its
// credentials are then created together or not at all.
func (s *Service) RegisterRespondent(ctx context.Context, p models.PostRespondent) (*models.Respondent, error) {
	partyUUID, err := validateRegistration(p)
	if err != nil {
		return nil, err
	}

	iac, err := s.remote.IAC.GetIAC(ctx, p.EnrolmentCode)
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.InvalidEnrolmentCode, "Enrolment code is not valid")
	}
	if !iac.Active {
		return nil, raserrors.New(raserrors.InvalidEnrolmentCode, "Enrolment code is not active")
	}

	_, err = store.RespondentByEmail(ctx, s.db, p.EmailAddress)
	switch {
	case err == nil:
		return nil, raserrors.New(raserrors.DuplicateEmail, "User with email address already exists")
	case !errors.Is(err, store.ErrNotFound):
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	}

	ec, err := s.resolveEnrolmentContext(ctx, p.EnrolmentCode)
	if err != nil {
		return nil, err
	}

	if _, err := store.BusinessByPartyUUID(ctx, s.db, ec.businessID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, raserrors.Wrap(err, raserrors.UnknownBusiness, "Could not locate business when creating business association")
		}
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading business")
	}

	r := &store.Respondent{
		PartyUUID:    partyUUID,
		Status:       models.RespondentCreated,
		EmailAddress: p.EmailAddress,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Telephone:    p.Telephone,
	}
	logger := s.logger.With("party_id", partyUUID.String(), "case_id", ec.caseID, "business_id", ec.businessID, "survey_id", ec.surveyID)

	err = s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		if err := s.insertEnrolment(ctx, scope, r, ec); err != nil {
			return err
		}

		err := s.remote.Case.PostCaseEvent(ctx, ec.caseID, models.CaseEvent{
			Description: "New respondent account created",
			Category:    models.CategoryRespondentAccountCreated,
			PartyID:     partyUUID.String(),
			CreatedBy:   createdBy,
		})
		if err != nil {
			return remoteError(err, "Error posting case event")
		}

		if err := s.remote.Credentials.CreateAccount(ctx, p.EmailAddress, p.Password); err != nil {
			return remoteError(err, "Error registering respondent credentials")
		}
		scope.Compensate(func() error {
			// The credential service can't delete accounts yet
			logger.Info("Placeholder for deleting the user from the credential service")
			return nil
		})

		s.sendVerification(ctx, r, s.website.ActivateAccountURL)

		scope.OnSuccess(func() {
			s.recorder.IncrementRespondentsRegistered()
			logger.Info("New respondent registered", "email", obfuscateEmail(r.EmailAddress))
		})
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "Error updating database during enrolment")
	}
	return r.Projection(nil), nil
}

func validateRegistration(p models.PostRespondent) (uuid.UUID, error) {
	if missing := p.MissingFields(); len(missing) > 0 {
		return uuid.Nil, raserrors.New(raserrors.Validation, "Required fields are missing: "+strings.Join(missing, ", "))
	}
	if p.ID == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return uuid.Nil, raserrors.Wrap(err, raserrors.Validation, fmt.Sprintf("'%s' is not a valid UUID format for property 'id'", p.ID))
	}
	return id, nil
}

// resolveEnrolmentContext follows the enrolment code to its case, collection exercise and survey.
// Anything missing along the way is the other services' data at fault, not the caller's.
func (s *Service) resolveEnrolmentContext(ctx context.Context, code string) (*enrolmentContext, error) {
	incomplete := func(err error) error {
		return raserrors.Wrap(err, raserrors.IncompleteEnrolmentContext, "There is no survey bound for this enrolment code")
	}
	lookupFailed := func(err error) error {
		if isNotFound(err) {
			return incomplete(err)
		}
		return remoteError(err, "Error resolving enrolment code")
	}

	c, err := s.remote.Case.GetCaseByEnrolmentCode(ctx, code)
	if err != nil {
		return nil, lookupFailed(err)
	}
	if c.ID == "" || c.BusinessID == "" || c.CaseGroup.CollectionExerciseID == "" {
		return nil, incomplete(errors.New("case is missing its business or collection exercise"))
	}
	for _, id := range []string{c.ID, c.BusinessID} {
		if _, err := uuid.Parse(id); err != nil {
			return nil, incomplete(fmt.Errorf("case %s refers to malformed id %q: %w", c.ID, id, err))
		}
	}

	ce, err := s.remote.CollectionExercise.GetCollectionExercise(ctx, c.CaseGroup.CollectionExerciseID)
	if err != nil {
		return nil, lookupFailed(err)
	}
	if ce.SurveyID == "" {
		return nil, incomplete(fmt.Errorf("collection exercise %s has no survey", c.CaseGroup.CollectionExerciseID))
	}

	survey, err := s.remote.Survey.GetSurvey(ctx, ce.SurveyID)
	if err != nil {
		return nil, lookupFailed(err)
	}
	if survey.LongName == "" {
		return nil, incomplete(fmt.Errorf("survey %s has no name", ce.SurveyID))
	}

	return &enrolmentContext{
		caseID:     c.ID,
		businessID: c.BusinessID,
		surveyID:   ce.SurveyID,
		surveyName: survey.LongName,
	}, nil
}

// insertEnrolment writes the respondent with its business association, pending enrolment and
// the enrolment the pending record will later enable
func (s *Service) insertEnrolment(ctx context.Context, scope *transaction.Scope, r *store.Respondent, ec *enrolmentContext) error {
	tx := scope.Tx()
	now := s.now()
	if err := store.InsertRespondent(ctx, tx, r, now); err != nil {
		if store.IsUniqueViolation(err) {
			return raserrors.Wrap(err, raserrors.Persistence, "User with email address already exists")
		}
		return raserrors.Wrap(err, raserrors.Persistence, "Error creating respondent")
	}
	if err := store.InsertBusinessRespondent(ctx, tx, ec.businessID, r.ID, now); err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error creating business association")
	}
	err := store.InsertEnrolment(ctx, tx, store.Enrolment{
		BusinessID:   ec.businessID,
		RespondentID: r.ID,
		SurveyID:     ec.surveyID,
		SurveyName:   ec.surveyName,
		Status:       models.EnrolmentPending,
	}, now)
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error creating enrolment")
	}
	err = store.InsertPendingEnrolment(ctx, tx, &store.PendingEnrolment{
		CaseID:       ec.caseID,
		RespondentID: r.ID,
		BusinessID:   ec.businessID,
		SurveyID:     ec.surveyID,
	}, now)
	if err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error creating pending enrolment")
	}
	return nil
}
