package account

import (
	"context"
	"errors"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
	"github.com/ONSdigital/ras-party-accounts/store"
	"github.com/ONSdigital/ras-party-accounts/transaction"
	"github.com/google/uuid"
)

func (s *Service) GetRespondentByID(ctx context.Context, id string) (*models.Respondent, error) {
	partyUUID, err := parsePartyUUID(id)
	if err != nil {
		return nil, err
	}
	r, err := store.RespondentByPartyUUID(ctx, s.db, partyUUID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.InfoContext(ctx, "Respondent with party id does not exist", "party_id", id)
		return nil, raserrors.Wrap(err, raserrors.UnknownRespondent, "Respondent with party id does not exist")
	}
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent")
	}
	return s.withAssociations(ctx, r)
}

func (s *Service) GetRespondentByEmail(ctx context.Context, email string) (*models.Respondent, error) {
	r, err := s.respondentByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.withAssociations(ctx, r)
}

func (s *Service) withAssociations(ctx context.Context, r *store.Respondent) (*models.Respondent, error) {
	associations, err := store.Associations(ctx, s.db, r.ID)
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondent associations")
	}
	return r.Projection(associations), nil
}

// SearchRespondents returns a page of the respondents matching q with their associations
func (s *Service) SearchRespondents(ctx context.Context, q models.RespondentSearch) (*models.RespondentPage, error) {
	rs, total, err := store.SearchRespondents(ctx, s.db, q)
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error searching respondents")
	}
	if total == 0 {
		return nil, raserrors.New(raserrors.UnknownRespondent, "No respondents found")
	}
	page := &models.RespondentPage{Data: make([]*models.Respondent, 0, len(rs)), Total: total}
	for _, r := range rs {
		respondent, err := s.withAssociations(ctx, r)
		if err != nil {
			return nil, err
		}
		page.Data = append(page.Data, respondent)
	}
	return page, nil
}

// GetRespondentsByIDs returns the respondents among ids that exist; unknown ids are skipped
func (s *Service) GetRespondentsByIDs(ctx context.Context, ids []string) ([]*models.Respondent, error) {
	if len(ids) == 0 {
		return nil, raserrors.New(raserrors.Validation, "Required parameters are missing: id")
	}
	partyUUIDs := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		partyUUID, err := parsePartyUUID(id)
		if err != nil {
			return nil, err
		}
		partyUUIDs = append(partyUUIDs, partyUUID)
	}
	rs, err := store.RespondentsByPartyUUIDs(ctx, s.db, partyUUIDs)
	if err != nil {
		return nil, raserrors.Wrap(err, raserrors.Persistence, "Error reading respondents")
	}
	respondents := make([]*models.Respondent, 0, len(rs))
	for _, r := range rs {
		respondent, err := s.withAssociations(ctx, r)
		if err != nil {
			return nil, err
		}
		respondents = append(respondents, respondent)
	}
	return respondents, nil
}

// DeleteRespondentByEmail removes the respondent straight away, without waiting for the sweep
func (s *Service) DeleteRespondentByEmail(ctx context.Context, email string) error {
	r, err := s.respondentByEmail(ctx, email)
	if err != nil {
		return err
	}
	err = s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		_, err := store.DeleteRespondents(ctx, scope.Tx(), []int64{r.ID})
		return err
	})
	if err != nil {
		return persistenceError(err, "Error deleting respondent")
	}
	s.logger.InfoContext(ctx, "Deleted respondent", "party_id", r.PartyUUID.String(), "email", obfuscateEmail(email))
	return nil
}

// MarkForDeletion flags the respondent for the next deletion sweep
func (s *Service) MarkForDeletion(ctx context.Context, email string) error {
	r, err := s.respondentByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := store.MarkRespondentForDeletion(ctx, s.db, r.ID); err != nil {
		return raserrors.Wrap(err, raserrors.Persistence, "Error marking respondent for deletion")
	}
	s.logger.InfoContext(ctx, "Marked respondent for deletion", "party_id", r.PartyUUID.String(), "email", obfuscateEmail(email))
	return nil
}

// DeleteMarkedRespondents removes every respondent marked for deletion along with their
// enrolments, business associations and pending enrolments
func (s *Service) DeleteMarkedRespondents(ctx context.Context) error {
	var deleted int64
	err := s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		ids, err := store.RespondentIDsMarkedForDeletion(ctx, scope.Tx())
		if err != nil {
			return err
		}
		deleted, err = store.DeleteRespondents(ctx, scope.Tx(), ids)
		return err
	})
	if err != nil {
		return persistenceError(err, "Error deleting respondents marked for deletion")
	}
	s.logger.InfoContext(ctx, "Deleted respondents marked for deletion", "count", deleted)
	return nil
}

// HasClaim reports whether the respondent may respond to the survey for the business: they must
// be active and hold an enabled enrolment for it
func (s *Service) HasClaim(ctx context.Context, respondentID, businessID, surveyID string) (bool, error) {
	if missing := missingFields("respondent_id", respondentID, "business_id", businessID, "survey_id", surveyID); missing != "" {
		return false, raserrors.New(raserrors.Validation, "Required parameters are missing: "+missing)
	}
	r, err := s.GetRespondentByID(ctx, respondentID)
	if err != nil {
		return false, err
	}
	return r.Status == models.RespondentActive && r.HasEnabledEnrolment(businessID, surveyID), nil
}
