package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ONSdigital/ras-party-accounts/models"
)

// Business is the part of partysvc.business this service reads
type Business struct {
	PartyUUID   string
	BusinessRef string
}

// Enrolment is a row of partysvc.enrolment
type Enrolment struct {
	BusinessID   string
	RespondentID int64
	SurveyID     string
	SurveyName   string
	Status       models.EnrolmentStatus
}

// PendingEnrolment is a row of partysvc.pending_enrolment: the case context of a registration
// that hasn't been verified yet
type PendingEnrolment struct {
	ID           int64
	CaseID       string
	RespondentID int64
	BusinessID   string
	SurveyID     string
}

func BusinessByPartyUUID(ctx context.Context, db DBTX, partyUUID string) (*Business, error) {
	var b Business
	err := db.QueryRowContext(ctx,
		"SELECT party_uuid, business_ref FROM partysvc.business WHERE party_uuid = $1", partyUUID).
		Scan(&b.PartyUUID, &b.BusinessRef)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func InsertBusinessRespondent(ctx context.Context, db DBTX, businessID string, respondentID int64, now time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO partysvc.business_respondent (business_id, respondent_id, status, effective_from, created_on) "+
			"VALUES ($1, $2, $3, $4, $5)",
		businessID, respondentID, string(models.BusinessRespondentActive), now, now)
	return err
}

func InsertEnrolment(ctx context.Context, db DBTX, e Enrolment, now time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO partysvc.enrolment (business_id, respondent_id, survey_id, survey_name, status, created_on) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		e.BusinessID, e.RespondentID, e.SurveyID, e.SurveyName, string(e.Status), now)
	return err
}

// InsertPendingEnrolment stores pe and sets its ID
func InsertPendingEnrolment(ctx context.Context, db DBTX, pe *PendingEnrolment, now time.Time) error {
	return db.QueryRowContext(ctx,
		"INSERT INTO partysvc.pending_enrolment (case_id, respondent_id, business_id, survey_id, created_on) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id",
		pe.CaseID, pe.RespondentID, pe.BusinessID, pe.SurveyID, now).Scan(&pe.ID)
}

func PendingEnrolmentForRespondent(ctx context.Context, db DBTX, respondentID int64) (*PendingEnrolment, error) {
	var pe PendingEnrolment
	err := db.QueryRowContext(ctx,
		"SELECT id, case_id, respondent_id, business_id, survey_id FROM partysvc.pending_enrolment WHERE respondent_id = $1",
		respondentID).Scan(&pe.ID, &pe.CaseID, &pe.RespondentID, &pe.BusinessID, &pe.SurveyID)
	if err != nil {
		return nil, notFound(err)
	}
	return &pe, nil
}

func DeletePendingEnrolment(ctx context.Context, db DBTX, id int64) error {
	return execOne(ctx, db, "DELETE FROM partysvc.pending_enrolment WHERE id = $1", id)
}

// EnableEnrolment promotes the enrolment for the triple to ENABLED. Exactly one enrolment must
// match; anything else is reported as ErrInconsistent.
func EnableEnrolment(ctx context.Context, db DBTX, businessID, surveyID string, respondentID int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE partysvc.enrolment SET status = $1 WHERE business_id = $2 AND survey_id = $3 AND respondent_id = $4",
		string(models.EnrolmentEnabled), businessID, surveyID, respondentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrInconsistent
	}
	return nil
}

// Associations returns the businesses the respondent is linked to, each with its enrolments
func Associations(ctx context.Context, db DBTX, respondentID int64) ([]models.Association, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT br.business_id, e.survey_id, e.survey_name, e.status FROM partysvc.business_respondent br "+
			"LEFT JOIN partysvc.enrolment e ON e.business_id = br.business_id AND e.respondent_id = br.respondent_id "+
			"WHERE br.respondent_id = $1 ORDER BY br.business_id, e.survey_id", respondentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var associations []models.Association
	for rows.Next() {
		var businessID string
		var surveyID, surveyName, status sql.NullString
		if err := rows.Scan(&businessID, &surveyID, &surveyName, &status); err != nil {
			return nil, err
		}
		if len(associations) == 0 || associations[len(associations)-1].PartyID != businessID {
			associations = append(associations, models.Association{PartyID: businessID, Enrolments: []models.Enrolment{}})
		}
		if !surveyID.Valid {
			continue
		}
		enrolmentStatus, err := models.ParseEnrolmentStatus(status.String)
		if err != nil {
			return nil, err
		}
		a := &associations[len(associations)-1]
		a.Enrolments = append(a.Enrolments, models.Enrolment{
			EnrolmentStatus: enrolmentStatus,
			SurveyID:        surveyID.String,
			SurveyName:      surveyName.String,
		})
	}
	return associations, rows.Err()
}
