package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Respondent is a row of partysvc.respondent
type Respondent struct {
	ID              int64
	PartyUUID       uuid.UUID
	Status          models.RespondentStatus
	EmailAddress    string
	FirstName       string
	LastName        string
	Telephone       string
	MarkForDeletion bool
}

// Projection is the public view of the respondent
func (r *Respondent) Projection(associations []models.Association) *models.Respondent {
	return &models.Respondent{
		ID:             r.PartyUUID.String(),
		SampleUnitType: models.SampleUnitTypeRespondent,
		EmailAddress:   r.EmailAddress,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Telephone:      r.Telephone,
		Status:         r.Status,
		Associations:   associations,
	}
}

const respondentColumns = "id, party_uuid, status, email_address, first_name, last_name, telephone, mark_for_deletion"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRespondent(row rowScanner) (*Respondent, error) {
	var r Respondent
	var status string
	err := row.Scan(&r.ID, &r.PartyUUID, &status, &r.EmailAddress, &r.FirstName, &r.LastName, &r.Telephone, &r.MarkForDeletion)
	if err != nil {
		return nil, notFound(err)
	}
	if r.Status, err = models.ParseRespondentStatus(status); err != nil {
		return nil, fmt.Errorf("respondent %d: %w", r.ID, err)
	}
	return &r, nil
}

// RespondentByEmail matches the email address case-insensitively
func RespondentByEmail(ctx context.Context, db DBTX, email string) (*Respondent, error) {
	return scanRespondent(db.QueryRowContext(ctx,
		"SELECT "+respondentColumns+" FROM partysvc.respondent WHERE lower(email_address) = lower($1)", email))
}

func RespondentByPartyUUID(ctx context.Context, db DBTX, partyUUID uuid.UUID) (*Respondent, error) {
	return scanRespondent(db.QueryRowContext(ctx,
		"SELECT "+respondentColumns+" FROM partysvc.respondent WHERE party_uuid = $1", partyUUID.String()))
}

// RespondentsByPartyUUIDs returns the respondents that exist among ids, in no particular order
func RespondentsByPartyUUIDs(ctx context.Context, db DBTX, ids []uuid.UUID) ([]*Respondent, error) {
	uuids := make([]string, len(ids))
	for i, id := range ids {
		uuids[i] = id.String()
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+respondentColumns+" FROM partysvc.respondent WHERE party_uuid = ANY($1)", pq.Array(uuids))
	if err != nil {
		return nil, err
	}
	return scanRespondents(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchRespondents returns one page of the respondents matching q, ordered by name, along with
// the number of matches across all pages. Names and email address match by case-insensitive prefix.
func SearchRespondents(ctx context.Context, db DBTX, q models.RespondentSearch) ([]*Respondent, int64, error) {
	var where []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.FirstName != "" {
		add("first_name ILIKE $%d", likeEscaper.Replace(q.FirstName)+"%")
	}
	if q.LastName != "" {
		add("last_name ILIKE $%d", likeEscaper.Replace(q.LastName)+"%")
	}
	if q.EmailAddress != "" {
		add("email_address ILIKE $%d", likeEscaper.Replace(q.EmailAddress)+"%")
	}
	if q.Telephone != "" {
		add("telephone = $%d", q.Telephone)
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if q.BusinessID != "" {
		add("id IN (SELECT respondent_id FROM partysvc.business_respondent WHERE business_id = $%d)", q.BusinessID)
	}
	if q.SurveyID != "" {
		add("id IN (SELECT respondent_id FROM partysvc.enrolment WHERE survey_id = $%d)", q.SurveyID)
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM partysvc.respondent"+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	n := len(args)
	rows, err := db.QueryContext(ctx,
		"SELECT "+respondentColumns+" FROM partysvc.respondent"+filter+
			fmt.Sprintf(" ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d", n+1, n+2),
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	respondents, err := scanRespondents(rows)
	if err != nil {
		return nil, 0, err
	}
	return respondents, total, nil
}

func scanRespondents(rows *sql.Rows) ([]*Respondent, error) {
	defer rows.Close()
	var respondents []*Respondent
	for rows.Next() {
		r, err := scanRespondent(rows)
		if err != nil {
			return nil, err
		}
		respondents = append(respondents, r)
	}
	return respondents, rows.Err()
}

// LockRespondentStatus reads the respondent's status and holds a row lock on it until the
// transaction ends. Only meaningful when db is a transaction.
func LockRespondentStatus(ctx context.Context, db DBTX, id int64) (models.RespondentStatus, error) {
	var status string
	err := db.QueryRowContext(ctx, "SELECT status FROM partysvc.respondent WHERE id = $1 FOR UPDATE", id).Scan(&status)
	if err != nil {
		return "", notFound(err)
	}
	return models.ParseRespondentStatus(status)
}

// InsertRespondent stores r and sets its ID
func InsertRespondent(ctx context.Context, db DBTX, r *Respondent, now time.Time) error {
	return db.QueryRowContext(ctx,
		"INSERT INTO partysvc.respondent (party_uuid, status, email_address, first_name, last_name, telephone, created_on) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		r.PartyUUID.String(), string(r.Status), r.EmailAddress, r.FirstName, r.LastName, r.Telephone, now).Scan(&r.ID)
}

func UpdateRespondentStatus(ctx context.Context, db DBTX, id int64, status models.RespondentStatus) error {
	return execOne(ctx, db, "UPDATE partysvc.respondent SET status = $1 WHERE id = $2", string(status), id)
}

func UpdateRespondentEmail(ctx context.Context, db DBTX, id int64, email string) error {
	return execOne(ctx, db, "UPDATE partysvc.respondent SET email_address = $1 WHERE id = $2", email, id)
}

func UpdateRespondentDetails(ctx context.Context, db DBTX, id int64, firstName, lastName, telephone string) error {
	return execOne(ctx, db,
		"UPDATE partysvc.respondent SET first_name = $1, last_name = $2, telephone = $3 WHERE id = $4",
		firstName, lastName, telephone, id)
}

// MarkRespondentForDeletion flags the respondent for the next deletion sweep
func MarkRespondentForDeletion(ctx context.Context, db DBTX, id int64) error {
	return execOne(ctx, db,
		"UPDATE partysvc.respondent SET mark_for_deletion = true, status = $1 WHERE id = $2",
		string(models.RespondentDeletionPending), id)
}

func RespondentIDsMarkedForDeletion(ctx context.Context, db DBTX) ([]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM partysvc.respondent WHERE mark_for_deletion = true")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRespondents removes the respondents and everything that depends on them.
// Returns the number of respondents deleted.
func DeleteRespondents(ctx context.Context, db DBTX, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	for _, table := range []string{"enrolment", "business_respondent", "pending_enrolment"} {
		_, err := db.ExecContext(ctx, "DELETE FROM partysvc."+table+" WHERE respondent_id = ANY($1)", pq.Array(ids))
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	res, err := db.ExecContext(ctx, "DELETE FROM partysvc.respondent WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("deleting from respondent: %w", err)
	}
	return res.RowsAffected()
}

func execOne(ctx context.Context, db DBTX, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
