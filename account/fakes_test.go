package account

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/notify"
	"github.com/ONSdigital/ras-party-accounts/token"
	"github.com/ONSdigital/ras-party-accounts/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	partyID            = "be70e086-7bbc-461c-a565-5b454d748a71"
	otherPartyID       = "438df969-7c9c-4cd4-a89b-ac88cf0bfdf3"
	businessID         = "ba02fad7-ae27-45c6-ab0f-c8cd9a48ebc2"
	caseID             = "7bc5d41b-0549-40b3-ba76-42f6d4cf3fdb"
	collectionExercise = "1010b2f2-8668-498a-afee-3c33cdfe42ea"
	surveyID           = "0752a892-1a60-40a4-8aa3-2599405a8831"
	surveyName         = "Quarterly Business Survey"
	enrolmentCode      = "abc1234"
	frontstage         = "http://frontstage"
)

var respondentQueryColumns = []string{"id", "party_uuid", "status", "email_address", "first_name", "last_name", "telephone", "mark_for_deletion"}
var associationColumns = []string{"business_id", "survey_id", "survey_name", "status"}
var pendingEnrolmentColumns = []string{"id", "case_id", "respondent_id", "business_id", "survey_id"}

type AnyTime struct{}

func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

var errBoom = errors.New("boom")

type fakeIAC struct {
	iac *models.IAC
	err error
}

func (f *fakeIAC) GetIAC(ctx context.Context, code string) (*models.IAC, error) {
	return f.iac, f.err
}

type fakeCase struct {
	c         *models.Case
	err       error
	eventErr  error
	events    []models.CaseEvent
	eventCase []string
}

func (f *fakeCase) GetCaseByEnrolmentCode(ctx context.Context, code string) (*models.Case, error) {
	return f.c, f.err
}

func (f *fakeCase) PostCaseEvent(ctx context.Context, caseID string, event models.CaseEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.eventCase = append(f.eventCase, caseID)
	f.events = append(f.events, event)
	return nil
}

type fakeCollectionExercise struct {
	ce  *models.CollectionExercise
	err error
}

func (f *fakeCollectionExercise) GetCollectionExercise(ctx context.Context, id string) (*models.CollectionExercise, error) {
	return f.ce, f.err
}

type fakeSurvey struct {
	survey *models.Survey
	err    error
}

func (f *fakeSurvey) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	return f.survey, f.err
}

type fakeCredentials struct {
	created   []string
	updates   []models.AccountUpdate
	createErr error
	// updateErrs is consumed one call at a time; nil once exhausted
	updateErrs []error
}

func (f *fakeCredentials) CreateAccount(ctx context.Context, username, password string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, username)
	return nil
}

func (f *fakeCredentials) UpdateAccount(ctx context.Context, update models.AccountUpdate) error {
	f.updates = append(f.updates, update)
	if len(f.updateErrs) == 0 {
		return nil
	}
	err := f.updateErrs[0]
	f.updateErrs = f.updateErrs[1:]
	return err
}

type sentEmail struct {
	template        notify.Template
	recipient       string
	personalisation map[string]string
	reference       string
}

type fakeNotifier struct {
	sent []sentEmail
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, template notify.Template, recipient string, personalisation map[string]string, reference string) error {
	f.sent = append(f.sent, sentEmail{template, recipient, personalisation, reference})
	return f.err
}

type countingRecorder struct {
	registered, activated, enabled int
}

func (c *countingRecorder) IncrementRespondentsRegistered() { c.registered++ }
func (c *countingRecorder) IncrementAccountsActivated()     { c.activated++ }
func (c *countingRecorder) IncrementEnrolmentsEnabled()     { c.enabled++ }

type fixture struct {
	svc         *Service
	mock        sqlmock.Sqlmock
	tokens      *token.Service
	now         time.Time
	iac         *fakeIAC
	cases       *fakeCase
	ce          *fakeCollectionExercise
	survey      *fakeSurvey
	credentials *fakeCredentials
	notifier    *fakeNotifier
	recorder    *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := &fixture{
		mock: mock,
		now:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		iac:  &fakeIAC{iac: &models.IAC{IAC: enrolmentCode, Active: true, CaseID: caseID}},
		cases: &fakeCase{c: &models.Case{
			ID:         caseID,
			BusinessID: businessID,
			CaseGroup:  models.CaseGroup{CollectionExerciseID: collectionExercise},
		}},
		ce:          &fakeCollectionExercise{ce: &models.CollectionExercise{ID: collectionExercise, SurveyID: surveyID}},
		survey:      &fakeSurvey{survey: &models.Survey{ID: surveyID, LongName: surveyName}},
		credentials: &fakeCredentials{},
		notifier:    &fakeNotifier{},
		recorder:    &countingRecorder{},
	}
	f.tokens = token.New("secret", token.WithClock(func() time.Time { return f.now }))
	f.svc = NewService(db,
		transaction.New(db, transaction.WithLogger(logger)),
		f.tokens,
		PublicWebsite{URL: frontstage},
		Collaborators{
			IAC:                f.iac,
			Case:               f.cases,
			CollectionExercise: f.ce,
			Survey:             f.survey,
			Credentials:        f.credentials,
			Notifier:           f.notifier,
		},
		WithLogger(logger),
		WithRecorder(f.recorder),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) issue(t *testing.T, p token.Purpose, email string) string {
	tok, err := f.tokens.Issue(p, email)
	require.NoError(t, err)
	return tok
}

func (f *fixture) expectRespondentByEmail(email string, id int64, uuid string, status models.RespondentStatus) {
	f.mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs(email).
		WillReturnRows(f.mock.NewRows(respondentQueryColumns).
			AddRow(id, uuid, string(status), email, "Bob", "Boblaw", "01234567890", false))
}

func (f *fixture) expectNoRespondentByEmail(email string) {
	f.mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs(email).
		WillReturnRows(f.mock.NewRows(respondentQueryColumns))
}

func (f *fixture) expectRespondentByPartyUUID(id int64, status models.RespondentStatus) {
	f.mock.ExpectQuery("FROM partysvc.respondent WHERE party_uuid").WithArgs(partyID).
		WillReturnRows(f.mock.NewRows(respondentQueryColumns).
			AddRow(id, partyID, string(status), "bob@boblaw.com", "Bob", "Boblaw", "01234567890", false))
}

func (f *fixture) expectAssociations(id int64, status models.EnrolmentStatus) {
	f.mock.ExpectQuery("FROM partysvc.business_respondent br").WithArgs(id).
		WillReturnRows(f.mock.NewRows(associationColumns).AddRow(businessID, surveyID, surveyName, string(status)))
}
