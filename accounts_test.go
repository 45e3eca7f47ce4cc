package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

const (
	iacURL         = "http://localhost:8121"
	caseURL        = "http://localhost:8171"
	ceURL          = "http://localhost:8145"
	surveyURL      = "http://localhost:8080"
	oauthURL       = "http://localhost:8040"
	notifyURL      = "http://localhost:8181"
	partyID        = "be70e086-7bbc-461c-a565-5b454d748a71"
	businessID     = "ba02fad7-ae27-45c6-ab0f-c8cd9a48ebc2"
	caseID         = "7bc5d41b-0549-40b3-ba76-42f6d4cf3fdb"
	collectionExID = "1010b2f2-8668-498a-afee-3c33cdfe42ea"
	surveyID       = "0752a892-1a60-40a4-8aa3-2599405a8831"
)

var respondentQueryColumns = []string{"id", "party_uuid", "status", "email_address", "first_name", "last_name", "telephone", "mark_for_deletion"}
var associationColumns = []string{"business_id", "survey_id", "survey_name", "status"}

var postReq = models.PostRespondent{
	ID:            partyID,
	EmailAddress:  "bob@boblaw.com",
	FirstName:     "Bob",
	LastName:      "Boblaw",
	Password:      "password",
	Telephone:     "01234567890",
	EnrolmentCode: "abc1234",
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func decodeError(t *testing.T) string {
	var errResp models.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	return errResp.Error
}

func respondentRows(status string) *sqlmock.Rows {
	return sqlmock.NewRows(respondentQueryColumns).
		AddRow(7, partyID, status, "bob@boblaw.com", "Bob", "Boblaw", "01234567890", false)
}

func mockEnrolmentLookups() {
	gock.New(iacURL).Get("/iacs/abc1234").Reply(200).JSON(models.IAC{IAC: "abc1234", Active: true, CaseID: caseID})
	gock.New(caseURL).Get("/cases/iac/abc1234").Reply(200).JSON(models.Case{
		ID:         caseID,
		BusinessID: businessID,
		CaseGroup:  models.CaseGroup{CollectionExerciseID: collectionExID},
	})
	gock.New(ceURL).Get("/collectionexercises/" + collectionExID).Reply(200).JSON(models.CollectionExercise{ID: collectionExID, SurveyID: surveyID})
	gock.New(surveyURL).Get("/surveys/" + surveyID).Reply(200).JSON(models.Survey{ID: surveyID, LongName: "Quarterly Business Survey"})
}

func expectEnrolmentInserts() {
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").
		WillReturnRows(sqlmock.NewRows(respondentQueryColumns))
	mock.ExpectQuery("FROM partysvc.business WHERE party_uuid").WithArgs(businessID).
		WillReturnRows(sqlmock.NewRows([]string{"party_uuid", "business_ref"}).AddRow(businessID, "49900000001"))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO partysvc.respondent").
		WithArgs(partyID, "CREATED", "bob@boblaw.com", "Bob", "Boblaw", "01234567890", AnyTime{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO partysvc.business_respondent").
		WithArgs(businessID, 7, "ACTIVE", AnyTime{}, AnyTime{}).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO partysvc.enrolment").
		WithArgs(businessID, 7, surveyID, "Quarterly Business Survey", "PENDING", AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO partysvc.pending_enrolment").
		WithArgs(caseID, 7, businessID, surveyID, AnyTime{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
}

// POST /respondents
func TestPostRespondentIsFeatureFlagged(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", false)

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestPostRespondentReturns401WhenNotAuthed(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)

	req := newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq))
	req.SetBasicAuth("admin", "wrong")
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPostRespondent(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	mockEnrolmentLookups()
	expectEnrolmentInserts()
	gock.New(caseURL).Post("/cases/" + caseID + "/events").Reply(201)
	gock.New(oauthURL).Post("/api/account/create").Reply(201)
	gock.New(notifyURL).Post("/emails/email_verification_id").Reply(201)
	mock.ExpectCommit()

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var respondent models.Respondent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&respondent))
	assert.Equal(t, partyID, respondent.ID)
	assert.Equal(t, models.RespondentCreated, respondent.Status)
	assert.NotContains(t, resp.Body.String(), "password")
	assert.True(t, gock.IsDone())
}

func TestPostRespondentReturns400IfBadJSON(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", strings.NewReader("{nonsense: true}")))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Invalid JSON", decodeError(t))
}

func TestPostRespondentReturns400IfRequiredFieldsMissing(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	req := postReq
	req.FirstName = ""

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, req)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Required fields are missing: firstName", decodeError(t))
}

func TestPostRespondentReturns400IfEnrolmentCodeInactive(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	gock.New(iacURL).Get("/iacs/abc1234").Reply(200).JSON(models.IAC{IAC: "abc1234", Active: false})

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Enrolment code is not active", decodeError(t))
}

func TestPostRespondentReturns400IfEmailExists(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	gock.New(iacURL).Get("/iacs/abc1234").Reply(200).JSON(models.IAC{IAC: "abc1234", Active: true})
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("ACTIVE"))

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "User with email address already exists", decodeError(t))
}

func TestPostRespondentReturns404IfBusinessNotFound(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	mockEnrolmentLookups()
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WillReturnRows(sqlmock.NewRows(respondentQueryColumns))
	mock.ExpectQuery("FROM partysvc.business WHERE party_uuid").WillReturnRows(sqlmock.NewRows([]string{"party_uuid", "business_ref"}))

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPostRespondentReturns500IfCollectionExerciseNotFound(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	gock.New(iacURL).Get("/iacs/abc1234").Reply(200).JSON(models.IAC{IAC: "abc1234", Active: true})
	gock.New(caseURL).Get("/cases/iac/abc1234").Reply(200).JSON(models.Case{
		ID:         caseID,
		BusinessID: businessID,
		CaseGroup:  models.CaseGroup{CollectionExerciseID: collectionExID},
	})
	gock.New(ceURL).Get("/collectionexercises/" + collectionExID).Reply(404)
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WillReturnRows(sqlmock.NewRows(respondentQueryColumns))

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "There is no survey bound for this enrolment code", decodeError(t))
}

func TestPostRespondentRollsBackIfCaseEventFails(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	mockEnrolmentLookups()
	expectEnrolmentInserts()
	gock.New(caseURL).Post("/cases/" + caseID + "/events").Reply(500)
	mock.ExpectRollback()

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "Error posting case event", decodeError(t))
}

func TestPostRespondentRollsBackIfCredentialsFail(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents", true)
	defer gock.Off()
	mockEnrolmentLookups()
	expectEnrolmentInserts()
	gock.New(caseURL).Post("/cases/" + caseID + "/events").Reply(201)
	gock.New(oauthURL).Post("/api/account/create").Reply(401)
	mock.ExpectRollback()

	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents", jsonBody(t, postReq)))

	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

// PUT /emailverification/{token}
func TestPutEmailVerification(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.emailverification", true)
	defer gock.Off()
	tok := issue(t, token.Activation, "bob@boblaw.com")

	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("CREATED"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM partysvc.respondent WHERE id").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CREATED"))
	mock.ExpectExec("UPDATE partysvc.respondent SET status").WithArgs("ACTIVE", 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM partysvc.pending_enrolment WHERE respondent_id").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "respondent_id", "business_id", "survey_id"}).
			AddRow(3, caseID, 7, businessID, surveyID))
	mock.ExpectExec("UPDATE partysvc.enrolment SET status").WithArgs("ENABLED", businessID, surveyID, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	gock.New(caseURL).Post("/cases/" + caseID + "/events").
		JSON(models.CaseEvent{
			Description: "Respondent enrolled",
			Category:    models.CategoryRespondentEnroled,
			PartyID:     partyID,
			CreatedBy:   "Party Service",
		}).
		Reply(201)
	mock.ExpectExec("DELETE FROM partysvc.pending_enrolment WHERE id").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	gock.New(oauthURL).Put("/api/account/create").BodyString("account_verified=true").Reply(201)
	mock.ExpectQuery("FROM partysvc.business_respondent br").WithArgs(7).
		WillReturnRows(sqlmock.NewRows(associationColumns).AddRow(businessID, surveyID, "Quarterly Business Survey", "ENABLED"))

	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/emailverification/"+tok, nil))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var respondent models.Respondent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&respondent))
	assert.Equal(t, models.RespondentActive, respondent.Status)
	assert.True(t, respondent.HasEnabledEnrolment(businessID, surveyID))
	assert.True(t, gock.IsDone())
}

func TestPutEmailVerificationAlreadyActive(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.emailverification", true)
	defer gock.Off()
	tok := issue(t, token.Activation, "bob@boblaw.com")
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WillReturnRows(respondentRows("ACTIVE"))
	gock.New(oauthURL).Put("/api/account/create").Reply(500)
	mock.ExpectQuery("FROM partysvc.business_respondent br").
		WillReturnRows(sqlmock.NewRows(associationColumns).AddRow(businessID, surveyID, "Quarterly Business Survey", "ENABLED"))

	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/emailverification/"+tok, nil))

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestPutEmailVerificationReturns409WhenExpired(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.emailverification", true)
	old := token.New(loadConfig().SecretKey, token.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
	tok, err := old.Issue(token.Activation, "bob@boblaw.com")
	require.NoError(t, err)

	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/emailverification/"+tok, nil))

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestPutEmailVerificationReturns404WhenTokenInvalid(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.emailverification", true)

	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/emailverification/"+issue(t, token.PasswordReset, "bob@boblaw.com"), nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPutEmailVerificationReturns404WhenRespondentUnknown(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.emailverification", true)
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("nobody@boblaw.com").
		WillReturnRows(sqlmock.NewRows(respondentQueryColumns))

	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/emailverification/"+issue(t, token.Activation, "nobody@boblaw.com"), nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Respondent does not exist", decodeError(t))
}

// PUT /respondents/email
func TestPutChangeEmail(t *testing.T) {
	for _, path := range []string{"/v2/respondents/email", "/v2/respondents/change_email"} {
		t.Run(path, func(t *testing.T) {
			setup(t)
			toggleFeature("party.api.put.respondents.email", true)
			defer gock.Off()
			mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("ACTIVE"))
			mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("jim@jimbob.com").
				WillReturnRows(sqlmock.NewRows(respondentQueryColumns))
			mock.ExpectBegin()
			mock.ExpectExec("UPDATE partysvc.respondent SET email_address").WithArgs("jim@jimbob.com", 7).
				WillReturnResult(sqlmock.NewResult(0, 1))
			gock.New(oauthURL).Put("/api/account/create").BodyString("account_verified=false").Reply(201)
			mock.ExpectCommit()
			gock.New(notifyURL).Post("/emails/email_verification_id").Reply(201)

			body := jsonBody(t, models.ChangeEmail{EmailAddress: "bob@boblaw.com", NewEmailAddress: "jim@jimbob.com"})
			router.ServeHTTP(resp, newAuthedRequest("PUT", path, body))

			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
			var respondent models.Respondent
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&respondent))
			assert.Equal(t, "jim@jimbob.com", respondent.EmailAddress)
			assert.True(t, gock.IsDone())
		})
	}
}

func TestPutChangeEmailReturns409WhenTaken(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.respondents.email", true)
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("ACTIVE"))
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("jim@jimbob.com").
		WillReturnRows(sqlmock.NewRows(respondentQueryColumns).
			AddRow(8, "438df969-7c9c-4cd4-a89b-ac88cf0bfdf3", "ACTIVE", "jim@jimbob.com", "Jim", "Bob", "0987654321", false))

	body := jsonBody(t, models.ChangeEmail{EmailAddress: "bob@boblaw.com", NewEmailAddress: "jim@jimbob.com"})
	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/respondents/email", body))

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "New email address already taken", decodeError(t))
}

// PUT /respondents/change_password/{token}
func TestPutChangePassword(t *testing.T) {
	setup(t)
	toggleFeature("party.api.put.respondents.password", true)
	defer gock.Off()
	tok := issue(t, token.PasswordReset, "bob@boblaw.com")
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WillReturnRows(respondentRows("ACTIVE"))
	gock.New(oauthURL).Put("/api/account/create").BodyString("password=n3wpassw0rd").Reply(201)
	gock.New(notifyURL).Post("/emails/confirm_password_change_id").Reply(201)

	body := jsonBody(t, models.ChangePassword{NewPassword: "n3wpassw0rd"})
	router.ServeHTTP(resp, newAuthedRequest("PUT", "/v2/respondents/change_password/"+tok, body))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"response": "Ok"}`, resp.Body.String())
	assert.True(t, gock.IsDone())
}

// POST /respondents/request_password_change
func TestPostRequestPasswordChangeAnswersTheSameWhenEmailFails(t *testing.T) {
	bodies := map[int]string{}
	for _, notifyStatus := range []int{201, 500} {
		setup(t)
		toggleFeature("party.api.post.respondents.password", true)
		gock.New(notifyURL).Post("/emails/request_password_change_id").Reply(notifyStatus)
		mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("ACTIVE"))

		body := jsonBody(t, models.PasswordResetRequest{EmailAddress: "bob@boblaw.com"})
		router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents/request_password_change", body))

		assert.Equal(t, http.StatusOK, resp.Code)
		bodies[notifyStatus] = resp.Body.String()
		gock.Off()
	}
	assert.Equal(t, bodies[201], bodies[500])
}

func TestPostRequestPasswordChangeReturns404WhenUnknown(t *testing.T) {
	setup(t)
	toggleFeature("party.api.post.respondents.password", true)
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WillReturnRows(sqlmock.NewRows(respondentQueryColumns))

	body := jsonBody(t, models.PasswordResetRequest{EmailAddress: "nobody@boblaw.com"})
	router.ServeHTTP(resp, newAuthedRequest("POST", "/v2/respondents/request_password_change", body))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// GET /resend-verification-email/{party_uuid}
func TestGetResendVerificationEmail(t *testing.T) {
	setup(t)
	toggleFeature("party.api.get.resendverification", true)
	defer gock.Off()
	mock.ExpectQuery("FROM partysvc.respondent WHERE party_uuid").WithArgs(partyID).WillReturnRows(respondentRows("CREATED"))
	gock.New(notifyURL).Post("/emails/email_verification_id").Reply(201)

	router.ServeHTTP(resp, newAuthedRequest("GET", "/v2/resend-verification-email/"+partyID, nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"message": "A new verification email has been sent"}`, resp.Body.String())
	assert.True(t, gock.IsDone())
}

func TestGetResendVerificationEmailReturns404WhenUnknown(t *testing.T) {
	setup(t)
	toggleFeature("party.api.get.resendverification", true)
	mock.ExpectQuery("FROM partysvc.respondent WHERE party_uuid").WillReturnRows(sqlmock.NewRows(respondentQueryColumns))

	router.ServeHTTP(resp, newAuthedRequest("GET", "/v2/resend-verification-email/"+partyID, nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// GET /tokens/verify/{token}
func TestGetVerifyToken(t *testing.T) {
	setup(t)
	toggleFeature("party.api.get.tokens", true)
	mock.ExpectQuery("FROM partysvc.respondent WHERE lower").WithArgs("bob@boblaw.com").WillReturnRows(respondentRows("ACTIVE"))

	router.ServeHTTP(resp, newAuthedRequest("GET", "/v2/tokens/verify/"+issue(t, token.EmailChange, "bob@boblaw.com"), nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"response": "Ok"}`, resp.Body.String())
}

func TestGetVerifyTokenIsFeatureFlagged(t *testing.T) {
	setup(t)

	router.ServeHTTP(resp, newAuthedRequest("GET", "/v2/tokens/verify/whatever", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}
