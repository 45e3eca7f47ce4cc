package main

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 1000
)

// GET /respondents?firstName=&lastName=&emailAddress=&telephone=&status=&businessId=&surveyId=&offset=&limit=
func (a *api) getRespondents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := parseRespondentSearch(r.URL.Query())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.accounts.SearchRespondents(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseRespondentSearch(params url.Values) (models.RespondentSearch, error) {
	q := models.RespondentSearch{Limit: defaultSearchLimit}
	if len(params) == 0 {
		return q, raserrors.New(raserrors.Validation, "No query parameters provided for search")
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params.Get(k)
		switch k {
		case "firstName":
			q.FirstName = v
		case "lastName":
			q.LastName = v
		case "emailAddress":
			q.EmailAddress = v
		case "telephone":
			q.Telephone = v
		case "status":
			status, err := models.ParseRespondentStatus(v)
			if err != nil {
				return q, raserrors.Wrap(err, raserrors.Validation, "Invalid status "+v)
			}
			q.Status = status
		case "businessId":
			if _, err := uuid.Parse(v); err != nil {
				return q, raserrors.Wrap(err, raserrors.Validation, "'"+v+"' is not a valid UUID format for property 'businessId'")
			}
			q.BusinessID = v
		case "surveyId":
			q.SurveyID = v
		case "offset":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return q, raserrors.New(raserrors.Validation, "Invalid offset "+v)
			}
			q.Offset = n
		case "limit":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxSearchLimit {
				return q, raserrors.New(raserrors.Validation, "Invalid limit "+v)
			}
			q.Limit = n
		default:
			return q, raserrors.New(raserrors.Validation, "Invalid query parameter "+k)
		}
	}
	return q, nil
}

// GET /respondents/ids?id=&id=
func (a *api) getRespondentsByIDs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	respondents, err := a.accounts.GetRespondentsByIDs(r.Context(), r.URL.Query()["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondents)
}

func (a *api) getRespondentByID(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	respondent, err := a.accounts.GetRespondentByID(r.Context(), p.ByName("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondent)
}

func (a *api) putRespondentDetails(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var body models.ChangeDetails
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.accounts.ChangeRespondentDetails(r.Context(), p.ByName("id"), body); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (a *api) getRespondentByEmail(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	respondent, err := a.accounts.GetRespondentByEmail(r.Context(), p.ByName("email"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondent)
}

// DELETE /respondents/email/{email} only marks the respondent; the batch sweep deletes them
func (a *api) deleteRespondentByEmail(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := a.accounts.MarkForDeletion(r.Context(), p.ByName("email")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DELETE /respondents/email with {"email": ...} deletes the respondent immediately
func (a *api) deleteRespondent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body models.DeleteRespondent
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if body.Email == "" {
		a.writeError(w, r, raserrors.New(raserrors.Validation, "Required fields are missing: email"))
		return
	}
	if err := a.accounts.DeleteRespondentByEmail(r.Context(), body.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) deleteMarkedRespondents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.accounts.DeleteMarkedRespondents(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /respondents/claim?respondent_id=&business_id=&survey_id=
func (a *api) getClaim(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	valid, err := a.accounts.HasClaim(r.Context(), q.Get("respondent_id"), q.Get("business_id"), q.Get("survey_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	answer := "Invalid"
	if valid {
		answer = "Valid"
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, answer)
}
