package models

import "strings"

type (
	// Enrolment is a survey the respondent is (or will be) enrolled on for a business
	Enrolment struct {
		EnrolmentStatus EnrolmentStatus `json:"enrolmentStatus"`
		SurveyID        string          `json:"surveyId"`
		SurveyName      string          `json:"surveyName,omitempty"`
	}

	// Association is a business the respondent responds on behalf of
	Association struct {
		PartyID    string      `json:"partyId"`
		Enrolments []Enrolment `json:"enrolments"`
	}

	// Respondent is the public projection of a respondent. It never carries a password.
	Respondent struct {
		ID             string           `json:"id"`
		SampleUnitType string           `json:"sampleUnitType"`
		EmailAddress   string           `json:"emailAddress"`
		FirstName      string           `json:"firstName"`
		LastName       string           `json:"lastName"`
		Telephone      string           `json:"telephone"`
		Status         RespondentStatus `json:"status"`
		Associations   []Association    `json:"associations,omitempty"`
	}

	// PostRespondent is the body of 'POST /respondents'
	PostRespondent struct {
		ID            string `json:"id,omitempty"`
		EmailAddress  string `json:"emailAddress"`
		FirstName     string `json:"firstName"`
		LastName      string `json:"lastName"`
		Password      string `json:"password"`
		Telephone     string `json:"telephone"`
		EnrolmentCode string `json:"enrolmentCode"`
	}

	// ChangeEmail is the body of 'PUT /respondents/email'
	ChangeEmail struct {
		EmailAddress    string `json:"email_address"`
		NewEmailAddress string `json:"new_email_address"`
	}

	// ChangeDetails is the body of 'PUT /respondents/id/{id}'
	ChangeDetails struct {
		FirstName       string `json:"firstName"`
		LastName        string `json:"lastName"`
		Telephone       string `json:"telephone"`
		EmailAddress    string `json:"email_address"`
		NewEmailAddress string `json:"new_email_address"`
	}

	// ChangePassword is the body of 'PUT /respondents/change_password/{token}'
	ChangePassword struct {
		NewPassword string `json:"new_password"`
	}

	// PasswordResetRequest is the body of 'POST /respondents/request_password_change'
	DeleteRespondent struct {
		Email string `json:"email"`
	}

	PasswordResetRequest struct {
		EmailAddress string `json:"email_address"`
	}
)

// SampleUnitTypeRespondent is the sample unit type reported for every respondent
const SampleUnitTypeRespondent = "BI"

// MissingFields lists the required registration fields that are empty, in request order
func (p PostRespondent) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"emailAddress", p.EmailAddress},
		{"firstName", p.FirstName},
		{"lastName", p.LastName},
		{"password", p.Password},
		{"telephone", p.Telephone},
		{"enrolmentCode", p.EnrolmentCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// HasEnabledEnrolment reports whether the respondent is enabled on the survey for the business
func (r Respondent) HasEnabledEnrolment(businessID, surveyID string) bool {
	for _, a := range r.Associations {
		if a.PartyID != businessID {
			continue
		}
		for _, e := range a.Enrolments {
			if e.SurveyID == surveyID && e.EnrolmentStatus == EnrolmentEnabled {
				return true
			}
		}
	}
	return false
}

type (
	// RespondentSearch narrows a respondent search; empty fields match everything
	RespondentSearch struct {
		FirstName    string
		LastName     string
		EmailAddress string
		Telephone    string
		Status       RespondentStatus
		BusinessID   string
		SurveyID     string
		Offset       int
		Limit        int
	}

	RespondentPage struct {
		Data  []*Respondent `json:"data"`
		Total int64         `json:"total"`
	}
)
