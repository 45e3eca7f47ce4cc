package models

type (
	// IAC represents the response from the IAC service's GET /iacs/{code}
	// An enrolment code is only usable while Active is true
	IAC struct {
		IAC         string `json:"iac"`
		Active      bool   `json:"active"`
		LastUsed    string `json:"lastUsedDateTime"`
		CaseID      string `json:"caseId"`
		QuestionSet string `json:"questionSet"`
	}
)
