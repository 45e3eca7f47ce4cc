package models

type (
	// CaseGroup represents information about a case's case group, including collection exercise information
	// It does not represent the full response, just what we end up using
	CaseGroup struct {
		ID                   string `json:"id"`
		CollectionExerciseID string `json:"collectionExerciseId"`
	}

	// Case represents the response from the Case service's GET /cases/iac/{code}
	// It does not represent the full response, just what we end up using
	Case struct {
		ID         string    `json:"id"`
		BusinessID string    `json:"partyId"`
		CaseGroup  CaseGroup `json:"caseGroup"`
	}

	// CaseEvent is the body of the Case service's POST /cases/{id}/events
	CaseEvent struct {
		Description string `json:"description"`
		Category    string `json:"category"`
		PartyID     string `json:"partyId"`
		CreatedBy   string `json:"createdBy"`
	}
)

// Case event categories raised by this service
const (
	CategoryRespondentAccountCreated = "RESPONDENT_ACCOUNT_CREATED"
	CategoryRespondentEnroled        = "RESPONDENT_ENROLED"
)
