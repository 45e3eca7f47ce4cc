package models

import "fmt"

// RespondentStatus is the lifecycle state of a respondent account
type RespondentStatus string

const (
	RespondentCreated         RespondentStatus = "CREATED"
	RespondentActive          RespondentStatus = "ACTIVE"
	RespondentSuspended       RespondentStatus = "SUSPENDED"
	RespondentDeletionPending RespondentStatus = "DELETION_PENDING"
)

// ParseRespondentStatus only accepts the four known states
func ParseRespondentStatus(s string) (RespondentStatus, error) {
	switch status := RespondentStatus(s); status {
	case RespondentCreated, RespondentActive, RespondentSuspended, RespondentDeletionPending:
		return status, nil
	}
	return "", fmt.Errorf("unknown respondent status %q", s)
}

// EnrolmentStatus is the state of a respondent's enrolment on a survey for a business
type EnrolmentStatus string

const (
	EnrolmentPending  EnrolmentStatus = "PENDING"
	EnrolmentEnabled  EnrolmentStatus = "ENABLED"
	EnrolmentDisabled EnrolmentStatus = "DISABLED"
)

func ParseEnrolmentStatus(s string) (EnrolmentStatus, error) {
	switch status := EnrolmentStatus(s); status {
	case EnrolmentPending, EnrolmentEnabled, EnrolmentDisabled:
		return status, nil
	}
	return "", fmt.Errorf("unknown enrolment status %q", s)
}

// BusinessRespondentStatus is the state of the link between a business and a respondent
type BusinessRespondentStatus string

const (
	BusinessRespondentActive    BusinessRespondentStatus = "ACTIVE"
	BusinessRespondentInactive  BusinessRespondentStatus = "INACTIVE"
	BusinessRespondentSuspended BusinessRespondentStatus = "SUSPENDED"
	BusinessRespondentEnded     BusinessRespondentStatus = "ENDED"
)
