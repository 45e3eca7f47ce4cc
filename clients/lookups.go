package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/ONSdigital/ras-party-accounts/models"
)

// IACClient talks to the IAC service, which owns enrolment codes
type IACClient struct {
	client
}

func NewIACClient(baseURL string, opts ...Option) *IACClient {
	return &IACClient{newClient("iac", baseURL, opts)}
}

func (c *IACClient) GetIAC(ctx context.Context, code string) (*models.IAC, error) {
	var iac models.IAC
	if err := c.getJSON(ctx, "/iacs/"+url.PathEscape(code), &iac); err != nil {
		return nil, err
	}
	return &iac, nil
}

// CaseClient talks to the Case service
type CaseClient struct {
	client
}

func NewCaseClient(baseURL string, opts ...Option) *CaseClient {
	return &CaseClient{newClient("case", baseURL, opts)}
}

// GetCaseByEnrolmentCode returns the case the enrolment code was issued for
func (c *CaseClient) GetCaseByEnrolmentCode(ctx context.Context, code string) (*models.Case, error) {
	var cs models.Case
	if err := c.getJSON(ctx, "/cases/iac/"+url.PathEscape(code), &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (c *CaseClient) PostCaseEvent(ctx context.Context, caseID string, event models.CaseEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/cases/"+url.PathEscape(caseID)+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, req, http.StatusOK, http.StatusCreated)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// CollectionExerciseClient talks to the Collection Exercise service
type CollectionExerciseClient struct {
	client
}

func NewCollectionExerciseClient(baseURL string, opts ...Option) *CollectionExerciseClient {
	return &CollectionExerciseClient{newClient("collectionexercise", baseURL, opts)}
}

func (c *CollectionExerciseClient) GetCollectionExercise(ctx context.Context, id string) (*models.CollectionExercise, error) {
	var ce models.CollectionExercise
	if err := c.getJSON(ctx, "/collectionexercises/"+url.PathEscape(id), &ce); err != nil {
		return nil, err
	}
	return &ce, nil
}

// SurveyClient talks to the Survey service
type SurveyClient struct {
	client
}

func NewSurveyClient(baseURL string, opts ...Option) *SurveyClient {
	return &SurveyClient{newClient("survey", baseURL, opts)}
}

func (c *SurveyClient) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	var s models.Survey
	if err := c.getJSON(ctx, "/surveys/"+url.PathEscape(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
