package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ONSdigital/ras-party-accounts/models"
)

const accountPath = "/api/account/create"

// OAuthClient talks to the OAuth2 service that holds respondents' credentials
type OAuthClient struct {
	client
	clientID     string
	clientSecret string
}

func NewOAuthClient(baseURL, clientID, clientSecret string, opts ...Option) *OAuthClient {
	return &OAuthClient{client: newClient("oauth", baseURL, opts), clientID: clientID, clientSecret: clientSecret}
}

// CreateAccount registers a new, unverified account
func (c *OAuthClient) CreateAccount(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	return c.send(ctx, http.MethodPost, form)
}

// UpdateAccount renames the account, changes its password and/or sets its verified flag
func (c *OAuthClient) UpdateAccount(ctx context.Context, update models.AccountUpdate) error {
	form := url.Values{}
	form.Set("username", update.Username)
	if update.NewUsername != "" {
		form.Set("new_username", update.NewUsername)
	}
	if update.Password != "" {
		form.Set("password", update.Password)
	}
	if update.AccountVerified != nil {
		form.Set("account_verified", strconv.FormatBool(*update.AccountVerified))
	}
	return c.send(ctx, http.MethodPut, form)
}

func (c *OAuthClient) send(ctx context.Context, method string, form url.Values) error {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	req, err := http.NewRequest(method, c.baseURL+accountPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)
	resp, err := c.do(ctx, req, http.StatusCreated)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
