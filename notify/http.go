package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type emailRequest struct {
	EmailAddress    string            `json:"emailAddress"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
	Reference       string            `json:"reference,omitempty"`
}

// HTTPTransport posts messages to the notification service's REST API
type HTTPTransport struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewHTTPTransport(baseURL, username, password string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(emailRequest{
		EmailAddress:    msg.EmailAddress,
		Personalisation: msg.Personalisation,
		Reference:       msg.Reference,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/emails/"+url.PathEscape(msg.TemplateID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.username, t.password)

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("notify service responded with %d", resp.StatusCode)
	}
	return nil
}
