// Package clients calls the services the party service depends on. Every call is synchronous,
// bounded by the client's timeout and never retried.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultTimeout = 20 * time.Second

// ErrNotFound is returned when the remote service answers 404
var ErrNotFound = errors.New("not found")

// StatusError is any other unexpected response status
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s service responded with %d", e.Service, e.StatusCode)
}

// Observer is told how long each call took
type Observer interface {
	ObserveRemoteCall(service string, start time.Time)
}

var tracer = otel.Tracer("github.com/ONSdigital/ras-party-accounts/clients")

type Option func(*client)

// WithTimeout bounds each call, including reading the response body
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.http.Timeout = d
	}
}

func WithObserver(o Observer) Option {
	return func(c *client) {
		c.observer = o
	}
}

type client struct {
	service  string
	baseURL  string
	http     *http.Client
	observer Observer
}

func newClient(service, baseURL string, opts []Option) client {
	c := client{service: service, baseURL: baseURL, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// do sends the request and checks the response status is one of want.
// The caller must close the body of a successful response.
func (c *client) do(ctx context.Context, req *http.Request, want ...int) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, c.service+" "+req.Method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.String()),
	)
	if c.observer != nil {
		defer c.observer.ObserveRemoteCall(c.service, time.Now())
	}

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		err = fmt.Errorf("%s service: %w", c.service, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	for _, status := range want {
		if resp.StatusCode == status {
			return resp, nil
		}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		err = fmt.Errorf("%s service: %w", c.service, ErrNotFound)
	} else {
		err = &StatusError{Service: c.service, StatusCode: resp.StatusCode}
	}
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func (c *client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, req, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s service: decoding response: %w", c.service, err)
	}
	return nil
}
