// Package apiclient is the terminal's client for the attendance API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is the bearer token used on authenticated routes.
	Token string
	// OTPSecret signs fingerprint verification requests when set.
	OTPSecret string
	// InHouseID is the site this terminal records check-ins at. Empty leaves
	// the choice to the server's default site.
	InHouseID string

	now func() time.Time
}

func New(baseURL, otpSecret string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP:      &http.Client{Timeout: 15 * time.Second},
		OTPSecret: otpSecret,
		now:       time.Now,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"correo": email, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/auth/login", body, nil, &out); err != nil {
		return err
	}
	c.Token = out.Token
	return nil
}

func (c *Client) Enroll(ctx context.Context, req biometric.EnrollRequest) (*biometric.EnrollmentSummary, error) {
	var out biometric.EnrollmentSummary
	if _, err := c.do(ctx, http.MethodPost, "/biometric/enroll", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListFingerprints(ctx context.Context, userID string) ([]models.Biometric, error) {
	var out []models.Biometric
	if _, err := c.do(ctx, http.MethodGet, "/biometric/user/"+userID, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify submits a live template. The returned message is the server's
// user-facing text for the action taken.
func (c *Client) Verify(ctx context.Context, template string) (*biometric.VerifyResult, string, error) {
	headers := http.Header{}
	if c.OTPSecret != "" {
		code, err := middleware.TerminalCode(c.OTPSecret, c.now())
		if err != nil {
			return nil, "", fmt.Errorf("terminal code: %w", err)
		}
		headers.Set(middleware.TerminalOTPHeader, code)
	}
	var out biometric.VerifyResult
	msg, err := c.do(ctx, http.MethodPost, "/biometric/verify", biometric.VerifyRequest{Template: template, InHouseID: c.InHouseID}, headers, &out)
	if err != nil {
		return nil, "", err
	}
	return &out, msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers http.Header, out any) (string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode %s %s (status %d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return "", remoteError(resp.StatusCode, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", err
		}
	}
	return env.Message, nil
}

// remoteError rebuilds the server's error so callers can switch on its kind.
func remoteError(status int, env envelope) error {
	var e *apperr.Error
	switch status {
	case http.StatusBadRequest:
		e = apperr.Validation(env.Message, env.Errors...)
	case http.StatusUnauthorized:
		e = apperr.Auth(env.Message)
	case http.StatusForbidden:
		e = apperr.Forbidden(env.Message)
	case http.StatusNotFound:
		e = apperr.NotFound(env.Message)
	case http.StatusConflict:
		e = apperr.Conflict(env.Message)
	case http.StatusServiceUnavailable:
		e = apperr.Device(env.Message)
	default:
		e = apperr.Internal(env.Message)
	}
	return e.WithStatus(status)
}
