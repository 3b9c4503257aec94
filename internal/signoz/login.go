package signoz

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"otelbridge/internal/config"
	"otelbridge/internal/telemetry"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	UserID     string `json:"userId"`
}

// Login exchanges an email/password pair for an access token. Any non-2xx
// status, including 401, is reported as an APIError carrying the server body.
func Login(ctx context.Context, baseURL, email, password string, opts ...Option) (string, error) {
	if baseURL == "" {
		return "", telemetry.ConnectionFailed("base_url must not be empty")
	}
	o := buildOptions(config.DefaultTimeoutSecs*time.Second, opts)

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	client := newHTTPClient(o, headers)

	data, err := do(ctx, client, http.MethodPost, joinURL(baseURL, loginPath), loginRequest{Email: email, Password: password})
	if err != nil {
		return "", loginError(err)
	}

	var resp loginResponse
	if err := decodeJSON(bytes.NewReader(data), &resp); err != nil {
		return "", err
	}
	if resp.AccessJwt == "" {
		return "", telemetry.BackendError("login response missing accessJwt field")
	}
	o.logger.Debug("signoz login succeeded", "base_url", baseURL)
	return resp.AccessJwt, nil
}

// loginError reports a rejected login as an APIError with the server's
// explanation, falling back to "invalid credentials" for an empty body.
func loginError(err error) error {
	var te *telemetry.Error
	if !errors.As(err, &te) || te.Kind != telemetry.KindAuthenticationFailed {
		return err
	}
	msg := strings.TrimSpace(te.Message)
	if msg == "" {
		msg = "invalid credentials"
	}
	return telemetry.APIError(te.Status, msg)
}
