// Package cloud is a minimal MyDyson account client: it logs in with an
// emailed one-time code and lists the account's devices with the local
// credentials needed to talk to them over MQTT.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Base URLs of the account API.
const (
	DefaultBaseURL = "https://appapi.cp.dyson.com"
	ChinaBaseURL   = "https://appapi.cp.dyson.cn"
	userAgent      = "android client"
)

// Account API errors.
var (
	ErrNetwork          = errors.New("cannot reach the dyson cloud")
	ErrServer           = errors.New("dyson cloud server error")
	ErrInvalidAuth      = errors.New("invalid dyson account authentication")
	ErrAuthRequired     = errors.New("dyson account authentication required")
	ErrLoginFailure     = errors.New("dyson account login failed")
	ErrOTPTooFrequently = errors.New("one-time code requested too frequently")
	ErrAccountNotActive = errors.New("dyson account is not active")
)

// AuthInfo is the bearer token returned by a completed login.
type AuthInfo struct {
	Account   string `json:"account" yaml:"account"`
	Token     string `json:"token" yaml:"token"`
	TokenType string `json:"tokenType" yaml:"token_type"`
}

// Challenge is an in-progress login waiting for the emailed code.
type Challenge struct {
	ID    string
	Email string
}

// UserStatus describes an account as seen before login.
type UserStatus struct {
	AccountStatus        string `json:"accountStatus"`
	AuthenticationMethod string `json:"authenticationMethod"`
}

// Config selects the API endpoint.
type Config struct {
	BaseURL string
	Country string
	Culture string
	Timeout time.Duration
}

// DefaultConfig returns the global endpoint configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Country: "GB",
		Culture: "en-GB",
		Timeout: 15 * time.Second,
	}
}

// Account talks to the account API. It is safe for concurrent use once
// logged in.
type Account struct {
	cfg        *Config
	httpClient *http.Client
	auth       *AuthInfo
	logger     zerolog.Logger
}

// NewAccount creates a client. auth may be nil until CompleteLogin.
func NewAccount(cfg *Config, auth *AuthInfo, httpClient *http.Client, logger zerolog.Logger) (*Account, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Account{
		cfg:        cfg,
		httpClient: httpClient,
		auth:       auth,
		logger:     logger.With().Str("component", "CloudAccount").Logger(),
	}, nil
}

// Auth returns the current authentication, nil before login.
func (a *Account) Auth() *AuthInfo { return a.auth }

// Provision registers the client with the API. The service refuses other
// calls from clients that skipped it.
func (a *Account) Provision(ctx context.Context) (string, error) {
	var version string
	if err := a.do(ctx, http.MethodGet, "/v1/provisioningservice/application/Android/version", nil, false, &version); err != nil {
		return "", err
	}
	return version, nil
}

// UserStatus reports whether email belongs to an active account.
func (a *Account) UserStatus(ctx context.Context, email string) (UserStatus, error) {
	var status UserStatus
	path := "/v3/userregistration/email/userstatus?country=" + url.QueryEscape(a.cfg.Country)
	if err := a.do(ctx, http.MethodPost, path, map[string]string{"email": email}, false, &status); err != nil {
		return UserStatus{}, err
	}
	return status, nil
}

// BeginLogin checks the account and asks the service to email a one-time code.
func (a *Account) BeginLogin(ctx context.Context, email string) (Challenge, error) {
	if _, err := a.Provision(ctx); err != nil {
		return Challenge{}, err
	}
	status, err := a.UserStatus(ctx, email)
	if err != nil {
		return Challenge{}, err
	}
	if status.AccountStatus != "ACTIVE" {
		return Challenge{}, fmt.Errorf("%w: status %s", ErrAccountNotActive, status.AccountStatus)
	}

	var resp struct {
		ChallengeID string `json:"challengeId"`
	}
	path := fmt.Sprintf("/v3/userregistration/email/auth?country=%s&culture=%s",
		url.QueryEscape(a.cfg.Country), url.QueryEscape(a.cfg.Culture))
	if err := a.do(ctx, http.MethodPost, path, map[string]string{"email": email}, false, &resp); err != nil {
		return Challenge{}, err
	}
	a.logger.Info().Msg("One-time login code requested.")
	return Challenge{ID: resp.ChallengeID, Email: email}, nil
}

// CompleteLogin exchanges the emailed code and the account password for a
// bearer token, which later calls use.
func (a *Account) CompleteLogin(ctx context.Context, challenge Challenge, otp, password string) (*AuthInfo, error) {
	body := map[string]string{
		"email":       challenge.Email,
		"password":    password,
		"challengeId": challenge.ID,
		"otpCode":     otp,
	}
	var auth AuthInfo
	err := a.do(ctx, http.MethodPost, "/v3/userregistration/email/verify", body, false, &auth)
	if errors.Is(err, errBadRequest) {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailure, err)
	}
	if err != nil {
		return nil, err
	}
	a.auth = &auth
	a.logger.Info().Msg("Logged in to dyson account.")
	return &auth, nil
}

// Devices lists the devices registered to the account.
func (a *Account) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	if err := a.do(ctx, http.MethodGet, "/v2/provisioningservice/manifest", nil, true, &devices); err != nil {
		return nil, err
	}
	a.logger.Debug().Int("count", len(devices)).Msg("Fetched device manifest.")
	return devices, nil
}

var errBadRequest = errors.New("bad request")

func (a *Account) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	if authed && a.auth == nil {
		return ErrAuthRequired
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		tokenType := a.auth.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+a.auth.Token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		a.logger.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("Dyson cloud request failed.")
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrServer, req.URL.Path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrOTPTooFrequently
	case resp.StatusCode == http.StatusBadRequest:
		return errBadRequest
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrServer, resp.StatusCode)
	}
}
