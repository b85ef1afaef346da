// Package auth signs users in with email and password against the hosted
// identity REST API.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/wschat/internal/types"
)

const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// ErrInvalidCredentials is returned when the email or password is rejected.
var ErrInvalidCredentials = errors.New("invalid email or password")

// APIError is an error reported by the identity API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth error (status %d): %s", e.StatusCode, e.Message)
}

// Session is the result of a successful sign-in.
type Session struct {
	Identity     types.Identity
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is the REST client.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a provider. An empty baseURL uses DefaultBaseURL.
func New(apiKey, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type updateRequest struct {
	IDToken           string `json:"idToken"`
	DisplayName       string `json:"displayName"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn authenticates an existing account.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp tokenResponse
	err := p.call(ctx, "accounts:signInWithPassword", credentialsRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return p.session(resp), nil
}

// SignUp creates an account and sets its display name.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	var resp tokenResponse
	err := p.call(ctx, "accounts:signUp", credentialsRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	if displayName != "" {
		var updated tokenResponse
		err := p.call(ctx, "accounts:update", updateRequest{
			IDToken:           resp.IDToken,
			DisplayName:       displayName,
			ReturnSecureToken: true,
		}, &updated)
		if err != nil {
			return nil, fmt.Errorf("set display name: %w", err)
		}
		resp.DisplayName = displayName
		if updated.IDToken != "" {
			resp.IDToken = updated.IDToken
			resp.RefreshToken = updated.RefreshToken
			resp.ExpiresIn = updated.ExpiresIn
		}
	}
	return p.session(resp), nil
}

func (p *Provider) session(resp tokenResponse) *Session {
	s := &Session{
		Identity: types.Identity{
			ID:          types.UserID(resp.LocalID),
			DisplayName: resp.DisplayName,
			Email:       resp.Email,
		},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
	}
	if s.Identity.DisplayName == "" {
		s.Identity.DisplayName = resp.Email
	}
	var secs int
	if _, err := fmt.Sscanf(resp.ExpiresIn, "%d", &secs); err == nil {
		s.ExpiresAt = p.now().Add(time.Duration(secs) * time.Second)
	}
	return s
}

func (p *Provider) call(ctx context.Context, method string, reqBody, out any) error {
	if p.apiKey == "" {
		return fmt.Errorf("no auth api key configured")
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	u := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if isCredentialError(msg) {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func isCredentialError(msg string) bool {
	switch {
	case strings.HasPrefix(msg, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(msg, "INVALID_PASSWORD"),
		strings.HasPrefix(msg, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(msg, "USER_DISABLED"):
		return true
	}
	return false
}
