package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/kasiviral/kasiviral-backend/pkg/breaker"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const userPath = "/auth/v1/user"

// RemoteParams configures the provider-backed verifier.
type RemoteParams struct {
	Endpoint   string
	AnonKey    string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// RemoteVerifier asks the identity provider to resolve the token's user.
type RemoteVerifier struct {
	endpoint string
	anonKey  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[any]
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// NewRemoteVerifier builds a verifier calling GET {endpoint}/auth/v1/user.
func NewRemoteVerifier(params RemoteParams) (*RemoteVerifier, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(params.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("identity endpoint is required")
	}
	if strings.TrimSpace(params.AnonKey) == "" {
		return nil, fmt.Errorf("identity anon key is required")
	}
	client := params.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteVerifier{
		endpoint: endpoint,
		anonKey:  params.AnonKey,
		client:   client,
		breaker: breaker.New("identity-provider", params.Logger, breaker.Options{
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrInvalidCredential)
			},
		}),
	}, nil
}

func (v *RemoteVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	result, err := v.breaker.Execute(func() (any, error) {
		return v.fetchUser(ctx, rawToken)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Principal{}, fmt.Errorf("identity provider unavailable: %w", err)
		}
		return Principal{}, err
	}
	return result.(Principal), nil
}

func (v *RemoteVerifier) fetchUser(ctx context.Context, rawToken string) (Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint+userPath, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+rawToken)
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Principal{}, ErrInvalidCredential
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Principal{}, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var user remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return Principal{}, fmt.Errorf("decode identity response: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return Principal{}, fmt.Errorf("%w: provider returned no user id", ErrInvalidCredential)
	}
	return Principal{SubjectID: user.ID, Email: user.Email}, nil
}
