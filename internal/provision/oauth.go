package provision

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ClientCredential is the output of a successful client registration. It is
// never persisted here; ownership transfers to the propagator (and, when
// reuse is enabled, to the credstore).
type ClientCredential struct {
	ClientID     string
	ClientSecret string
	IssuedAt     time.Time
}

// ClientSpec declares the capability set registered for the client.
type ClientSpec struct {
	Name        string
	Secret      string
	RedirectURI string
	Scopes      []string
}

// OAuth talks to the authorization server's administrative endpoint.
type OAuth struct {
	adminURL string
	httpc    *http.Client
	log      *slog.Logger
}

func NewOAuth(adminURL string, log *slog.Logger) *OAuth {
	return &OAuth{
		adminURL: strings.TrimRight(adminURL, "/"),
		httpc:    &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

type clientRequest struct {
	ClientName              string   `json:"client_name"`
	ClientSecret            string   `json:"client_secret"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type clientResponse struct {
	ClientID string `json:"client_id"`
}

// CreateClient registers a confidential client with authorization-code and
// refresh-token grants. This call is NOT idempotent: the server assigns a
// fresh client_id on every invocation. Callers wanting convergent re-runs
// must check the credstore first.
func (o *OAuth) CreateClient(ctx context.Context, spec ClientSpec) (ClientCredential, error) {
	body := clientRequest{
		ClientName:              spec.Name,
		ClientSecret:            spec.Secret,
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Scope:                   strings.Join(spec.Scopes, " "),
		RedirectURIs:            []string{spec.RedirectURI},
		TokenEndpointAuthMethod: "client_secret_post",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ClientCredential{}, fmt.Errorf("marshal client request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.adminURL+"/admin/clients", bytes.NewReader(payload))
	if err != nil {
		return ClientCredential{}, fmt.Errorf("build client request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return ClientCredential{}, &Error{Kind: Unreachable, Resource: "oauth client", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClientCredential{}, &Error{Kind: MalformedResponse, Resource: "oauth client", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ClientCredential{}, &Error{
			Kind:     Rejected,
			Resource: "oauth client",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}

	var parsed clientResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ClientCredential{}, &Error{Kind: MalformedResponse, Resource: "oauth client", Err: err}
	}
	if parsed.ClientID == "" {
		return ClientCredential{}, &Error{
			Kind:     MalformedResponse,
			Resource: "oauth client",
			Err:      fmt.Errorf("client_id absent from response"),
		}
	}

	o.log.Info("oauth client registered", "client_id", parsed.ClientID, "name", spec.Name)
	return ClientCredential{
		ClientID:     parsed.ClientID,
		ClientSecret: spec.Secret,
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// ClientExists checks whether the server still knows the given client id.
func (o *OAuth) ClientExists(ctx context.Context, clientID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.adminURL+"/admin/clients/"+clientID, nil)
	if err != nil {
		return false, err
	}
	resp, err := o.httpc.Do(req)
	if err != nil {
		return false, &Error{Kind: Unreachable, Resource: "oauth client", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	default:
		return false, &Error{
			Kind:     Rejected,
			Resource: "oauth client",
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
}

// GenerateSecret returns a random hex secret for a confidential client.
func GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
