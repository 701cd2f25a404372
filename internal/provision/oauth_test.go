package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateClientSendsCapabilitySet(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/clients" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"client_id":"abc123"}`))
	}))
	defer srv.Close()

	o := NewOAuth(srv.URL, testLogger())
	cred, err := o.CreateClient(context.Background(), ClientSpec{
		Name:        "chaty-web",
		Secret:      "s3cret",
		RedirectURI: "http://localhost:5173/auth/callback",
		Scopes:      []string{"openid", "offline"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cred.ClientID != "abc123" || cred.ClientSecret != "s3cret" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if cred.IssuedAt.IsZero() {
		t.Fatal("issued_at not set")
	}

	if got["client_name"] != "chaty-web" {
		t.Fatalf("client_name missing: %v", got)
	}
	if got["scope"] != "openid offline" {
		t.Fatalf("scope not space-joined: %v", got["scope"])
	}
	if got["token_endpoint_auth_method"] != "client_secret_post" {
		t.Fatalf("unexpected auth method: %v", got)
	}
	grants, _ := got["grant_types"].([]any)
	if len(grants) != 2 || grants[0] != "authorization_code" || grants[1] != "refresh_token" {
		t.Fatalf("unexpected grant types: %v", got["grant_types"])
	}
}

func TestCreateClientRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_redirect_uri"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOAuth(srv.URL, testLogger())
	_, err := o.CreateClient(context.Background(), ClientSpec{Name: "x"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != Rejected {
		t.Fatalf("expected Rejected error, got %v", err)
	}
}

func TestCreateClientMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":          "<html>oops</html>",
		"missing client_id": `{"client_secret":"x"}`,
	}
	for name, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		o := NewOAuth(srv.URL, testLogger())
		_, err := o.CreateClient(context.Background(), ClientSpec{Name: "x"})
		srv.Close()
		var pe *Error
		if !errors.As(err, &pe) || pe.Kind != MalformedResponse {
			t.Fatalf("%s: expected MalformedResponse, got %v", name, err)
		}
	}
}

func TestCreateClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	o := NewOAuth(srv.URL, testLogger())
	_, err := o.CreateClient(context.Background(), ClientSpec{Name: "x"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != Unreachable {
		t.Fatalf("expected Unreachable, got %v", err)
	}
}

func TestClientExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/clients/abc123":
			_, _ = w.Write([]byte(`{"client_id":"abc123"}`))
		case "/admin/clients/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	o := NewOAuth(srv.URL, testLogger())

	ok, err := o.ClientExists(context.Background(), "abc123")
	if err != nil || !ok {
		t.Fatalf("expected existing client, got ok=%v err=%v", ok, err)
	}
	ok, err = o.ClientExists(context.Background(), "gone")
	if err != nil || ok {
		t.Fatalf("expected 404 to mean absent, got ok=%v err=%v", ok, err)
	}
	_, err = o.ClientExists(context.Background(), "boom")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != Rejected {
		t.Fatalf("expected Rejected for server error, got %v", err)
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != 48 {
		t.Fatalf("expected 48 hex chars, got %d", len(a))
	}
	b, _ := GenerateSecret()
	if a == b {
		t.Fatal("secrets must not repeat")
	}
}
