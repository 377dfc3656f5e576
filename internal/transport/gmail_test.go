package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// rewriteTransport redirects every outgoing request to a fixed base (the
// httptest server), regardless of the scheme/host the caller dialed, so
// both the JWT token exchange and the Gmail API call land on the fake
// server without needing to fake Google's DNS.
type rewriteTransport struct {
	base *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.base.Scheme
	clone.URL.Host = t.base.Host
	clone.Host = t.base.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func testCredentialJSON(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})

	cred := map[string]string{
		"type":           "service_account",
		"project_id":     "test-project",
		"private_key_id": "test-key-id",
		"private_key":    string(pemBytes),
		"client_email":   "svc@test-project.iam.gserviceaccount.com",
		"client_id":      "123456",
		"token_uri":      "https://oauth2.googleapis.com/token",
	}
	out, err := json.Marshal(cred)
	require.NoError(t, err)
	return string(out)
}

func newFakeGoogleServer(t *testing.T, sendHandler func(w http.ResponseWriter, r *http.Request), directoryHandler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fake-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		if sendHandler != nil {
			sendHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg-123"}`)
	})
	mux.HandleFunc("/admin/directory/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		if directoryHandler != nil {
			directoryHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"isMailboxSetup":true}`)
	})
	return httptest.NewServer(mux)
}

func newTestAdapter(t *testing.T, srv *httptest.Server) *GmailAdapter {
	t.Helper()
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &rewriteTransport{base: base}}
	return NewGmailAdapter([]byte(testCredentialJSON(t)), "admin@test-project.com", client)
}

func TestGmailAdapter_SendEmailSucceeds(t *testing.T) {
	srv := newFakeGoogleServer(t, nil, nil)
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	msgID, err := adapter.SendEmail(t.Context(), "sender@test-project.com", domain.RenderedTask{
		RecipientEmail: "r@x.com", Subject: "Hi", BodyPlain: "hello", FromName: "Acme",
	})
	require.NoError(t, err)
	require.Equal(t, "msg-123", msgID)
}

func TestGmailAdapter_SendEmailDetectsMailDisabled(t *testing.T) {
	srv := newFakeGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"Mail service not enabled for user sender@test-project.com"}}`)
	}, nil)
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	_, err := adapter.SendEmail(t.Context(), "sender@test-project.com", domain.RenderedTask{
		RecipientEmail: "r@x.com", Subject: "Hi", BodyPlain: "hello",
	})
	require.Error(t, err)
	require.True(t, IsMailDisabled(err))
}

func TestGmailAdapter_SendEmailGenericRemoteError(t *testing.T) {
	srv := newFakeGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"boom"}`)
	}, nil)
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	_, err := adapter.SendEmail(t.Context(), "sender@test-project.com", domain.RenderedTask{RecipientEmail: "r@x.com"})
	require.Error(t, err)
	require.False(t, IsMailDisabled(err))

	var target *TransportError
	require.ErrorAs(t, err, &target)
	require.Equal(t, http.StatusInternalServerError, target.Status)
}

func TestGmailAdapter_IsMailEnabled(t *testing.T) {
	srv := newFakeGoogleServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"isMailboxSetup":false}`)
	})
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	enabled, err := adapter.IsMailEnabled(t.Context(), "sender@test-project.com")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestGmailAdapter_IsMailEnabledTreats404AsDisabled(t *testing.T) {
	srv := newFakeGoogleServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	enabled, err := adapter.IsMailEnabled(t.Context(), "sender@test-project.com")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestGmailAdapter_SendRawPlacesHeaderBlockVerbatim(t *testing.T) {
	var captured string
	srv := newFakeGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = string(body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg-raw"}`)
	}, nil)
	defer srv.Close()

	adapter := newTestAdapter(t, srv)
	msgID, err := adapter.SendRaw(t.Context(), "sender@test-project.com", domain.RenderedTask{
		RecipientEmail:   "r@x.com",
		CustomHeaderText: "subject: Custom\nfrom: Sender <sender@test-project.com>",
		BodyPlain:        "raw body",
	})
	require.NoError(t, err)
	require.Equal(t, "msg-raw", msgID)
	require.Contains(t, captured, `"raw"`)
	require.True(t, strings.Contains(captured, "raw"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(captured), &payload))
	decoded, err := base64.RawURLEncoding.DecodeString(payload["raw"])
	require.NoError(t, err)
	require.Equal(t, "Subject: Custom\r\nFrom: Sender <sender@test-project.com>\r\nTo: r@x.com\r\n\r\nraw body", string(decoded))
}
