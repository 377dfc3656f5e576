package transport

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildBody_BothPlainAndHTMLProducesMultipartAlternative(t *testing.T) {
	ct, body, err := buildBody("<p>hi</p>", "hi")
	require.NoError(t, err)
	require.Contains(t, ct, "multipart/alternative")
	require.Contains(t, string(body), "text/plain")
	require.Contains(t, string(body), "text/html")
}

func TestBuildBody_HTMLOnlyGetsSyntheticPlainFallback(t *testing.T) {
	ct, body, err := buildBody("<p>hi</p>", "")
	require.NoError(t, err)
	require.Contains(t, ct, "multipart/alternative")

	_, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	plainPart, err := r.NextPart()
	require.NoError(t, err)
	plainRaw, err := io.ReadAll(plainPart)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(string(plainRaw))
	require.NoError(t, err)
	require.Contains(t, string(decoded), "This email contains HTML content.")

	htmlPart, err := r.NextPart()
	require.NoError(t, err)
	htmlRaw, err := io.ReadAll(htmlPart)
	require.NoError(t, err)
	decodedHTML, err := base64.StdEncoding.DecodeString(string(htmlRaw))
	require.NoError(t, err)
	require.Contains(t, string(decodedHTML), "<p>hi</p>")
}

func TestBuildBody_PlainOnly(t *testing.T) {
	ct, body, err := buildBody("", "just text")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=UTF-8", ct)
	require.Equal(t, "just text", string(body))
}

func TestBuildBody_EmptyBodyStillProducesTextPlain(t *testing.T) {
	ct, body, err := buildBody("", "")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=UTF-8", ct)
	require.Empty(t, body)
}

func TestFilterCustomHeaders_DropsMIMEStructuralOverrides(t *testing.T) {
	out := filterCustomHeaders(map[string]string{
		"Content-Type":  "text/html",
		"X-Campaign-ID": "c1",
		"MIME-Version":  "1.0",
	})
	require.Len(t, out, 1)
	require.Equal(t, "c1", out["X-Campaign-ID"])
}

func TestCanonicalHeaderName_KnownAndUnknown(t *testing.T) {
	require.Equal(t, "Message-ID", canonicalHeaderName("message-id"))
	require.Equal(t, "List-Unsubscribe", canonicalHeaderName("LIST-UNSUBSCRIBE"))
	require.Equal(t, "X-Custom-Thing", canonicalHeaderName("x-custom-thing"))
}

func TestBuildRawMessage_GuaranteesToHeader(t *testing.T) {
	raw := buildRawMessage("Subject: Hi\nFrom: a@x.com", "r@x.com", "body text")
	s := string(raw)
	require.Contains(t, s, "Subject: Hi\r\n")
	require.Contains(t, s, "To: r@x.com\r\n")
	require.Contains(t, s, "\r\n\r\nbody text")
}

func TestBuildRawMessage_PreservesExplicitTo(t *testing.T) {
	raw := buildRawMessage("to: original@x.com\nsubject: Hi", "fallback@x.com", "body")
	s := string(raw)
	require.Contains(t, s, "To: original@x.com\r\n")
	require.NotContains(t, s, "fallback@x.com")
}
