package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// mimeStructuralHeaders must never be overridden by caller-supplied custom
// headers; any attempt is dropped with a warning.
var mimeStructuralHeaders = map[string]bool{
	"content-type":              true,
	"mime-version":              true,
	"content-transfer-encoding": true,
}

// canonicalHeaderNames maps lowercased well-known header names to their
// canonical case, applied in the full-custom raw-message path.
var canonicalHeaderNames = map[string]string{
	"mime-version":      "MIME-Version",
	"content-type":      "Content-Type",
	"message-id":        "Message-ID",
	"list-unsubscribe":  "List-Unsubscribe",
	"list-unsubscribe-post": "List-Unsubscribe-Post",
	"feedback-id":       "Feedback-ID",
	"from":              "From",
	"to":                "To",
	"subject":           "Subject",
	"reply-to":          "Reply-To",
	"date":              "Date",
}

func canonicalHeaderName(name string) string {
	if c, ok := canonicalHeaderNames[strings.ToLower(name)]; ok {
		return c
	}
	return textproto.CanonicalMIMEHeaderKey(name)
}

// buildBody applies the body-normalization rule: plain-then-html
// multipart/alternative when both present, synthetic plain fallback when
// only html, single text/plain when only plain, empty text/plain
// (warned) when neither.
func buildBody(html, plain string) (contentType string, body []byte, err error) {
	switch {
	case html != "" && plain != "":
		return multipartAlternative(plain, html)
	case html != "":
		return multipartAlternative("This email contains HTML content.", html)
	case plain != "":
		return "text/plain; charset=UTF-8", []byte(plain), nil
	default:
		logger.Warn("transport: empty email body, sending empty text/plain")
		return "text/plain; charset=UTF-8", []byte{}, nil
	}
}

func multipartAlternative(plain, html string) (string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	plainPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return "", nil, err
	}
	writeBase64(plainPart, plain)

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return "", nil, err
	}
	writeBase64(htmlPart, html)

	if err := w.Close(); err != nil {
		return "", nil, err
	}

	ct := fmt.Sprintf("multipart/alternative; boundary=%s", w.Boundary())
	return ct, buf.Bytes(), nil
}

func writeBase64(w interface{ Write([]byte) (int, error) }, s string) {
	enc := base64.StdEncoding.EncodeToString([]byte(s))
	w.Write([]byte(enc))
}

// filterCustomHeaders drops any caller-supplied header whose canonical
// name collides with a MIME-structural header, logging a warning for each.
func filterCustomHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if mimeStructuralHeaders[strings.ToLower(k)] {
			logger.Warn("transport: dropped custom header overriding MIME-structural field", "header", k)
			continue
		}
		out[k] = v
	}
	return out
}

// buildRawMessage constructs the "full custom" RFC-5322 message: the
// caller-prepared header block is placed verbatim (only well-known names
// normalized to canonical case), a To header is guaranteed, and the body
// is appended unmodified since the header block already encodes any MIME
// boundaries the caller chose.
func buildRawMessage(headerText string, recipientEmail string, body string) []byte {
	lines := strings.Split(strings.ReplaceAll(headerText, "\r\n", "\n"), "\n")

	var out bytes.Buffer
	hasTo := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			out.WriteString(line)
			out.WriteString("\r\n")
			continue
		}
		name := canonicalHeaderName(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if strings.EqualFold(name, "To") {
			hasTo = true
		}
		out.WriteString(name)
		out.WriteString(": ")
		out.WriteString(value)
		out.WriteString("\r\n")
	}
	if !hasTo {
		out.WriteString("To: ")
		out.WriteString(recipientEmail)
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")
	out.WriteString(body)
	return out.Bytes()
}
