// Package render implements the template renderer (pre-render at prepare
// time; the send path performs zero templating): literal {{name}} variable
// substitution and, for full-custom header mode, the [tag] header macros.
package render

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

var tokenRe = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// SubstituteVariables replaces every {{name}} occurrence with
// variables["name"]; tokens with no matching key are left in place,
// matching the original implementation's literal-replace semantics.
func SubstituteVariables(text string, variables map[string]string) string {
	return tokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		key := tok[2 : len(tok)-2]
		if v, ok := variables[key]; ok {
			return v
		}
		return tok
	})
}

// Stringify coerces an arbitrary value to the string form the renderer
// emits downstream: strings pass through, slices are newline-joined, and
// everything else falls back to its canonical JSON serialization.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, "\n")
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// MacroContext supplies the values the [tag] header macros draw from.
// Only populated for full-custom header mode.
type MacroContext struct {
	RecipientEmail string
	FromName       string
	Subject        string
	Principal      string
	Domain         string // overrides [domain] when non-empty
}

var macroRe = regexp.MustCompile(`\[(to|from|subject|smtp|date|domain|rndn_\d+|rnda_\d+)\]`)

// ExpandMacros applies the [tag] header macro table. Called only when the
// campaign is in full-custom header mode.
func ExpandMacros(text string, ctx MacroContext) string {
	return macroRe.ReplaceAllStringFunc(text, func(tok string) string {
		tag := tok[1 : len(tok)-1]
		switch {
		case tag == "to":
			return ctx.RecipientEmail
		case tag == "from":
			return ctx.FromName
		case tag == "subject":
			return ctx.Subject
		case tag == "smtp":
			return ctx.Principal
		case tag == "date":
			return time.Now().UTC().Format(time.RFC1123Z)
		case tag == "domain":
			if ctx.Domain != "" {
				return ctx.Domain
			}
			return domainOf(ctx.Principal)
		case strings.HasPrefix(tag, "rndn_"):
			n := atoiSafe(tag[len("rndn_"):])
			return randomDigits(n)
		case strings.HasPrefix(tag, "rnda_"):
			n := atoiSafe(tag[len("rnda_"):])
			return randomAlnum(n)
		default:
			return tok
		}
	})
}

func domainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

const digitAlphabet = "0123456789"
const alnumAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomDigits(n int) string { return randomFrom(digitAlphabet, n) }
func randomAlnum(n int) string  { return randomFrom(alnumAlphabet, n) }

func randomFrom(alphabet string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = alphabet[0]
			continue
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
