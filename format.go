package velox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// mergeHeaders overlays per-request headers on top of the client's default
// headers; a key present in both keeps the per-request value. Neither input
// is mutated.
func mergeHeaders(defaults, perRequest http.Header) http.Header {
	merged := make(http.Header, len(defaults)+len(perRequest))
	for k, v := range defaults {
		merged[k] = append([]string{}, v...)
	}
	for k, v := range perRequest {
		merged[http.CanonicalHeaderKey(k)] = append([]string{}, v...)
	}
	return merged
}

// sanitizeHeaders validates every header name against the RFC 7230 token
// grammar and every value against the field-value grammar (no CR/LF/NUL,
// only visible ASCII, space, tab, and the high-byte obs-text range),
// returning an InvalidInputKind *ClientError on the first offending entry
// rather than silently dropping it.
func sanitizeHeaders(h http.Header) (http.Header, error) {
	out := make(http.Header, len(h))
	for k, values := range h {
		if !isValidHeaderToken(k) {
			return nil, &ClientError{Kind: InvalidInputKind, Message: "invalid header name: " + k}
		}
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if !isValidHeaderValue(v) {
				return nil, &ClientError{Kind: InvalidInputKind, Message: "invalid header value for " + k}
			}
			kept = append(kept, strings.TrimSpace(v))
		}
		out[http.CanonicalHeaderKey(k)] = kept
	}
	return out, nil
}

// formatHeaders renders headers as spec's wire-ready "Name: Value" lines:
// entries with an empty or nil value are skipped, booleans render as
// "true"/"false", numeric values render via decimal conversion, every
// other value is stringified and trimmed of outer whitespace. It applies
// the same name/value grammar sanitizeHeaders does, failing with
// InvalidInputKind on the first offending entry instead of dropping it.
func formatHeaders(headers map[string]any) ([]string, error) {
	lines := make([]string, 0, len(headers))
	for name, value := range headers {
		if value == nil {
			continue
		}
		var rendered string
		switch v := value.(type) {
		case string:
			if v == "" {
				continue
			}
			rendered = v
		case bool:
			rendered = strconv.FormatBool(v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			rendered = fmt.Sprintf("%d", v)
		case float32:
			rendered = strconv.FormatFloat(float64(v), 'f', -1, 32)
		case float64:
			rendered = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			rendered = fmt.Sprintf("%v", v)
		}

		if !isValidHeaderToken(name) {
			return nil, &ClientError{Kind: InvalidInputKind, Message: "invalid header name: " + name}
		}
		if !isValidHeaderValue(rendered) {
			return nil, &ClientError{Kind: InvalidInputKind, Message: "invalid header value for " + name}
		}
		lines = append(lines, name+": "+strings.TrimSpace(rendered))
	}
	return lines, nil
}

func isValidHeaderToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !isTokenChar(c) {
			return false
		}
	}
	return true
}

func isTokenChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.ContainsRune("!#$%&'*+-.^_`|~", c):
		return true
	default:
		return false
	}
}

// isValidHeaderValue reports whether s conforms to RFC 7230's field-value
// grammar: visible ASCII, space, and tab, plus the high-byte obs-text
// range; CR, LF, NUL, and other control characters are rejected outright.
func isValidHeaderValue(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
		case c >= 0x21 && c <= 0x7e:
		case c >= 0x80:
		default:
			return false
		}
	}
	return true
}

// getContentType returns the request's Content-Type header, or a sensible
// default ("application/json" for a non-empty body with no explicit
// Content-Type set, otherwise empty).
func getContentType(h http.Header, hasBody bool) string {
	if ct := h.Get("Content-Type"); ct != "" {
		return ct
	}
	if hasBody {
		return "application/json"
	}
	return ""
}

// encodeQueryString renders a query parameter map into a sorted,
// URL-encoded query string (sorted for deterministic output, which
// matters for cache/dedup key construction).
func encodeQueryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values.Get(k)))
	}
	return b.String()
}

// formatParams renders a request body according to its Content-Type:
// nil passes through as nil, a string or []byte passes through unchanged,
// a Content-Type containing "json" JSON-encodes the value (UTF-8, slashes
// not escaped), an object or array otherwise URL-encodes as form fields,
// and any other scalar is string-cast.
func formatParams(body any, headers http.Header) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	switch v := body.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}

	if strings.Contains(strings.ToLower(headers.Get("Content-Type")), "json") {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}

	if values, ok := asFormValues(body); ok {
		return []byte(values.Encode()), nil
	}

	return []byte(fmt.Sprintf("%v", body)), nil
}

// asFormValues URL-encodes an object (map) or array (slice/array) body as
// form fields; scalars report ok=false so the caller falls back to a
// plain string cast.
func asFormValues(body any) (url.Values, bool) {
	rv := reflect.ValueOf(body)
	switch rv.Kind() {
	case reflect.Map:
		values := url.Values{}
		for _, key := range rv.MapKeys() {
			values.Set(fmt.Sprintf("%v", key.Interface()), fmt.Sprintf("%v", rv.MapIndex(key).Interface()))
		}
		return values, true
	case reflect.Slice, reflect.Array:
		values := url.Values{}
		for i := 0; i < rv.Len(); i++ {
			values.Set(strconv.Itoa(i), fmt.Sprintf("%v", rv.Index(i).Interface()))
		}
		return values, true
	default:
		return nil, false
	}
}

// buildURL joins baseURL and path (if path is not already absolute) and
// appends an encoded query string built from params.
func buildURL(baseURL, path string, params map[string]string) (string, error) {
	var full string
	if isAbsoluteURL(path) {
		full = path
	} else {
		full = joinURL(baseURL, path)
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}

	if q := encodeQueryString(params); q != "" {
		if u.RawQuery == "" {
			u.RawQuery = q
		} else {
			u.RawQuery = u.RawQuery + "&" + q
		}
	}
	return u.String(), nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// endpointOf renders a low-cardinality label for metrics and error
// reporting: host plus path, no query string.
func endpointOf(method, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return u.Host + path
}

// hostOfRequest returns req's URL host, or "unknown" if it can't be parsed.
func hostOfRequest(req *Request) string {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// pathOfRequest returns req's URL path, or "/" if it is empty or
// unparseable.
func pathOfRequest(req *Request) string {
	u, err := url.Parse(req.URL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
