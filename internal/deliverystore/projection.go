package deliverystore

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

// ProjectResponseBody best-effort parses a delivery's response_body for API
// consumption, per SPEC_FULL.md §4.5: valid UTF-8 + JSON-parseable -> the
// parsed value; otherwise the UTF-8 string; empty body or invalid UTF-8 ->
// nil. Grounded on
// destwebhook/httphelper.go's ParseHTTPResponse content-type sniffing.
func ProjectResponseBody(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	if !utf8.Valid(body) {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}

// ProjectEventBody decodes an event body by Content-Encoding, then attempts
// JSON parsing if the Content-Type indicates JSON or the first non-whitespace
// byte is '{' or '[', per SPEC_FULL.md §4.5's event-body projection rule.
// Unknown/identity encodings pass the bytes through unchanged.
func ProjectEventBody(body []byte, contentType, contentEncoding string) (interface{}, error) {
	decoded, err := decodeByContentEncoding(body, contentEncoding)
	if err != nil {
		return nil, err
	}

	looksJSON := strings.Contains(strings.ToLower(contentType), "application/json")
	if !looksJSON {
		trimmed := bytes.TrimLeft(decoded, " \t\r\n")
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			looksJSON = true
		}
	}

	if looksJSON {
		var parsed interface{}
		if err := json.Unmarshal(decoded, &parsed); err == nil {
			return parsed, nil
		}
	}
	return decoded, nil
}

func decodeByContentEncoding(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body, nil // malformed encoding marker: pass through raw bytes
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return body, nil
		}
		return out, nil
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return body, nil
		}
		return out, nil
	case "br":
		r := brotli.NewReader(bytes.NewReader(body))
		out, err := io.ReadAll(r)
		if err != nil {
			return body, nil
		}
		return out, nil
	case "", "identity":
		return body, nil
	default:
		return body, nil
	}
}
