// Package dataurl transcodes binary payloads to and from RFC 2397 data URLs,
// the text-safe form used to inline attachments in backups.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const scheme = "data:"

// ErrInvalid reports text that is not a data URL.
var ErrInvalid = errors.New("dataurl: invalid data URL")

// Encode returns data as a base64 data URL. The MIME type is written verbatim
// so that it round-trips exactly through Decode.
func Encode(mime string, data []byte) string {
	var b strings.Builder
	b.Grow(len(scheme) + len(mime) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(scheme)
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Decode parses a data URL and returns its media type and payload. Both base64
// and percent-encoded payloads are accepted. The media type is returned as
// written, without the base64 marker; it is empty when the URL omits it.
func Decode(raw string) (string, []byte, error) {
	if len(raw) < len(scheme) || !strings.EqualFold(raw[:len(scheme)], scheme) {
		return "", nil, ErrInvalid
	}
	header, payload, ok := strings.Cut(raw[len(scheme):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrInvalid)
	}
	mime := header
	isBase64 := false
	if idx := strings.LastIndex(header, ";"); idx >= 0 && strings.EqualFold(strings.TrimSpace(header[idx+1:]), "base64") {
		mime = header[:idx]
		isBase64 = true
	}
	if !isBase64 {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return mime, []byte(data), nil
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return mime, data, nil
}

// decodeBase64 tolerates line breaks, missing padding and the URL-safe
// alphabet, all of which appear in data URLs produced by other tools.
func decodeBase64(payload string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t', ' ':
			return -1
		}
		return r
	}, payload)
	if strings.ContainsAny(cleaned, "-_") {
		return base64.RawURLEncoding.DecodeString(strings.TrimRight(cleaned, "="))
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
}
