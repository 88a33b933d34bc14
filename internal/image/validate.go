package imagepkg

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ValidateURL checks that raw is a well-formed http(s) URL whose path ends
// in an allowed image extension. It never touches the network; the real
// content type is checked again after the fetch.
func ValidateURL(raw string, allowed []string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newError(KindInvalidURL, errors.New("empty URL"))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newError(KindInvalidURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, newError(KindInvalidURL, errors.New("missing host"))
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := normalizeExtensions(allowed)[ext]; !ok || ext == "" {
		return nil, newError(KindDisallowedType, fmt.Errorf("extension %q not allowed", ext))
	}
	return u, nil
}
