package imagepkg

import (
	"strings"
	"time"
)

const (
	// DefaultMaxBytes is the reference size budget (5 MiB).
	DefaultMaxBytes int64 = 5 * 1024 * 1024
	// DefaultTimeout bounds the whole request, body included.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies the loader to remote hosts.
	DefaultUserAgent = "Image-Viewer/1.0"
	// DefaultMaxPixels keeps a decoded RGBA buffer under 256 MB.
	DefaultMaxPixels int64 = 64 * 1024 * 1024
)

// DefaultExtensions is the path extension allow-list.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Policy holds the limits one pipeline enforces.
type Policy struct {
	AllowedExtensions    []string
	MaxBytes             int64
	Timeout              time.Duration
	UserAgent            string
	MaxPixels            int64
	BlockPrivateNetworks bool
}

// DefaultPolicy returns the reference limits.
func DefaultPolicy() Policy {
	return Policy{
		AllowedExtensions: append([]string(nil), DefaultExtensions...),
		MaxBytes:          DefaultMaxBytes,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		MaxPixels:         DefaultMaxPixels,
	}
}

// withDefaults fills zero fields so a partially built Policy still works.
func (p Policy) withDefaults() Policy {
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = append([]string(nil), DefaultExtensions...)
	}
	if p.MaxBytes <= 0 {
		p.MaxBytes = DefaultMaxBytes
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.UserAgent == "" {
		p.UserAgent = DefaultUserAgent
	}
	if p.MaxPixels <= 0 {
		p.MaxPixels = DefaultMaxPixels
	}
	return p
}

func normalizeExtensions(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}
