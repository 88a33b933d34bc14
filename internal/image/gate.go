package imagepkg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// readChunk is the initial buffer size when no length was declared.
const readChunk = 32 * 1024

// Payload is a body that passed the gate. len(Data) never exceeds the
// budget it was gated with.
type Payload struct {
	Data        []byte
	ContentType string
	Detected    string // sniffed MIME type, informational
}

// Gate enforces the declared type, the declared length and the actual
// length of resp against maxBytes. It always closes resp.Body; on a
// declared-type or declared-length failure the body is not read at all.
func Gate(resp *Response, maxBytes int64) (*Payload, error) {
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !IsImageContentType(contentType) {
		return nil, newError(KindNotAnImage, fmt.Errorf("content type %q", contentType))
	}

	if resp.ContentLength > maxBytes {
		return nil, &Error{
			Kind:  KindTooLarge,
			Limit: maxBytes,
			Err:   fmt.Errorf("declared length %d exceeds %d", resp.ContentLength, maxBytes),
		}
	}

	data, err := readCapped(resp.Body, maxBytes, resp.ContentLength)
	if err != nil {
		if errors.Is(err, errOverBudget) {
			return nil, &Error{Kind: KindTooLarge, Limit: maxBytes, Err: err}
		}
		return nil, classifyTransportError(fmt.Errorf("read body: %w", err))
	}

	return &Payload{
		Data:        data,
		ContentType: contentType,
		Detected:    mimetype.Detect(data).String(),
	}, nil
}

// IsImageContentType reports whether a Content-Type header declares an image.
func IsImageContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(contentType, "image/")
}

var errOverBudget = errors.New("body exceeds size budget")

// readCapped reads r to EOF into a buffer that never grows past limit.
// Once limit bytes are held it probes for one more byte with a fixed
// one-byte array; finding one means the body is over budget.
func readCapped(r io.Reader, limit, hint int64) ([]byte, error) {
	if limit < 0 {
		limit = 0
	}
	size := int64(readChunk)
	if hint > 0 {
		size = hint
	}
	if size > limit {
		size = limit
	}
	buf := make([]byte, 0, size)

	for {
		if int64(len(buf)) == limit {
			var probe [1]byte
			n, err := io.ReadFull(r, probe[:])
			if n > 0 {
				return nil, errOverBudget
			}
			if err == io.EOF {
				return buf, nil
			}
			return nil, err
		}

		if len(buf) == cap(buf) {
			next := int64(cap(buf)) * 2
			if next > limit {
				next = limit
			}
			grown := make([]byte, len(buf), next)
			copy(grown, buf)
			buf = grown
		}

		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
