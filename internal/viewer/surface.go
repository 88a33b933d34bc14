package viewer

import (
	"sync"
	"time"

	imagepkg "github.com/youruser/imageviewer/internal/image"
)

// Placeholder is the status shown before anything was loaded.
const Placeholder = "Image will be shown here"

// Display receives the result of a load. Exactly one of the two methods
// is called per completed load.
type Display interface {
	ShowImage(r *imagepkg.Rendered)
	ShowStatus(msg string)
}

// Surface is a Display that keeps the latest picture or status line, like
// a label that holds either a pixmap or text. It is safe to read from any
// goroutine.
type Surface struct {
	mu      sync.RWMutex
	image   *imagepkg.Rendered
	status  string
	updated time.Time
}

// SurfaceState is a point-in-time copy of a Surface.
type SurfaceState struct {
	Image   *imagepkg.Rendered
	Status  string
	Updated time.Time
}

// NewSurface returns a Surface showing Placeholder.
func NewSurface() *Surface {
	return &Surface{status: Placeholder, updated: time.Now()}
}

// ShowImage replaces any text with r.
func (s *Surface) ShowImage(r *imagepkg.Rendered) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = r
	s.status = ""
	s.updated = time.Now()
}

// ShowStatus replaces any picture with msg.
func (s *Surface) ShowStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
	s.status = msg
	s.updated = time.Now()
}

// Snapshot returns the current contents.
func (s *Surface) Snapshot() SurfaceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SurfaceState{Image: s.image, Status: s.status, Updated: s.updated}
}
