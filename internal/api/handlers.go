package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/youruser/imageviewer/internal/bridge"
	imagepkg "github.com/youruser/imageviewer/internal/image"
	"github.com/youruser/imageviewer/internal/metrics"
	"github.com/youruser/imageviewer/internal/ui"
	"github.com/youruser/imageviewer/internal/viewer"
)

const (
	defaultShareSize = 256
	minShareSize     = 64
	maxShareSize     = 1024
)

// Handler serves the HTTP API.
type Handler struct {
	pipeline  *imagepkg.Pipeline
	viewer    *viewer.Viewer
	surface   *viewer.Surface
	transport *bridge.Transport
	injector  *bridge.Injector
	history   *bridge.History
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// Deps are the components a Handler drives. Metrics and Logger are optional.
type Deps struct {
	Pipeline  *imagepkg.Pipeline
	Viewer    *viewer.Viewer
	Surface   *viewer.Surface
	Transport *bridge.Transport
	Injector  *bridge.Injector
	History   *bridge.History
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		pipeline:  d.Pipeline,
		viewer:    d.Viewer,
		surface:   d.Surface,
		transport: d.Transport,
		injector:  d.Injector,
		history:   d.History,
		metrics:   d.Metrics,
		log:       log.Named("api"),
	}
}

// StatusFor maps a failure kind to the HTTP status reported for it.
func StatusFor(kind imagepkg.Kind) int {
	switch kind {
	case imagepkg.KindInvalidURL, imagepkg.KindDisallowedType:
		return http.StatusBadRequest
	case imagepkg.KindNotAnImage:
		return http.StatusUnsupportedMediaType
	case imagepkg.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case imagepkg.KindTimeout:
		return http.StatusGatewayTimeout
	case imagepkg.KindNetwork, imagepkg.KindHTTPStatus:
		return http.StatusBadGateway
	case imagepkg.KindDecode:
		return http.StatusUnprocessableEntity
	case imagepkg.KindNone:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"kind": "invalid_request", "message": err.Error()})
}

func loadFailed(c *gin.Context, e *imagepkg.Error, id string) {
	body := gin.H{"kind": e.Kind.String(), "message": e.Message()}
	if id != "" {
		body["id"] = id
	}
	c.JSON(StatusFor(e.Kind), body)
}

func writePNG(c *gin.Context, img image.Image) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type renderRequest struct {
	URL    string `json:"url" binding:"required"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Frame  bool   `json:"frame"`
}

// renderImage runs one load synchronously and returns the fitted bitmap.
// frame centres it on a canvas of the requested size.
func (h *Handler) renderImage(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		badRequest(c, fmt.Errorf("size %dx%d must not be negative", req.Width, req.Height))
		return
	}

	target := imagepkg.Size{Width: req.Width, Height: req.Height}
	out := h.pipeline.Run(c.Request.Context(), req.URL, target)
	c.Header("X-Request-ID", out.ID)
	if !out.OK() {
		e := out.Err
		if e == nil {
			e = &imagepkg.Error{Kind: imagepkg.KindUnexpected, Err: errors.New("no image produced")}
		}
		loadFailed(c, e, out.ID)
		return
	}

	src := out.Rendered.Source
	c.Header("X-Source-Size", strconv.Itoa(src.Width)+"x"+strconv.Itoa(src.Height))
	var img image.Image = out.Rendered.Image
	if req.Frame && target.Width > 0 && target.Height > 0 {
		img = imagepkg.Letterbox(img, target, imagepkg.Background)
	}
	writePNG(c, img)
}

// shareImage returns a QR code for a URL that passes validation.
func (h *Handler) shareImage(c *gin.Context) {
	u, err := imagepkg.ValidateURL(c.Query("url"), h.pipeline.Policy().AllowedExtensions)
	if err != nil {
		var e *imagepkg.Error
		if errors.As(err, &e) {
			loadFailed(c, e, "")
			return
		}
		badRequest(c, err)
		return
	}

	size := defaultShareSize
	if s := c.Query("size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < minShareSize || v > maxShareSize {
			badRequest(c, fmt.Errorf("size must be between %d and %d", minShareSize, maxShareSize))
			return
		}
		size = v
	}

	img, err := imagepkg.ShareCode(u.String(), size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writePNG(c, img)
}

type viewerResponse struct {
	viewer.State
	Status   string         `json:"status"`
	HasImage bool           `json:"has_image"`
	Image    *imagepkg.Size `json:"image,omitempty"`
}

func (h *Handler) viewerState(c *gin.Context) {
	st, err := h.viewer.State(c.Request.Context())
	if err != nil {
		h.loopUnavailable(c, err)
		return
	}
	snap := h.surface.Snapshot()
	resp := viewerResponse{State: st, Status: snap.Status, HasImage: snap.Image != nil}
	if snap.Image != nil {
		b := snap.Image.Bounds()
		resp.Image = &b
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) setViewerURL(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !h.viewer.SetURL(req.URL) {
		h.loopUnavailable(c, ui.ErrClosed)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setViewerTarget(c *gin.Context) {
	var req imagepkg.Size
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		badRequest(c, fmt.Errorf("size %dx%d must not be negative", req.Width, req.Height))
		return
	}
	if !h.viewer.SetTarget(req) {
		h.loopUnavailable(c, ui.ErrClosed)
		return
	}
	c.Status(http.StatusNoContent)
}

// trigger queues a named viewer trigger. The load itself finishes later;
// poll the viewer state for its result.
func (h *Handler) trigger(c *gin.Context) {
	name := c.Param("name")
	err := h.viewer.Trigger(name)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"trigger": name})
	case errors.Is(err, viewer.ErrUnknownTrigger):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.loopUnavailable(c, err)
	}
}

func (h *Handler) viewerImage(c *gin.Context) {
	snap := h.surface.Snapshot()
	if snap.Image == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": snap.Status})
		return
	}
	c.Header("Last-Modified", snap.Updated.UTC().Format(http.TimeFormat))
	writePNG(c, snap.Image.Image)
}

func (h *Handler) loopUnavailable(c *gin.Context, err error) {
	h.log.Warn("ui loop unavailable", zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}

// openPage stands for a page finishing its load: a new session is opened
// and the page action injected into it.
func (h *Handler) openPage(c *gin.Context) {
	session := h.transport.OpenSession()
	page, err := h.injector.Inject(c.Request.Context(), session)
	if err != nil {
		c.JSON(pageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":     page.ID,
		"action": h.injector.Action().Name,
	})
}

func (h *Handler) firePageEvent(c *gin.Context) {
	page, ok := h.injector.Page(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		return
	}
	var req struct {
		Type   string `json:"type" binding:"required"`
		Detail any    `json:"detail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := page.Fire(c.Request.Context(), req.Type, req.Detail)
	if err != nil {
		c.JSON(pageErrorStatus(err), gin.H{"error": err.Error(), "listeners": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"listeners": n})
}

func (h *Handler) closePage(c *gin.Context) {
	if !h.injector.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) bridgeEvents(c *gin.Context) {
	events := h.history.Events()
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

func pageErrorStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrScriptTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrPageClosed):
		return http.StatusGone
	default:
		return http.StatusUnprocessableEntity
	}
}
