package tracking

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

const unsubscribedPage = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>You have been unsubscribed</h1>
<p>You will no longer receive these emails.</p>
</body></html>`

// Handler serves tracking links. Publish failures never break the
// recipient's experience: the pixel and redirect are always served.
type Handler struct {
	signer *Signer
	pub    Publisher
	now    func() time.Time
}

// NewHandler creates a handler.
func NewHandler(signer *Signer, pub Publisher) *Handler {
	return &Handler{signer: signer, pub: pub, now: time.Now}
}

// Routes mounts the tracking endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/t/o/{token}/{sig}", h.HandleOpen)
	r.Get("/t/c/{token}/{sig}", h.HandleClick)
	r.Get("/t/u/{token}/{sig}", h.HandleUnsubscribe)
	r.Post("/t/u/{token}/{sig}", h.HandleUnsubscribe)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if link, ok := h.verify(r, KindOpen); ok {
		h.publish(r, link)
	}
	servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	link, ok := h.verify(r, KindClick)
	if !ok {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	h.publish(r, link)
	http.Redirect(w, r, link.URL, http.StatusFound)
}

func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	link, ok := h.verify(r, KindUnsubscribe)
	if !ok {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	if err := h.publish(r, link); err != nil {
		http.Error(w, "unsubscribe failed, please try again", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(unsubscribedPage))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) verify(r *http.Request, kind string) (Link, bool) {
	link, err := h.signer.Verify(kind, chi.URLParam(r, "token"), chi.URLParam(r, "sig"))
	if err != nil {
		logger.Warn("rejected tracking link", "kind", kind, "ip", realIP(r))
		return Link{}, false
	}
	return link, true
}

func (h *Handler) publish(r *http.Request, link Link) error {
	in := domain.EventInput{
		CampaignID: link.CampaignID,
		Email:      link.Email,
		Type:       link.EventType(),
		OccurredAt: h.now().UTC(),
		Metadata:   map[string]string{"device": detectDevice(r.UserAgent())},
	}
	if link.URL != "" {
		in.Metadata[domain.MetaURL] = link.URL
	}
	err := h.pub.Publish(r.Context(), in)
	if err != nil {
		logger.Error("publish tracking event failed", "campaign_id", in.CampaignID, "email", in.Email, "event_type", in.Type, "error", err)
	}
	return err
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func detectDevice(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "mobile"
	}
	return "desktop"
}
