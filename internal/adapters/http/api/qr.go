package api

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"
)

// handleQR handles GET /rooms/:room/qr with a PNG of the room's join URL.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room := ps.ByName("room")
	if _, err := s.deps.Room(r.Context(), room); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	png, err := qrcode.Encode(s.joinURL(r, room), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr_failed", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// joinURL derives the room URL from the configured public URL, falling back
// to the request scheme and host.
func (s *Server) joinURL(r *http.Request, room string) string {
	base := strings.TrimSuffix(s.publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/rooms/" + room
}
