package ws

import (
	"net/http"
	"time"

	"github.com/okian/callout/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithLeaveGrace submits a Leave for players whose last socket stays closed
// for d. Zero disables automatic leaving.
func WithLeaveGrace(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.leaveGrace = d
		}
	}
}

// WithOriginCheck replaces the default allow-all origin policy.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if check != nil {
			h.upgrader.CheckOrigin = check
		}
	}
}
