package api

import "github.com/okian/callout/pkg/logger"

const (
	defaultMaxLimit = 100
	maxBodyBytes    = 64 << 10
	qrSize          = 320
)

// Option configures a Server.
type Option func(*Server)

// WithStats exposes GET /stats.
func WithStats(p StatsProvider) Option {
	return func(s *Server) { s.stats = p }
}

// WithSockets exposes GET /rooms/:room/ws.
func WithSockets(ss SocketServer) Option {
	return func(s *Server) { s.sockets = ss }
}

// WithPublicURL sets the base URL encoded in join QR codes. When empty the
// request host is used.
func WithPublicURL(u string) Option {
	return func(s *Server) { s.publicURL = u }
}

// WithMaxLimit bounds the scoreboard limit query parameter.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
