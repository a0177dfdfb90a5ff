package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
	"golang.org/x/time/rate"
)

type contextKey int

const (
	userKey contextKey = iota
	deviceKey
)

// UserID returns the authenticated user stored by [RequireUser] or [OptionalUser].
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// Device returns the device stored by [RequireDevice].
func Device(ctx context.Context) *models.Device {
	d, _ := ctx.Value(deviceKey).(*models.Device)
	return d
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Logging writes one line per request.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration", time.Since(start).Round(time.Microsecond),
				"remote", clientIP(r),
			)
		})
	}
}

// Recover turns a panic in a handler into a 500 response.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("handler panicked", "method", r.Method, "path", r.URL.Path, "panic", v)
					writeMessage(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// bearer returns the credential from an Authorization header.
func bearer(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// resolveUser accepts a session token or a device API key and returns the user behind it.
func (s *Server) resolveUser(r *http.Request) (string, error) {
	token := bearer(r)
	if shared.IsAPIKey(token) {
		device, err := s.svc.DesktopAuth.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			return "", err
		}
		return device.UserID(), nil
	}

	user, _, err := s.svc.Users.Authenticate(token)
	if err != nil {
		return "", err
	}
	return user.ID(), nil
}

// RequireUser rejects requests without a valid session or device API key.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.resolveUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

// OptionalUser stores the session user when one is present and lets anonymous requests through.
func (s *Server) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearer(r); token != "" && !shared.IsAPIKey(token) {
			if user, _, err := s.svc.Users.Authenticate(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user.ID()))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDevice authenticates the device API key and stores the device.
func (s *Server) RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device, err := s.svc.DesktopAuth.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			s.fail(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), deviceKey, device)
		ctx = context.WithValue(ctx, userKey, device.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLimiter hands out one token bucket per device.
type DeviceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewDeviceLimiter allows perHour requests per device with the given burst. perHour <= 0 disables limiting.
func NewDeviceLimiter(perHour, burst int) *DeviceLimiter {
	limit := rate.Inf
	if perHour > 0 {
		limit = rate.Every(time.Hour / time.Duration(perHour))
	}
	if burst <= 0 {
		burst = 1
	}
	return &DeviceLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *DeviceLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Reserve takes a token for key. A zero delay means the request may proceed.
func (l *DeviceLimiter) Reserve(key string) time.Duration {
	r := l.get(key).Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay
	}
	return 0
}

// RateLimit applies the device limiter. It must run after [Server.RequireDevice].
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device := Device(r.Context())
		if device == nil {
			next.ServeHTTP(w, r)
			return
		}

		if delay := s.limiter.Reserve(device.DeviceID()); delay > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			s.fail(w, r, fmt.Errorf("%w: retry in %s", shared.ErrRateLimited, delay.Round(time.Second)))
			return
		}
		next.ServeHTTP(w, r)
	})
}
