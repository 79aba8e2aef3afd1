package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/appendlog"
	"github.com/capmd/capmd/pkg/audit"
	"github.com/capmd/capmd/pkg/capability"
	"github.com/capmd/capmd/pkg/clientip"
	"github.com/capmd/capmd/pkg/export"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/orchestration"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/ratelimit"
	"github.com/capmd/capmd/pkg/search"
	"github.com/capmd/capmd/pkg/ssrf"
	"github.com/capmd/capmd/pkg/store"
	"github.com/capmd/capmd/pkg/webhook"
	"github.com/capmd/capmd/pkg/workspace"
)

// maxBodyBytes caps request bodies. Slightly above the file size ceiling to
// leave room for the JSON framing around content.
const maxBodyBytes = 6 << 20

// Services are the domain dependencies the HTTP surface drives.
type Services struct {
	Store         *store.Store
	Resolver      *capability.Resolver
	Workspace     *workspace.Service
	Appends       *appendlog.Engine
	Orchestration *orchestration.Service
	Search        *search.Service
	Export        *export.Service
	Audit         *audit.Queue
	Webhooks      *webhook.Dispatcher
	Limiter       *ratelimit.Limiter
	JWT           *JWTService
}

// Config tunes the HTTP surface.
type Config struct {
	Host string
	Port int

	// BaseURL prefixes capability URLs in responses. Empty yields
	// relative URLs.
	BaseURL string

	Proxy clientip.Policy

	// WebhookSSRF governs subscription target vetting.
	WebhookSSRF ssrf.Options

	// MetricsEnabled mounts /metrics on the main listener.
	MetricsEnabled bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8787
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// handlers binds the route handlers to their dependencies.
type handlers struct {
	cfg     Config
	svc     Services
	metrics *metrics
}

// decodeJSONBody decodes the request body into dst, enforcing the body cap.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return models.ErrPayloadTooLarge
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", models.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: malformed JSON: %v", models.ErrInvalidRequest, err)
	}
	return nil
}

// wildcardPath extracts and normalizes the path tail of a capability route.
// The raw form was already vetted by rawPathGuard; the tail chi hands over
// is decoded exactly once.
func wildcardPath(r *http.Request) (string, error) {
	tail := chi.URLParam(r, "*")
	if tail == "" {
		return "/", nil
	}
	p, err := pathutil.Normalize("/" + tail)
	if err != nil {
		return "", err
	}
	return p, nil
}

// chiTrimmedTail returns the wildcard tail without surrounding slashes,
// empty for the bare key URL.
func chiTrimmedTail(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

// isFolderRequest reports whether the request targets a folder: the tail is
// empty or carries a trailing slash in the raw URL.
func isFolderRequest(r *http.Request) bool {
	tail := chi.URLParam(r, "*")
	if tail == "" {
		return true
	}
	raw := r.URL.EscapedPath()
	return len(raw) > 0 && raw[len(raw)-1] == '/'
}

// resolveKey authorizes the {key} URL parameter for the required tier and
// target path, annotating the log context on success.
func (s *handlers) resolveKey(r *http.Request, required models.Permission, path string) (*capability.Authorization, error) {
	token := chi.URLParam(r, "key")
	auth, err := s.svc.Resolver.Resolve(r.Context(), token, required, path)
	if err != nil {
		return nil, err
	}
	annotate(r, auth)
	return auth, nil
}

// pathAuth pairs an authorization with the normalized body-supplied path it
// was checked against.
type pathAuth struct {
	*capability.Authorization
	path string
}

// resolveKeyPath authorizes the {key} parameter against a path taken from
// the request body rather than the URL.
func (s *handlers) resolveKeyPath(r *http.Request, required models.Permission, raw string) (*pathAuth, error) {
	p, err := pathutil.Normalize(raw)
	if err != nil {
		return nil, err
	}
	auth, err := s.resolveKey(r, required, p)
	if err != nil {
		return nil, err
	}
	return &pathAuth{Authorization: auth, path: p}, nil
}

// allow checks the rate limiter and writes the 429 itself on rejection.
func (s *handlers) allow(w http.ResponseWriter, r *http.Request, subject, action string) bool {
	if s.svc.Limiter == nil {
		return true
	}
	ok, retryAfter := s.svc.Limiter.Allow(subject, action)
	if ok {
		return true
	}
	s.metrics.rateLimited.Inc()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeCodeError(w, http.StatusTooManyRequests, models.CodeRateLimited, "rate limit exceeded")
	return false
}

// recordAudit queues a best-effort audit entry with the request's client IP.
func (s *handlers) recordAudit(r *http.Request, e *models.AuditEntry) {
	if s.svc.Audit == nil {
		return
	}
	if lc := logger.FromContext(r.Context()); lc != nil {
		e.IP = lc.ClientIP
	}
	e.UserAgent = r.UserAgent()
	s.svc.Audit.Record(r.Context(), e)
}

// emitEvent hands an occurrence to the webhook dispatcher.
func (s *handlers) emitEvent(r *http.Request, ev webhook.Event) {
	if s.svc.Webhooks == nil {
		return
	}
	s.svc.Webhooks.Emit(r.Context(), ev)
}

// fileData is the wire form of a file.
type fileData struct {
	ID        string         `json:"id"`
	Path      string         `json:"path"`
	Content   string         `json:"content,omitempty"`
	Size      int64          `json:"size"`
	ETag      string         `json:"etag"`
	Settings  models.JSONMap `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func fileToData(f *models.File, withContent bool) fileData {
	d := fileData{
		ID:        f.ID,
		Path:      f.Path,
		Size:      f.SizeBytes,
		ETag:      f.ETag(),
		Settings:  f.Settings,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	if withContent {
		d.Content = f.Content
	}
	return d
}

// keysData is the wire form of a capability key triple, including assembled
// capability URLs.
type keysData struct {
	Keys keyTriple `json:"keys"`
	URLs keyTriple `json:"urls"`
}

type keyTriple struct {
	Read   string `json:"read"`
	Append string `json:"append"`
	Write  string `json:"w"`
}

func (s *handlers) keysToData(t *workspace.KeyTriple) keysData {
	return keysData{
		Keys: keyTriple{Read: t.Read, Append: t.Append, Write: t.Write},
		URLs: keyTriple{
			Read:   s.cfg.BaseURL + "/r/" + t.Read + "/",
			Append: s.cfg.BaseURL + "/a/" + t.Append + "/",
			Write:  s.cfg.BaseURL + "/w/" + t.Write + "/",
		},
	}
}

// queryInt parses an integer query parameter, returning def when absent or
// unparsable.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
