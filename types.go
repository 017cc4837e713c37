package viralquill

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// APIRequest describes a single call against the platform API: method, path
// template relative to the API root, query parameters and an optional JSON body.
type APIRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// APIResponse is the raw outcome of a transport call.
type APIResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes one API request. It is the collaborator contract the
// client is built on: the real implementation speaks HTTP, the mock one
// fabricates responses in-process, tests supply whatever they need.
type Transport interface {
	Do(ctx context.Context, req *APIRequest) (*APIResponse, error)
}

// TransportFunc adapts a plain function to the Transport interface.
type TransportFunc func(ctx context.Context, req *APIRequest) (*APIResponse, error)

func (f TransportFunc) Do(ctx context.Context, req *APIRequest) (*APIResponse, error) {
	return f(ctx, req)
}

// Clock abstracts the time source so quota periods and mock data are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option represents a configuration option
type Option func(*Client)

// RetryHook observes retry scheduling. It receives the 0-based attempt that
// just failed, the wait before the next attempt, and the error that caused it.
type RetryHook func(attempt int, delay time.Duration, err error)

// Post is a single post returned by read operations or content creation.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// PostPage is one page of posts plus the token for the next page, if any.
type PostPage struct {
	Posts     []Post
	NextToken string
}

// TimelineOptions tunes a user timeline fetch.
type TimelineOptions struct {
	MaxResults      int    // 5..100, 0 uses the API default
	PaginationToken string // token from a previous page
	SinceID         string // only posts newer than this id
}

// SearchOptions tunes a recent search.
type SearchOptions struct {
	MaxResults int
	NextToken  string
}

// ReadOption adjusts quota gating for a single read operation.
type ReadOption func(*readSettings)

type readSettings struct {
	system bool
}

// AsSystem gates the read through the system budget, bypassing the reserve
// withheld from ordinary user-initiated reads. Intended for background jobs.
func AsSystem() ReadOption {
	return func(s *readSettings) { s.system = true }
}

func applyReadOptions(opts []ReadOption) readSettings {
	var s readSettings
	for _, o := range opts {
		if o != nil {
			o(&s)
		}
	}
	return s
}

// DebugConfig controls which lifecycle events are logged when debugging is on.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogQuota     bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with all log sites armed and
// UUID request ids.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogQuota:     true,
		LogRateLimit: true,
		RequestIDGen: uuid.NewString,
	}
}
