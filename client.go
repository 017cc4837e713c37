package viralquill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxLookupBatch is the platform's ceiling on ids per batch lookup call.
const maxLookupBatch = 100

// Client is a resilient, quota-aware client for the platform API. One Client
// wraps one shared monthly budget: read and write operations are gated on the
// quota tracker before transport is contacted, every transport call runs
// under the retry executor, and rate-limit headers feed per-endpoint
// telemetry. It is safe for concurrent use.
type Client struct {
	transport   Transport
	bearerToken string
	baseURL     string
	mock        bool

	quota       *QuotaTracker
	quotaConfig *QuotaConfig
	retryConfig RetryConfig
	rateLimits  *rateLimitStore

	lookupCache *gocache.Cache
	cacheTTL    time.Duration

	pacer   *rate.Limiter
	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
	clock   Clock

	validationError error
}

// New constructs a Client using the provided functional options. All defaults
// resolve here, exactly once. A best effort validation is performed; call
// IsValid / ValidationError for errors.
//
// Without WithBearerToken or WithTransport the client runs in mock mode:
// deterministic synthetic data through the same quota pipeline.
func New(options ...Option) *Client {
	client := &Client{
		retryConfig: DefaultRetryConfig(),
		rateLimits:  newRateLimitStore(),
		cacheTTL:    15 * time.Minute,
		debug:       DefaultDebugConfig(),
		clock:       systemClock{},
	}

	for _, option := range options {
		option(client)
	}

	if client.quota == nil {
		cfg := DefaultQuotaConfig()
		if client.quotaConfig != nil {
			cfg = *client.quotaConfig
		}
		client.quota = NewQuotaTrackerWithClock(cfg, client.clock)
	}

	if client.transport == nil {
		if client.bearerToken == "" {
			client.mock = true
			client.transport = newMockTransport(client.clock)
		} else {
			client.transport = NewHTTPTransport(client.baseURL, client.bearerToken)
		}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// IsMock reports whether the client serves synthetic data because no
// credentials were configured.
func (c *Client) IsMock() bool { return c.mock }

// Quota returns the injected tracker. The owning service uses this to persist
// a snapshot after recording; the tracker never initiates saves itself.
func (c *Client) Quota() *QuotaTracker { return c.quota }

// QuotaState returns a full snapshot of the shared budget.
func (c *Client) QuotaState() QuotaState { return c.quota.Snapshot() }

// QuotaLevel returns the current degradation tier.
func (c *Client) QuotaLevel() QuotaLevel { return c.quota.Level() }

// RateLimitState returns the last known rate-limit snapshot for a normalized
// endpoint key (see EndpointKey), if any response has carried one.
func (c *Client) RateLimitState(endpoint string) (RateLimitInfo, bool) {
	return c.rateLimits.get(endpoint)
}

// SetActiveUsers feeds the fair-share computation.
func (c *Client) SetActiveUsers(n int) { c.quota.SetActiveUsers(n) }

// LoadQuotaState restores tracker state from an external snapshot at startup.
func (c *Client) LoadQuotaState(patch QuotaStatePatch) { c.quota.LoadState(patch) }

// LookupPosts fetches posts by id, chunking the list into batches of at most
// 100 and issuing one call per chunk. Each call costs one read unit no matter
// how many ids it carries. Ids already in the lookup cache are served locally
// and recorded as cache hits at zero quota cost.
func (c *Client) LookupPosts(ctx context.Context, ids []string, opts ...ReadOption) ([]Post, error) {
	settings := applyReadOptions(opts)

	out := make([]Post, 0, len(ids))
	missing := ids
	if c.lookupCache != nil {
		missing = make([]string, 0, len(ids))
		for _, id := range ids {
			if v, ok := c.lookupCache.Get(lookupCacheKey(id)); ok {
				out = append(out, v.(Post))
				c.quota.RecordCacheHit()
				if c.metrics != nil {
					c.metrics.RecordCacheHit()
				}
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordCacheMiss()
			}
			missing = append(missing, id)
		}
	}

	for start := 0; start < len(missing); start += maxLookupBatch {
		end := min(start+maxLookupBatch, len(missing))
		chunk := missing[start:end]

		q := url.Values{}
		q.Set("ids", strings.Join(chunk, ","))
		q.Set("tweet.fields", "author_id,created_at")

		body, err := c.read(ctx, &APIRequest{Method: http.MethodGet, Path: "/2/tweets", Query: q}, settings)
		if err != nil {
			return nil, err
		}
		posts, _, err := decodePostList(body)
		if err != nil {
			return nil, err
		}
		if c.lookupCache != nil {
			for _, p := range posts {
				c.lookupCache.Set(lookupCacheKey(p.ID), p, c.cacheTTL)
			}
		}
		out = append(out, posts...)
	}

	return out, nil
}

// UserTimeline fetches one page of a user's recent posts. Costs one read unit.
func (c *Client) UserTimeline(ctx context.Context, userID string, opts TimelineOptions, ropts ...ReadOption) (*PostPage, error) {
	settings := applyReadOptions(ropts)

	q := url.Values{}
	q.Set("tweet.fields", "author_id,created_at")
	if opts.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(opts.MaxResults))
	}
	if opts.PaginationToken != "" {
		q.Set("pagination_token", opts.PaginationToken)
	}
	if opts.SinceID != "" {
		q.Set("since_id", opts.SinceID)
	}

	body, err := c.read(ctx, &APIRequest{
		Method: http.MethodGet,
		Path:   "/2/users/" + userID + "/tweets",
		Query:  q,
	}, settings)
	if err != nil {
		return nil, err
	}

	posts, next, err := decodePostList(body)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: posts, NextToken: next}, nil
}

// SearchRecent runs a recent search for the given query. Costs one read unit.
func (c *Client) SearchRecent(ctx context.Context, query string, opts SearchOptions, ropts ...ReadOption) (*PostPage, error) {
	settings := applyReadOptions(ropts)

	q := url.Values{}
	q.Set("query", query)
	q.Set("tweet.fields", "author_id,created_at")
	if opts.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(opts.MaxResults))
	}
	if opts.NextToken != "" {
		q.Set("next_token", opts.NextToken)
	}

	body, err := c.read(ctx, &APIRequest{
		Method: http.MethodGet,
		Path:   "/2/tweets/search/recent",
		Query:  q,
	}, settings)
	if err != nil {
		return nil, err
	}

	posts, next, err := decodePostList(body)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: posts, NextToken: next}, nil
}

// CreatePost publishes a new post. Costs one write unit.
func (c *Client) CreatePost(ctx context.Context, text string) (*Post, error) {
	if err := c.gateWrite(1); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	body, err := c.execute(ctx, &APIRequest{
		Method: http.MethodPost,
		Path:   "/2/tweets",
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	c.quota.RecordWrites(1)
	c.publishQuota()

	post, err := decodePost(body)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// read gates a single-unit read, executes it, and records consumption.
func (c *Client) read(ctx context.Context, req *APIRequest, settings readSettings) ([]byte, error) {
	if err := c.gateRead(1, settings); err != nil {
		return nil, err
	}

	body, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	c.quota.RecordReads(1)
	c.publishQuota()
	return body, nil
}

func (c *Client) gateRead(n int64, settings readSettings) error {
	kind := "read"
	allowed := c.quota.CanRead(n)
	if settings.system {
		kind = "system_read"
		allowed = c.quota.CanSystemRead(n)
	}
	if allowed {
		return nil
	}

	state := c.quota.Snapshot()
	if c.metrics != nil {
		c.metrics.RecordQuotaDenied(kind)
	}
	if c.debugEnabled() && c.debug.LogQuota {
		c.logger.Warn("quota gate denied read", "kind", kind, "readsUsed", state.ReadsUsed, "readCap", state.ReadCap)
	}
	return &QuotaExhaustedError{Kind: kind, Requested: n, Used: state.ReadsUsed, Cap: state.ReadCap}
}

func (c *Client) gateWrite(n int64) error {
	if c.quota.CanWrite(n) {
		return nil
	}

	state := c.quota.Snapshot()
	if c.metrics != nil {
		c.metrics.RecordQuotaDenied("write")
	}
	if c.debugEnabled() && c.debug.LogQuota {
		c.logger.Warn("quota gate denied write", "writesUsed", state.WritesUsed, "writeCap", state.WriteCap)
	}
	return &QuotaExhaustedError{Kind: "write", Requested: n, Used: state.WritesUsed, Cap: state.WriteCap}
}

// execute runs one transport call under the retry executor, parsing rate-limit
// headers from every response and converting non-2xx statuses into
// TransportError without losing status, endpoint or reset information.
func (c *Client) execute(ctx context.Context, req *APIRequest) ([]byte, error) {
	endpoint := EndpointKey(req.Method, req.Path)
	start := time.Now()

	var requestID string
	if c.debugEnabled() && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled() && c.debug.LogRequests {
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "endpoint", endpoint)
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		if c.metrics != nil {
			c.metrics.RecordRetry(endpoint, attempt)
		}
		if c.debugEnabled() && c.debug.LogRetries {
			c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt, "delay", delay, "error", err.Error())
		}
	}

	var lastStatus int
	body, err := Retry(ctx, c.retryConfig, func(ctx context.Context) ([]byte, error) {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.transport.Do(ctx, req)
		if err != nil {
			lastStatus = 0
			return nil, &TransportError{
				Endpoint:  endpoint,
				Retryable: true,
				Message:   "transport failure",
				Cause:     err,
			}
		}
		lastStatus = resp.StatusCode

		info := ParseRateLimitHeaders(resp.Header)
		if info != nil {
			c.rateLimits.update(endpoint, *info)
			if c.metrics != nil {
				c.metrics.RecordRateLimit(endpoint, info.Remaining)
			}
			if c.debugEnabled() && c.debug.LogRateLimit {
				c.logger.Debug("rate limit state", "requestID", requestID, "endpoint", endpoint,
					"remaining", info.Remaining, "limit", info.Limit)
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			transportErr := &TransportError{
				StatusCode: resp.StatusCode,
				Endpoint:   endpoint,
				Retryable:  IsRetryable(resp.StatusCode),
				Message:    apiErrorMessage(resp.Body),
			}
			if info != nil {
				transportErr.ResetAt = info.ResetAt
			}
			return nil, transportErr
		}

		return resp.Body, nil
	}, onRetry)

	if c.metrics != nil {
		c.metrics.RecordRequest(req.Method, endpoint, lastStatus, time.Since(start))
	}
	if err != nil && c.debugEnabled() && c.debug.LogRequests {
		c.logger.Warn("request failed", "requestID", requestID, "endpoint", endpoint, "error", err.Error())
	}

	return body, err
}

func (c *Client) publishQuota() {
	if c.metrics != nil {
		c.metrics.RecordQuota(c.quota.Snapshot(), c.quota.Level())
	}
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

func lookupCacheKey(id string) string {
	return "post/" + id
}

// apiErrorMessage pulls a human-readable detail out of the platform's error
// envelope, whichever of its shapes this response uses.
func apiErrorMessage(body []byte) string {
	if len(body) == 0 {
		return "request failed"
	}
	for _, path := range []string{"errors.0.message", "errors.0.detail", "detail", "title"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return "request failed"
}

// decodePostList decodes the platform's list envelope: a "data" array plus an
// optional "meta.next_token" for pagination. An absent "data" key is an empty
// result, not an error.
func decodePostList(body []byte) ([]Post, string, error) {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return nil, "", nil
	}

	var posts []Post
	if err := json.Unmarshal([]byte(data.Raw), &posts); err != nil {
		return nil, "", fmt.Errorf("viralquill: decode posts: %w", err)
	}

	next := gjson.GetBytes(body, "meta.next_token").String()
	return posts, next, nil
}

// decodePost decodes the single-object "data" envelope.
func decodePost(body []byte) (Post, error) {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return Post{}, fmt.Errorf("viralquill: response carried no data")
	}

	var post Post
	if err := json.Unmarshal([]byte(data.Raw), &post); err != nil {
		return Post{}, fmt.Errorf("viralquill: decode post: %w", err)
	}
	return post, nil
}
