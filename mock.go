package viralquill

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// mockTransport serves deterministic synthetic data without touching the
// network. It is active when no credentials are configured, sitting behind
// the exact same quota gates, retry executor and recording calls as the live
// transport, so tests and local development exercise identical budget
// semantics.
type mockTransport struct {
	clock Clock
}

func newMockTransport(clock Clock) *mockTransport {
	if clock == nil {
		clock = systemClock{}
	}
	return &mockTransport{clock: clock}
}

type mockMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

type mockEnvelope struct {
	Data any       `json:"data"`
	Meta *mockMeta `json:"meta,omitempty"`
}

// Do implements the Transport interface.
func (m *mockTransport) Do(_ context.Context, req *APIRequest) (*APIResponse, error) {
	now := m.clock.Now().UTC().Truncate(time.Second)

	switch {
	case req.Method == http.MethodGet && req.Path == "/2/tweets":
		ids := strings.Split(req.Query.Get("ids"), ",")
		posts := make([]Post, 0, len(ids))
		for _, id := range ids {
			if id == "" {
				continue
			}
			posts = append(posts, m.syntheticPost(id, now))
		}
		return m.respond(posts, nil)

	case req.Method == http.MethodGet && strings.HasPrefix(req.Path, "/2/users/") && strings.HasSuffix(req.Path, "/tweets"):
		userID := strings.TrimSuffix(strings.TrimPrefix(req.Path, "/2/users/"), "/tweets")
		n := resultCount(req.Query, 10)
		posts := make([]Post, 0, n)
		for i := 0; i < n; i++ {
			id := deriveID(userID + "/timeline/" + strconv.Itoa(i))
			p := m.syntheticPost(id, now.Add(-time.Duration(i)*time.Hour))
			p.AuthorID = userID
			posts = append(posts, p)
		}
		return m.respond(posts, &mockMeta{ResultCount: n, NextToken: deriveID(userID + "/next")})

	case req.Method == http.MethodGet && req.Path == "/2/tweets/search/recent":
		query := req.Query.Get("query")
		n := resultCount(req.Query, 10)
		posts := make([]Post, 0, n)
		for i := 0; i < n; i++ {
			id := deriveID(query + "/search/" + strconv.Itoa(i))
			p := m.syntheticPost(id, now.Add(-time.Duration(i)*time.Minute))
			p.Text = fmt.Sprintf("synthetic result %d for %q", i, query)
			posts = append(posts, p)
		}
		return m.respond(posts, &mockMeta{ResultCount: n})

	case req.Method == http.MethodPost && req.Path == "/2/tweets":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Body, &payload); err != nil || payload.Text == "" {
			return errorResponse(http.StatusBadRequest, "text is required")
		}
		post := Post{
			ID:        deriveID(payload.Text),
			Text:      payload.Text,
			AuthorID:  mockAuthorID,
			CreatedAt: now,
		}
		return m.respondSingle(post)

	default:
		return errorResponse(http.StatusNotFound, "unknown mock route "+req.Method+" "+req.Path)
	}
}

const mockAuthorID = "1000000000000000001"

func (m *mockTransport) syntheticPost(id string, createdAt time.Time) Post {
	return Post{
		ID:        id,
		Text:      "synthetic post " + id,
		AuthorID:  deriveID("author/" + id),
		CreatedAt: createdAt,
	}
}

func (m *mockTransport) respond(posts []Post, meta *mockMeta) (*APIResponse, error) {
	return encodeMock(mockEnvelope{Data: posts, Meta: meta}, m.clock.Now())
}

func (m *mockTransport) respondSingle(post Post) (*APIResponse, error) {
	return encodeMock(mockEnvelope{Data: post}, m.clock.Now())
}

func encodeMock(env mockEnvelope, now time.Time) (*APIResponse, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	// Synthetic window headers so telemetry paths run in mock mode too.
	h := http.Header{}
	h.Set(headerRateLimitLimit, "450")
	h.Set(headerRateLimitRemaining, "449")
	h.Set(headerRateLimitReset, strconv.FormatInt(now.Add(15*time.Minute).Unix(), 10))
	return &APIResponse{StatusCode: http.StatusOK, Header: h, Body: body}, nil
}

func errorResponse(status int, detail string) (*APIResponse, error) {
	body, _ := json.Marshal(map[string]any{
		"errors": []map[string]string{{"message": detail}},
	})
	return &APIResponse{StatusCode: status, Header: http.Header{}, Body: body}, nil
}

func resultCount(q map[string][]string, fallback int) int {
	vs := q["max_results"]
	if len(vs) == 0 {
		return fallback
	}
	n, err := strconv.Atoi(vs[0])
	if err != nil || n < 1 {
		return fallback
	}
	if n > 100 {
		n = 100
	}
	return n
}

// deriveID produces a stable numeric id from a seed string, matching the
// platform's id shape.
func deriveID(seed string) string {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return strconv.FormatUint(h.Sum64()>>1, 10)
}
