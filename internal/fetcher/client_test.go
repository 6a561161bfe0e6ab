package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, StaticToken("test-token"), 5*time.Second)
	c.sleep = func(time.Duration) {}
	return c
}

func TestLookupUsersParsesBatch(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("usernames")
		w.Write([]byte(`{"data":[
			{"id":"u1","username":"AndrewYNg","name":"Andrew Ng","public_metrics":{"followers_count":900000},"verified":true},
			{"id":"u2","username":"karpathy","name":"Andrej Karpathy"}
		]}`))
	})

	users, err := c.LookupUsers(context.Background(), []string{"AndrewYNg", "karpathy"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "AndrewYNg,karpathy", gotQuery)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, 900000, users[0].Followers)
	assert.True(t, users[0].Verified)
}

func TestTimelineBuildsExpansionMaps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/users/u1/tweets")
		assert.Equal(t, "7", r.URL.Query().Get("max_results"))
		w.Write([]byte(`{
			"data":[{"id":"t1","text":"hi","author_id":"u1","conversation_id":"t1","created_at":"2026-08-20T10:00:00Z","public_metrics":{"like_count":4}}],
			"includes":{
				"tweets":[{"id":"t0","text":"original","author_id":"u9"}],
				"users":[{"id":"u9","username":"ylecun","name":"Yann"}]
			}
		}`))
	})

	page, err := c.Timeline(context.Background(), "u1", 7, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 1)
	assert.Equal(t, 4, page.Tweets[0].PublicMetrics.LikeCount)
	assert.Equal(t, "original", page.Referenced["t0"].Text)
	assert.Equal(t, "ylecun", page.Users["u9"].Handle)
}

func TestSearchConversationQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(`{"data":[{"id":"t2","text":"part"}]}`))
	})

	tweets, err := c.SearchConversation(context.Background(), "t1", "karpathy")
	require.NoError(t, err)
	assert.Equal(t, "conversation_id:t1 from:karpathy", gotQuery)
	assert.Len(t, tweets, 1)
}

func TestRateLimitRetriedTwiceThenSucceeds(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	})

	_, err := c.LookupUsers(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.LookupUsers(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 3, calls)
}

func TestUnauthorizedNotRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.LookupUsers(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, calls)
}
