package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

// Errors surfaced by the Twitter client.
var (
	// ErrUnauthorized means the bearer token was rejected; fatal for the
	// whole fetch stage.
	ErrUnauthorized = errors.New("twitter: unauthorized")
	// ErrUpstream marks non-auth API failures, surfaced per account
	// after bounded retries.
	ErrUpstream = errors.New("twitter: upstream failure")
)

// User is a resolved account.
type User struct {
	ID        string `json:"id"`
	Handle    string `json:"username"`
	Name      string `json:"name"`
	Followers int    `json:"followers"`
	Verified  bool   `json:"verified"`
}

// RawTweet is a wire-level tweet from the v2 API.
type RawTweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	PublicMetrics  struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets,omitempty"`
}

// Engagement converts the wire counters to the domain type.
func (r *RawTweet) Engagement() Engagement {
	return Engagement{
		Likes:    r.PublicMetrics.LikeCount,
		Retweets: r.PublicMetrics.RetweetCount,
		Replies:  r.PublicMetrics.ReplyCount,
		Quotes:   r.PublicMetrics.QuoteCount,
	}
}

// RetweetedID returns the referenced original's ID if this is a
// retweet.
func (r *RawTweet) RetweetedID() string {
	for _, ref := range r.ReferencedTweets {
		if ref.Type == "retweeted" {
			return ref.ID
		}
	}
	return ""
}

// IsReply reports whether the tweet replies to another.
func (r *RawTweet) IsReply() bool {
	for _, ref := range r.ReferencedTweets {
		if ref.Type == "replied_to" {
			return true
		}
	}
	return false
}

// TimelinePage is one account's timeline plus its expansion payload.
type TimelinePage struct {
	Tweets []RawTweet
	// Referenced maps tweet ID to the expanded referenced tweets
	// (retweet originals).
	Referenced map[string]RawTweet
	// Users maps author ID to expanded user objects, covering the
	// referenced tweets' authors.
	Users map[string]User
}

// API is the upstream capability the fetch algorithm runs against.
// Tests substitute a scripted implementation.
type API interface {
	LookupUsers(ctx context.Context, handles []string) ([]User, error)
	Timeline(ctx context.Context, userID string, max int, since time.Time) (*TimelinePage, error)
	SearchConversation(ctx context.Context, conversationID, handle string) ([]RawTweet, error)
}

const (
	tweetFields = "id,text,author_id,conversation_id,created_at,public_metrics,referenced_tweets"
	userFields  = "id,username,name,public_metrics,verified"
	maxRetries  = 2
)

// Client is the Twitter API v2 client, authenticated with an app-only
// bearer token.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	sleep      func(time.Duration)
}

// NewClient creates a Twitter client against baseURL (the production
// endpoint unless tests override it).
func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		sleep:      time.Sleep,
	}
}

// LookupUsers resolves handles to user objects in one batch request.
// Handles unknown upstream are simply absent from the result.
func (c *Client) LookupUsers(ctx context.Context, handles []string) ([]User, error) {
	q := url.Values{}
	q.Set("usernames", strings.Join(handles, ","))
	q.Set("user.fields", userFields)

	var resp struct {
		Data []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			Name          string `json:"name"`
			Verified      bool   `json:"verified"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/users/by", q, &resp); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(resp.Data))
	for _, u := range resp.Data {
		users = append(users, User{
			ID:        u.ID,
			Handle:    u.Username,
			Name:      u.Name,
			Followers: u.PublicMetrics.FollowersCount,
			Verified:  u.Verified,
		})
	}
	return users, nil
}

// Timeline pulls an account's most recent tweets within the lookback
// window, with expansions for referenced tweets and their authors.
func (c *Client) Timeline(ctx context.Context, userID string, max int, since time.Time) (*TimelinePage, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(max))
	q.Set("start_time", since.UTC().Format(time.RFC3339))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "referenced_tweets.id,referenced_tweets.id.author_id")
	q.Set("user.fields", userFields)

	var resp struct {
		Data     []RawTweet `json:"data"`
		Includes struct {
			Tweets []RawTweet `json:"tweets"`
			Users  []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
				Name     string `json:"name"`
			} `json:"users"`
		} `json:"includes"`
	}
	if err := c.get(ctx, fmt.Sprintf("/users/%s/tweets", userID), q, &resp); err != nil {
		return nil, err
	}

	page := &TimelinePage{
		Tweets:     resp.Data,
		Referenced: make(map[string]RawTweet, len(resp.Includes.Tweets)),
		Users:      make(map[string]User, len(resp.Includes.Users)),
	}
	for _, t := range resp.Includes.Tweets {
		page.Referenced[t.ID] = t
	}
	for _, u := range resp.Includes.Users {
		page.Users[u.ID] = User{ID: u.ID, Handle: u.Username, Name: u.Name}
	}
	return page, nil
}

// SearchConversation finds every part of a conversation authored by
// handle, used to fill gaps in reconstructed threads.
func (c *Client) SearchConversation(ctx context.Context, conversationID, handle string) ([]RawTweet, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("conversation_id:%s from:%s", conversationID, handle))
	q.Set("max_results", "100")
	q.Set("tweet.fields", tweetFields)

	var resp struct {
		Data []RawTweet `json:"data"`
	}
	if err := c.get(ctx, "/tweets/search/recent", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// get performs an authenticated GET, retrying 429s up to maxRetries
// with bounded backoff.
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	for attempt := 0; ; attempt++ {
		status, body, err := c.do(ctx, path, q)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parsing %s response: %w", path, err)
			}
			return nil
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("%w: status %d", ErrUnauthorized, status)
		case status == http.StatusTooManyRequests && attempt < maxRetries:
			delay := time.Duration(attempt+1) * 5 * time.Second
			logger.Warn("fetcher: rate limited, backing off",
				"path", path, "attempt", attempt+1, "delay_s", int(delay.Seconds()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c.sleep(delay)
		default:
			return fmt.Errorf("%w: status %d on %s: %s", ErrUpstream, status, path, truncate(string(body), 200))
		}
	}
}

func (c *Client) do(ctx context.Context, path string, q url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	token, err := c.token.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	return resp.StatusCode, body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
