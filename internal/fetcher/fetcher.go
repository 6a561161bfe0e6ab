package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

// Options bounds a fetch.
type Options struct {
	// MaxTweetsPerAccount is the per-account cap K. The upstream API
	// refuses anything below 5, so lower values are silently raised.
	MaxTweetsPerAccount int
	// LookbackDays is the window, clamped to [1, 14].
	LookbackDays int
	// Concurrency bounds the account fan-out.
	Concurrency int
}

const (
	minTweetsPerAccount = 5
	defaultConcurrency  = 4
)

// Result is the outcome of one fetch: the deduplicated, ranked tweet
// list plus per-account diagnostics for the run manifest.
type Result struct {
	Tweets []*Tweet
	// SkippedHandles were unknown upstream.
	SkippedHandles []string
	// AccountErrors maps handle to the failure that kept its timeline
	// out of the batch. The batch itself continues.
	AccountErrors map[string]string
}

// Fetcher runs the fetch algorithm against an API.
type Fetcher struct {
	api  API
	opts Options
	now  func() time.Time
}

// New creates a fetcher, normalizing out-of-range options.
func New(api API, opts Options) *Fetcher {
	if opts.MaxTweetsPerAccount < minTweetsPerAccount {
		opts.MaxTweetsPerAccount = minTweetsPerAccount
	}
	if opts.LookbackDays < 1 {
		opts.LookbackDays = 1
	}
	if opts.LookbackDays > 14 {
		opts.LookbackDays = 14
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	return &Fetcher{api: api, opts: opts, now: time.Now}
}

// Fetch resolves handles and pulls every account's recent tweets.
// Unauthorized is fatal; any other per-account failure is recorded and
// the batch continues.
func (f *Fetcher) Fetch(ctx context.Context, handles []string) (*Result, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("no handles configured")
	}

	deduped := dedupeHandles(handles)
	users, err := f.api.LookupUsers(ctx, deduped)
	if err != nil {
		return nil, fmt.Errorf("resolving handles: %w", err)
	}

	byHandle := make(map[string]User, len(users))
	for _, u := range users {
		byHandle[strings.ToLower(u.Handle)] = u
	}

	result := &Result{AccountErrors: make(map[string]string)}
	var resolved []User
	for _, h := range deduped {
		u, ok := byHandle[strings.ToLower(h)]
		if !ok {
			logger.Warn("fetcher: unknown handle skipped", "handle", h)
			result.SkippedHandles = append(result.SkippedHandles, h)
			continue
		}
		resolved = append(resolved, u)
	}

	since := f.now().AddDate(0, 0, -f.opts.LookbackDays)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var unauthorized error
	sem := make(chan struct{}, f.opts.Concurrency)

	for _, user := range resolved {
		wg.Add(1)
		go func(u User) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			tweets, err := f.fetchAccount(ctx, u, since)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrUnauthorized):
				// A rejected token fails every account; the batch is done.
				if unauthorized == nil {
					unauthorized = err
				}
			case err != nil:
				logger.Warn("fetcher: account failed", "handle", u.Handle, "error", err)
				result.AccountErrors[u.Handle] = err.Error()
			default:
				result.Tweets = append(result.Tweets, tweets...)
			}
		}(user)
	}
	wg.Wait()

	if unauthorized != nil {
		return nil, fmt.Errorf("fetching timelines: %w", unauthorized)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result.Tweets = dedupeTweets(result.Tweets)
	sortTweets(result.Tweets)

	logger.Info("fetcher: batch complete",
		"accounts", len(resolved),
		"tweets", len(result.Tweets),
		"skipped", len(result.SkippedHandles),
		"failed", len(result.AccountErrors))
	return result, nil
}

// fetchAccount pulls one account's timeline and reconstructs its
// threads. Conversation searches are serialized within the account.
func (f *Fetcher) fetchAccount(ctx context.Context, user User, since time.Time) ([]*Tweet, error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	page, err := f.api.Timeline(ctx, user.ID, f.opts.MaxTweetsPerAccount, since)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("timeline: %w", err)
	}

	// Threads first: group the account's own non-retweet tweets by
	// conversation.
	groups := make(map[string][]RawTweet)
	var singles []RawTweet
	for _, raw := range page.Tweets {
		if raw.ConversationID != "" && raw.RetweetedID() == "" {
			groups[raw.ConversationID] = append(groups[raw.ConversationID], raw)
		} else {
			singles = append(singles, raw)
		}
	}

	var tweets []*Tweet
	for convID, parts := range groups {
		if len(parts) < 2 {
			singles = append(singles, parts...)
			continue
		}
		tweets = append(tweets, f.reconstructThread(ctx, user, convID, parts))
	}

	for _, raw := range singles {
		tweets = append(tweets, buildTweet(user, raw, page))
	}
	return tweets, nil
}

// reconstructThread fills the thread's gaps via conversation search,
// orders the parts, and renders them as one Tweet carrying the first
// part's ID. Search failure degrades to the parts already in hand.
func (f *Fetcher) reconstructThread(ctx context.Context, user User, convID string, parts []RawTweet) *Tweet {
	found, err := f.api.SearchConversation(ctx, convID, user.Handle)
	if err != nil {
		logger.Warn("fetcher: conversation search failed",
			"handle", user.Handle, "conversation_id", convID, "error", err)
	}

	byID := make(map[string]RawTweet, len(parts)+len(found))
	for _, p := range parts {
		byID[p.ID] = p
	}
	for _, p := range found {
		if p.AuthorID == user.ID {
			byID[p.ID] = p
		}
	}

	ordered := make([]RawTweet, 0, len(byID))
	for _, p := range byID {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	texts := make([]string, len(ordered))
	for i, p := range ordered {
		texts[i] = p.Text
	}

	first := ordered[0]
	return &Tweet{
		ID:              first.ID,
		AuthorID:        user.ID,
		AuthorHandle:    user.Handle,
		AuthorName:      user.Name,
		Text:            FormatThread(texts),
		CreatedAt:       first.CreatedAt,
		ConversationID:  convID,
		Kind:            KindThread,
		Engagement:      first.Engagement(),
		IsThread:        true,
		ThreadPartCount: len(ordered),
	}
}

// buildTweet converts one non-thread raw tweet, expanding retweets to
// the referenced full text when the expansion payload carries it.
func buildTweet(user User, raw RawTweet, page *TimelinePage) *Tweet {
	t := &Tweet{
		ID:              raw.ID,
		AuthorID:        user.ID,
		AuthorHandle:    user.Handle,
		AuthorName:      user.Name,
		Text:            raw.Text,
		CreatedAt:       raw.CreatedAt,
		ConversationID:  raw.ConversationID,
		Kind:            KindOriginal,
		Engagement:      raw.Engagement(),
		ThreadPartCount: 1,
	}

	if refID := raw.RetweetedID(); refID != "" {
		t.Kind = KindRetweet
		t.ReferencedID = refID
		if ref, ok := page.Referenced[refID]; ok {
			author := "unknown"
			if u, ok := page.Users[ref.AuthorID]; ok {
				author = u.Handle
			}
			t.Text = fmt.Sprintf("RT @%s: %s", author, ref.Text)
		}
	} else if raw.IsReply() {
		t.Kind = KindReply
	}
	return t
}

// dedupeHandles drops duplicate handles case-insensitively, keeping
// first-seen order.
func dedupeHandles(handles []string) []string {
	seen := make(map[string]bool, len(handles))
	var out []string
	for _, h := range handles {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(h))
	}
	return out
}

func dedupeTweets(tweets []*Tweet) []*Tweet {
	seen := make(map[string]bool, len(tweets))
	var out []*Tweet
	for _, t := range tweets {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// sortTweets orders by engagement rank descending, then recency.
func sortTweets(tweets []*Tweet) {
	sort.Slice(tweets, func(i, j int) bool {
		ri, rj := tweets[i].Engagement.Rank(), tweets[j].Engagement.Rank()
		if ri != rj {
			return ri > rj
		}
		return tweets[i].CreatedAt.After(tweets[j].CreatedAt)
	})
}
