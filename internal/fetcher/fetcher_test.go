package fetcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	users         []User
	timelines     map[string]*TimelinePage
	timelineErrs  map[string]error
	conversations map[string][]RawTweet
	lookupErr     error
	timelineMax   int
}

func (f *fakeAPI) LookupUsers(_ context.Context, _ []string) ([]User, error) {
	return f.users, f.lookupErr
}

func (f *fakeAPI) Timeline(_ context.Context, userID string, max int, _ time.Time) (*TimelinePage, error) {
	f.timelineMax = max
	if err := f.timelineErrs[userID]; err != nil {
		return nil, err
	}
	page, ok := f.timelines[userID]
	if !ok {
		return &TimelinePage{}, nil
	}
	return page, nil
}

func (f *fakeAPI) SearchConversation(_ context.Context, conversationID, _ string) ([]RawTweet, error) {
	return f.conversations[conversationID], nil
}

func rawTweet(id, authorID, text string, at time.Time, likes int) RawTweet {
	var r RawTweet
	r.ID = id
	r.AuthorID = authorID
	r.Text = text
	r.CreatedAt = at
	r.ConversationID = id
	r.PublicMetrics.LikeCount = likes
	return r
}

func TestFormatThread(t *testing.T) {
	got := FormatThread([]string{"A", "B", "C"})
	assert.Equal(t, "[1/3] A\n\n[2/3] B\n\n[3/3] C", got)
}

func TestEngagementRankWeighsRetweetsDouble(t *testing.T) {
	e := Engagement{Likes: 10, Retweets: 5, Replies: 3, Quotes: 2}
	assert.Equal(t, 25, e.Rank())
}

func TestCapFloorRaisedToFive(t *testing.T) {
	api := &fakeAPI{users: []User{{ID: "u1", Handle: "a"}}}
	f := New(api, Options{MaxTweetsPerAccount: 2, LookbackDays: 7})

	_, err := f.Fetch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 5, api.timelineMax)
}

func TestThreadReconstruction(t *testing.T) {
	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	partA := rawTweet("100", "u1", "A", t1, 50)
	partB := rawTweet("101", "u1", "B", t2, 10)
	partC := rawTweet("102", "u1", "C", t3, 5)
	for _, p := range []*RawTweet{&partA, &partB, &partC} {
		p.ConversationID = "100"
	}

	api := &fakeAPI{
		users: []User{{ID: "u1", Handle: "karpathy", Name: "Andrej"}},
		timelines: map[string]*TimelinePage{
			// Timeline only saw two of the three parts.
			"u1": {Tweets: []RawTweet{partA, partC}},
		},
		conversations: map[string][]RawTweet{
			"100": {partA, partB, partC},
		},
	}

	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})
	res, err := f.Fetch(context.Background(), []string{"karpathy"})
	require.NoError(t, err)

	require.Len(t, res.Tweets, 1)
	tw := res.Tweets[0]
	assert.True(t, tw.IsThread)
	assert.Equal(t, KindThread, tw.Kind)
	assert.Equal(t, 3, tw.ThreadPartCount)
	assert.Equal(t, "100", tw.ID, "thread carries the first part's ID")
	assert.Equal(t, "[1/3] A\n\n[2/3] B\n\n[3/3] C", tw.Text)
	assert.Equal(t, 50, tw.Engagement.Likes)
}

func TestRetweetExpansion(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	rt := rawTweet("200", "u1", "RT @ylecun: truncated…", at, 3)
	rt.ConversationID = ""
	rt.ReferencedTweets = []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{{Type: "retweeted", ID: "999"}}

	original := rawTweet("999", "u9", "The full original text of the post.", at.Add(-time.Hour), 0)

	api := &fakeAPI{
		users: []User{{ID: "u1", Handle: "a"}},
		timelines: map[string]*TimelinePage{
			"u1": {
				Tweets:     []RawTweet{rt},
				Referenced: map[string]RawTweet{"999": original},
				Users:      map[string]User{"u9": {ID: "u9", Handle: "ylecun"}},
			},
		},
	}

	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})
	res, err := f.Fetch(context.Background(), []string{"a"})
	require.NoError(t, err)

	require.Len(t, res.Tweets, 1)
	assert.Equal(t, KindRetweet, res.Tweets[0].Kind)
	assert.Equal(t, "RT @ylecun: The full original text of the post.", res.Tweets[0].Text)
	assert.Equal(t, "999", res.Tweets[0].ReferencedID)
}

func TestUnknownHandlesSkippedAndDeduped(t *testing.T) {
	api := &fakeAPI{users: []User{{ID: "u1", Handle: "Known"}}}
	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})

	res, err := f.Fetch(context.Background(), []string{"known", "KNOWN", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, res.SkippedHandles)
	assert.Empty(t, res.AccountErrors)
}

func TestAccountFailureDoesNotAbortBatch(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	ok := rawTweet("300", "u2", "hello", at, 1)
	ok.ConversationID = ""

	api := &fakeAPI{
		users: []User{{ID: "u1", Handle: "broken"}, {ID: "u2", Handle: "fine"}},
		timelines: map[string]*TimelinePage{
			"u2": {Tweets: []RawTweet{ok}},
		},
		timelineErrs: map[string]error{
			"u1": fmt.Errorf("%w: status 503", ErrUpstream),
		},
	}

	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})
	res, err := f.Fetch(context.Background(), []string{"broken", "fine"})
	require.NoError(t, err)

	require.Len(t, res.Tweets, 1)
	assert.Equal(t, "300", res.Tweets[0].ID)
	assert.Contains(t, res.AccountErrors, "broken")
}

func TestUnauthorizedIsFatal(t *testing.T) {
	api := &fakeAPI{lookupErr: fmt.Errorf("%w: status 401", ErrUnauthorized)}
	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})

	_, err := f.Fetch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnauthorizedTimelineFailsWholeBatch(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	ok := rawTweet("300", "u2", "hello", at, 1)
	ok.ConversationID = ""

	// Unlike a 503, a rejected token is not a per-account problem: the
	// same credentials back every call.
	api := &fakeAPI{
		users: []User{{ID: "u1", Handle: "first"}, {ID: "u2", Handle: "second"}},
		timelines: map[string]*TimelinePage{
			"u2": {Tweets: []RawTweet{ok}},
		},
		timelineErrs: map[string]error{
			"u1": fmt.Errorf("%w: status 401", ErrUnauthorized),
		},
	}

	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})
	res, err := f.Fetch(context.Background(), []string{"first", "second"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, res)
}

func TestSortByRankThenRecency(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	low := rawTweet("1", "u1", "low", at, 1)
	high := rawTweet("2", "u1", "high", at, 100)
	tieOld := rawTweet("3", "u1", "tie old", at.Add(-time.Hour), 10)
	tieNew := rawTweet("4", "u1", "tie new", at, 10)
	for _, r := range []*RawTweet{&low, &high, &tieOld, &tieNew} {
		r.ConversationID = ""
	}

	api := &fakeAPI{
		users: []User{{ID: "u1", Handle: "a"}},
		timelines: map[string]*TimelinePage{
			"u1": {Tweets: []RawTweet{low, high, tieOld, tieNew}},
		},
	}

	f := New(api, Options{MaxTweetsPerAccount: 10, LookbackDays: 7})
	res, err := f.Fetch(context.Background(), []string{"a"})
	require.NoError(t, err)

	ids := []string{res.Tweets[0].ID, res.Tweets[1].ID, res.Tweets[2].ID, res.Tweets[3].ID}
	assert.Equal(t, []string{"2", "4", "3", "1"}, ids)
}

func TestEmptyHandleListIsError(t *testing.T) {
	f := New(&fakeAPI{}, Options{})
	_, err := f.Fetch(context.Background(), nil)
	assert.Error(t, err)
}

func TestTweetURL(t *testing.T) {
	tw := &Tweet{ID: "123", AuthorHandle: "karpathy"}
	assert.Equal(t, "https://twitter.com/karpathy/status/123", tw.URL())
}

func TestLookbackClamped(t *testing.T) {
	f := New(&fakeAPI{}, Options{LookbackDays: 30})
	assert.Equal(t, 14, f.opts.LookbackDays)
	f = New(&fakeAPI{}, Options{LookbackDays: -1})
	assert.Equal(t, 1, f.opts.LookbackDays)
}
