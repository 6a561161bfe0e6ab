package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type fakeBrowser struct {
	mu       sync.Mutex
	png      []byte
	failures int // fail this many calls before succeeding
	calls    []bool
}

func (f *fakeBrowser) Capture(_ context.Context, _ string, minimal bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, minimal)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("render timeout")
	}
	return f.png, nil
}

func sampleTweet(id string) *fetcher.Tweet {
	return &fetcher.Tweet{
		ID:              id,
		AuthorHandle:    "karpathy",
		AuthorName:      "Andrej",
		Text:            "original text",
		CreatedAt:       time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Kind:            fetcher.KindOriginal,
		ThreadPartCount: 1,
	}
}

func newCapturer(t *testing.T, b Browser, o oracle.VisionOracle) (*Capturer, *store.MemObjectStore, *queue.MemQueue) {
	objects := store.NewMemObjectStore()
	q := queue.NewMemQueue()
	c := New(b, 2, o, objects, q)
	c.sleep = func(time.Duration) {}
	return c, objects, q
}

func TestCaptureHappyPath(t *testing.T) {
	ctx := context.Background()
	browser := &fakeBrowser{png: testPNG(t, 1200, 1600)}
	llm := oracle.NewScripted().Reply("the transcribed text")
	c, objects, q := newCapturer(t, browser, llm)

	res := c.Run(ctx, "r1", []*fetcher.Tweet{sampleTweet("t1")})

	assert.Equal(t, []string{"t1"}, res.Enqueued)
	assert.Empty(t, res.Failed)

	// Screenshot and artifact persisted under deterministic keys.
	_, err := objects.Get(ctx, "runs/r1/screenshots/t1.png")
	require.NoError(t, err)
	body, err := objects.Get(ctx, "runs/r1/artifacts/t1.json")
	require.NoError(t, err)

	artifact, err := UnmarshalArtifact(body)
	require.NoError(t, err)
	assert.Equal(t, "t1", artifact.TweetID)
	assert.Equal(t, "runs/r1/screenshots/t1.png", artifact.ScreenshotKey)
	assert.Equal(t, "the transcribed text", artifact.FullTextOCR)
	assert.Equal(t, "karpathy", artifact.TweetMetadata.Author.Handle)

	msgs, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	key, err := ParseQueueMessage(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/artifacts/t1.json", key)
}

func TestCaptureRetriesThenMinimalFallback(t *testing.T) {
	browser := &fakeBrowser{png: testPNG(t, 1200, 1600), failures: 2}
	llm := oracle.NewScripted().Reply("text")
	c, _, _ := newCapturer(t, browser, llm)

	res := c.Run(context.Background(), "r1", []*fetcher.Tweet{sampleTweet("t1")})

	assert.Equal(t, []string{"t1"}, res.Enqueued)
	require.Len(t, browser.calls, 3)
	assert.False(t, browser.calls[0])
	assert.False(t, browser.calls[1])
	assert.True(t, browser.calls[2], "third attempt uses the minimal configuration")
}

func TestCaptureFailureRecordedNotEnqueued(t *testing.T) {
	browser := &fakeBrowser{failures: 3}
	llm := oracle.NewScripted()
	c, _, q := newCapturer(t, browser, llm)

	res := c.Run(context.Background(), "r1", []*fetcher.Tweet{sampleTweet("t1"), sampleTweet("t2")})

	// t2 also fails (the fake keeps failing after its budget is spent by
	// t1's retries in arbitrary order), so assert only structure here.
	assert.Empty(t, res.Enqueued)
	assert.Len(t, res.Failed, 2)
	depth, _ := q.Depth(context.Background())
	assert.Zero(t, depth)
}

func TestOCRFailureNotEnqueued(t *testing.T) {
	browser := &fakeBrowser{png: testPNG(t, 1200, 1600)}
	llm := oracle.NewScripted().Fail(oracle.Permanent(errors.New("access denied")))
	c, _, q := newCapturer(t, browser, llm)

	res := c.Run(context.Background(), "r1", []*fetcher.Tweet{sampleTweet("t1")})

	assert.Empty(t, res.Enqueued)
	assert.Contains(t, res.Failed["t1"], "ocr")
	depth, _ := q.Depth(context.Background())
	assert.Zero(t, depth)
}

func TestArtifactRoundTrip(t *testing.T) {
	a := NewArtifact(sampleTweet("t1"), time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))
	a.ScreenshotKey = "runs/r1/screenshots/t1.png"
	a.FullTextOCR = "ocr text"

	body, err := a.Marshal()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw, "tweet_id")
	assert.Contains(t, raw, "tweet_metadata")
	assert.Contains(t, raw, "screenshot_key")
	assert.Contains(t, raw, "full_text_ocr")
	assert.Contains(t, raw, "capture_metadata")

	parsed, err := UnmarshalArtifact(body)
	require.NoError(t, err)
	assert.Equal(t, "ocr text", parsed.ClassificationText())

	// Without OCR the fetched text is used.
	parsed.FullTextOCR = ""
	assert.Equal(t, "original text", parsed.ClassificationText())
}

func TestParseQueueMessageRejectsGarbage(t *testing.T) {
	_, err := ParseQueueMessage("not json")
	assert.Error(t, err)
	_, err = ParseQueueMessage("{}")
	assert.Error(t, err)
}

func TestNormalizePNGDownscalesWideImages(t *testing.T) {
	wide := testPNG(t, 2400, 100)
	out, err := normalizePNG(wide)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), maxImageWidth)
}

func TestNormalizePNGRejectsGarbage(t *testing.T) {
	_, err := normalizePNG([]byte("not a png"))
	assert.Error(t, err)
}

func TestPoolReleasesOnPanic(t *testing.T) {
	p := NewPool(1)
	func() {
		defer func() { recover() }()
		_ = p.With(context.Background(), func() error { panic("boom") })
	}()

	// The slot must be back.
	err := p.With(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}
