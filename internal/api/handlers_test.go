package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/email"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/subscriber"
)

type apiFixture struct {
	store  *store.MemSubscriberStore
	sender *email.FakeSender
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		store:  store.NewMemSubscriberStore(),
		sender: email.NewFakeSender(),
	}
	ctrl := subscriber.New(f.store, f.sender, "digest@example.com", "https://digest.example.com")
	router := NewRouter(NewHandlers(ctrl), []string{"https://digest.example.com"})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) subscribe(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/subscribe", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) tokenFor(t *testing.T, addr string) string {
	t.Helper()
	sub, err := f.store.GetByEmail(context.Background(), addr)
	require.NoError(t, err)
	return sub.VerificationToken
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubscribeCreatesPending(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.subscribe(t, `{"email": "jane@example.com"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["subscriber_id"])
	assert.Len(t, f.sender.Sent, 1)
}

func TestSubscribeInvalidEmail(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.subscribe(t, `{"email": "not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid email address", body["message"])
}

func TestSubscribeMalformedBody(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.subscribe(t, `{"email": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscribeActiveIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)
	f.subscribe(t, `{"email": "jane@example.com"}`)

	verifyResp, err := http.Get(f.server.URL + "/verify?token=" + f.tokenFor(t, "jane@example.com"))
	require.NoError(t, err)
	verifyResp.Body.Close()
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	resp := f.subscribe(t, `{"email": "jane@example.com"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "already subscribed", body["message"])
}

func TestVerifyFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.subscribe(t, `{"email": "jane@example.com"}`)
	token := f.tokenFor(t, "jane@example.com")

	resp, err := http.Get(f.server.URL + "/verify?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	sub, err := f.store.GetByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, sub.Status)

	// Replaying the used token yields the error page.
	resp2, err := http.Get(f.server.URL + "/verify?token=" + token)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestVerifyInvalidToken(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/verify?token=bogus", "/verify"} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "path %s", path)
	}
}

func TestUnsubscribeFlow(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.subscribe(t, `{"email": "jane@example.com"}`)
	subscriberID := decode(t, resp)["subscriber_id"].(string)

	verifyResp, err := http.Get(f.server.URL + "/verify?token=" + f.tokenFor(t, "jane@example.com"))
	require.NoError(t, err)
	verifyResp.Body.Close()

	unsubResp, err := http.Get(f.server.URL + "/unsubscribe?token=" + subscriberID)
	require.NoError(t, err)
	unsubResp.Body.Close()
	assert.Equal(t, http.StatusOK, unsubResp.StatusCode)

	sub, err := f.store.GetByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInactive, sub.Status)

	// Idempotent: a second click still lands on the confirmation page.
	again, err := http.Get(f.server.URL + "/unsubscribe?token=" + subscriberID)
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusOK, again.StatusCode)
}

func TestUnsubscribeInvalidToken(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.server.URL + "/unsubscribe?token=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestCORSHeaders(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/subscribe", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://digest.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://digest.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
