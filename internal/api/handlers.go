package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/httputil"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/subscriber"
)

// Handlers serves the subscription endpoints.
type Handlers struct {
	subscribers *subscriber.Controller
}

// NewHandlers creates the handler set.
func NewHandlers(subs *subscriber.Controller) *Handlers {
	return &Handlers{subscribers: subs}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type subscribeResponse struct {
	Success      bool   `json:"success"`
	SubscriberID string `json:"subscriber_id,omitempty"`
	Message      string `json:"message,omitempty"`
}

// HandleSubscribe starts (or restarts) the double-opt-in flow.
//
//	POST /subscribe {"email": "..."}
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.JSON(w, http.StatusBadRequest, subscribeResponse{Success: false, Message: "invalid request body"})
		return
	}

	res, err := h.subscribers.Subscribe(r.Context(), req.Email)
	switch {
	case errors.Is(err, subscriber.ErrInvalidEmail):
		httputil.JSON(w, http.StatusBadRequest, subscribeResponse{Success: false, Message: "invalid email address"})
	case err != nil:
		logger.Error("api: subscribe failed", "error", err)
		httputil.JSON(w, http.StatusInternalServerError, subscribeResponse{Success: false, Message: "subscription failed, please try again"})
	case res.Outcome == subscriber.OutcomeAlreadySubscribed:
		httputil.JSON(w, http.StatusOK, subscribeResponse{Success: true, Message: "already subscribed"})
	default:
		httputil.JSON(w, http.StatusCreated, subscribeResponse{Success: true, SubscriberID: res.SubscriberID})
	}
}

// HandleVerify completes the opt-in from the emailed link.
//
//	GET /verify?token=...
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	_, err := h.subscribers.Verify(r.Context(), token)
	switch {
	case errors.Is(err, subscriber.ErrTokenExpired):
		writePage(w, http.StatusBadRequest, "Link expired",
			"This verification link has expired. Subscribe again to receive a fresh one.")
	case errors.Is(err, subscriber.ErrInvalidToken):
		writePage(w, http.StatusBadRequest, "Invalid link",
			"This verification link is not valid. It may have been used already.")
	case err != nil:
		logger.Error("api: verify failed", "error", err)
		writePage(w, http.StatusInternalServerError, "Something went wrong",
			"We could not verify your subscription. Please try again later.")
	default:
		writePage(w, http.StatusOK, "Subscription confirmed",
			"You are subscribed to the GenAI Weekly Digest. The next issue will arrive in your inbox.")
	}
}

// HandleUnsubscribe deactivates the subscriber behind the link token.
//
//	GET /unsubscribe?token=...
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	err := h.subscribers.Unsubscribe(r.Context(), token)
	switch {
	case errors.Is(err, subscriber.ErrInvalidToken):
		writePage(w, http.StatusBadRequest, "Invalid link",
			"This unsubscribe link is not valid.")
	case err != nil:
		logger.Error("api: unsubscribe failed", "error", err)
		writePage(w, http.StatusInternalServerError, "Something went wrong",
			"We could not process your request. Please try again later.")
	default:
		writePage(w, http.StatusOK, "Unsubscribed",
			"You will no longer receive the GenAI Weekly Digest.")
	}
}

// HandleHealth is the load-balancer probe.
//
//	GET /healthz
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
