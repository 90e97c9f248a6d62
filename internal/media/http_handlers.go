package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/suman7063/ifindLife-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	headerSignature = "X-Media-Signature"
	headerTimestamp = "X-Media-Timestamp"

	maxWebhookBody = 64 << 10
)

// WebhookHandler verifies and forwards media provider callbacks.
//
// Signature: hex(HMAC-SHA256(secret, "<timestamp>.<body>")), timestamp in
// unix seconds, accepted within Tolerance of Now.
//
// No business logic here.
type WebhookHandler struct {
	Transport *WebhookTransport
	Secret    []byte
	Tolerance time.Duration
	Now       func() time.Time
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Tolerance <= 0 {
		h.Tolerance = 5 * time.Minute
	}
	if h.Transport == nil || len(h.Secret) == 0 {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media webhook not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := VerifySignature(h.Secret, c.GetHeader(headerTimestamp), c.GetHeader(headerSignature), body, h.Now(), h.Tolerance); err != nil {
		log.Warn("media webhook signature rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = h.Now().UTC()
	}

	switch err := h.Transport.Deliver(c.Request.Context(), ev); {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
	case errors.Is(err, ErrUnknownChannel), errors.Is(err, ErrChannelClosed):
		// The session is already gone; acknowledge so the provider stops retrying.
		log.Info("media event for unknown channel", "channel", ev.Channel, "event", ev.Type)
		c.Status(http.StatusAccepted)
	default:
		log.Error("media event delivery failed", "channel", ev.Channel, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
	}
}

var (
	ErrMissingSignature = errors.New("media: missing signature")
	ErrStaleSignature   = errors.New("media: signature timestamp out of range")
	ErrBadSignature     = errors.New("media: signature mismatch")
)

// Sign computes the signature header value for body at ts.
func Sign(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret []byte, ts, sig string, body []byte, now time.Time, tolerance time.Duration) error {
	if ts == "" || sig == "" {
		return ErrMissingSignature
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingSignature
	}
	if d := now.Sub(time.Unix(sec, 0)); d > tolerance || d < -tolerance {
		return ErrStaleSignature
	}
	want, err := hex.DecodeString(Sign(secret, ts, body))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return ErrBadSignature
	}
	return nil
}
