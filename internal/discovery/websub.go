package discovery

import (
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

// WebSubHandler receives push notifications from the YouTube PubSubHubbub
// hub. Push discovery catches uploads within seconds instead of waiting for
// the next poll cycle; the poller remains as the safety net.
type WebSubHandler struct {
	store store.Store
	sink  Sink
	log   *zap.Logger
}

// NewWebSubHandler creates a WebSubHandler.
func NewWebSubHandler(s store.Store, sink Sink, log *zap.Logger) *WebSubHandler {
	return &WebSubHandler{store: s, sink: sink, log: log.Named("websub")}
}

// ServeHTTP handles both hub verification (GET) and notifications (POST).
func (h *WebSubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.notify(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verify answers the hub's subscription challenge. The challenge is echoed
// only for topics whose channel we actually track.
func (h *WebSubHandler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	challenge := q.Get("hub.challenge")
	topic := q.Get("hub.topic")

	if challenge == "" || (mode != "subscribe" && mode != "unsubscribe") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if mode == "subscribe" {
		channelID := channelIDFromTopic(topic)
		ch, err := h.store.GetChannel(r.Context(), channelID)
		if err != nil || ch == nil || !ch.IsActive {
			h.log.Warn("rejecting subscription for untracked channel",
				zap.String("topic", topic),
			)
			w.WriteHeader(http.StatusNotFound)
			return
		}
	}

	h.log.Info("hub verification", zap.String("mode", mode), zap.String("topic", topic))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// notify ingests the uploads announced in an Atom notification. Always
// responds 2xx; a non-2xx would make the hub retry and eventually drop the
// subscription.
func (h *WebSubHandler) notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	entries, err := youtube.ParseFeed(body)
	if err != nil {
		h.log.Warn("unparseable notification", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, e := range entries {
		if _, err := h.sink.Ingest(r.Context(), e.VideoID); err != nil {
			h.log.Warn("push ingest failed",
				zap.String("video_id", e.VideoID),
				zap.Error(err),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// channelIDFromTopic extracts the channel_id parameter from a hub topic URL
// like https://www.youtube.com/xml/feeds/videos.xml?channel_id=UC....
func channelIDFromTopic(topic string) string {
	u, err := url.Parse(topic)
	if err != nil {
		return ""
	}
	return u.Query().Get("channel_id")
}
