package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/store"
)

// topicURLFormat is the hub topic for a channel's upload feed.
const topicURLFormat = "https://www.youtube.com/xml/feeds/videos.xml?channel_id="

// Subscriber maintains hub subscriptions for tracked channels. Leases
// expire, so SubscribeAll runs on a schedule well inside the lease window.
type Subscriber struct {
	store       store.Store
	client      *http.Client
	hubURL      string
	callbackURL string
	leaseSecs   int
	log         *zap.Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(s store.Store, hubURL, callbackURL string, leaseSecs int, log *zap.Logger) *Subscriber {
	if leaseSecs <= 0 {
		leaseSecs = 10 * 24 * 60 * 60
	}
	return &Subscriber{
		store:       s,
		client:      &http.Client{Timeout: 15 * time.Second},
		hubURL:      hubURL,
		callbackURL: callbackURL,
		leaseSecs:   leaseSecs,
		log:         log.Named("websub"),
	}
}

// SubscribeAll requests (or renews) a hub subscription for every active
// channel. Per-channel failures are logged; the poller covers any channel
// whose subscription lapses.
func (s *Subscriber) SubscribeAll(ctx context.Context) error {
	channels, err := s.store.ListChannels(ctx, true)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if err := s.subscribe(ctx, ch.ID); err != nil {
			s.log.Warn("subscription failed",
				zap.String("channel_id", ch.ID),
				zap.Error(err),
			)
		}
	}
	s.log.Info("subscriptions refreshed", zap.Int("channels", len(channels)))
	return nil
}

func (s *Subscriber) subscribe(ctx context.Context, channelID string) error {
	form := url.Values{
		"hub.mode":          {"subscribe"},
		"hub.topic":         {topicURLFormat + channelID},
		"hub.callback":      {s.callbackURL},
		"hub.lease_seconds": {strconv.Itoa(s.leaseSecs)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hubURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "websub: build subscribe request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "websub: subscribe %s", channelID)
	}
	resp.Body.Close()

	// The hub answers 202 and verifies asynchronously via the callback.
	if resp.StatusCode >= 300 {
		return eris.Errorf("websub: hub returned %d for %s", resp.StatusCode, channelID)
	}
	return nil
}
