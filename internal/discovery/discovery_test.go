package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/resilience"
	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

type recordingSink struct {
	mu       sync.Mutex
	ingested []string
	fail     map[string]error
}

func (r *recordingSink) Ingest(ctx context.Context, videoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[videoID]; ok {
		return false, err
	}
	for _, id := range r.ingested {
		if id == videoID {
			return false, nil
		}
	}
	r.ingested = append(r.ingested, videoID)
	return true, nil
}

type feedYouTube struct {
	feeds map[string][]youtube.FeedEntry
	errs  map[string]error
}

func (f *feedYouTube) ChannelFeed(ctx context.Context, channelID string) ([]youtube.FeedEntry, error) {
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	return f.feeds[channelID], nil
}

func (f *feedYouTube) VideoStats(ctx context.Context, id string) (*youtube.VideoStats, error) {
	return nil, nil
}
func (f *feedYouTube) VideoDetails(ctx context.Context, id string) (*youtube.VideoDetails, error) {
	return nil, nil
}
func (f *feedYouTube) ChannelInfo(ctx context.Context, id string) (*youtube.ChannelInfo, error) {
	return nil, nil
}
func (f *feedYouTube) ResolveChannel(ctx context.Context, ref string) (string, error) {
	return ref, nil
}
func (f *feedYouTube) IsShort(ctx context.Context, d *youtube.VideoDetails) bool { return false }

func newDiscoveryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestPollerDiscoversActiveChannels(t *testing.T) {
	s := newDiscoveryStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC1", Name: "a", IsActive: true}))
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC2", Name: "b", IsActive: true}))
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC3", Name: "c", IsActive: false}))

	now := time.Now().UTC()
	yt := &feedYouTube{
		feeds: map[string][]youtube.FeedEntry{
			"UC1": {{VideoID: "v1", ChannelID: "UC1", PublishedAt: now}},
			"UC2": {{VideoID: "v2", ChannelID: "UC2", PublishedAt: now}},
			"UC3": {{VideoID: "v3", ChannelID: "UC3", PublishedAt: now}},
		},
	}
	sink := &recordingSink{}
	p := NewPoller(s, yt, sink, 2, zap.NewNop())

	n, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"v1", "v2"}, sink.ingested)

	// Inactive channels are never polled.
	assert.NotContains(t, sink.ingested, "v3")

	ch, err := s.GetChannel(ctx, "UC1")
	require.NoError(t, err)
	assert.NotNil(t, ch.LastCheckedAt)
}

func TestPollerSurvivesBrokenFeed(t *testing.T) {
	s := newDiscoveryStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC1", Name: "a", IsActive: true}))
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC2", Name: "b", IsActive: true}))

	yt := &feedYouTube{
		feeds: map[string][]youtube.FeedEntry{
			"UC2": {{VideoID: "v2", ChannelID: "UC2", PublishedAt: time.Now().UTC()}},
		},
		errs: map[string]error{
			"UC1": resilience.NewTransientError(assert.AnError, 503),
		},
	}
	sink := &recordingSink{}
	p := NewPoller(s, yt, sink, 2, zap.NewNop())

	n, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"v2"}, sink.ingested)
}

func TestWebSubVerification(t *testing.T) {
	s := newDiscoveryStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC1", Name: "a", IsActive: true}))

	h := NewWebSubHandler(s, &recordingSink{}, zap.NewNop())

	verifyURL := func(challenge, channelID string) string {
		q := url.Values{
			"hub.mode":      {"subscribe"},
			"hub.challenge": {challenge},
			"hub.topic":     {"https://www.youtube.com/xml/feeds/videos.xml?channel_id=" + channelID},
		}
		return "/websub?" + q.Encode()
	}

	req := httptest.NewRequest(http.MethodGet, verifyURL("ch-123", "UC1"), nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ch-123", rec.Body.String())

	// Untracked channel: challenge refused.
	req = httptest.NewRequest(http.MethodGet, verifyURL("ch-456", "UCother"), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing challenge.
	req = httptest.NewRequest(http.MethodGet, "/websub?hub.mode=subscribe", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSubNotification(t *testing.T) {
	s := newDiscoveryStore(t)
	sink := &recordingSink{}
	h := NewWebSubHandler(s, sink, zap.NewNop())

	const notification = `<?xml version="1.0"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <yt:videoId>pushed-vid</yt:videoId>
    <yt:channelId>UC1</yt:channelId>
    <title>Pushed Upload</title>
    <published>2026-08-22T09:00:00+00:00</published>
  </entry>
</feed>`

	req := httptest.NewRequest(http.MethodPost, "/websub", strings.NewReader(notification))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"pushed-vid"}, sink.ingested)

	// Garbage bodies are acknowledged, not retried forever by the hub.
	req = httptest.NewRequest(http.MethodPost, "/websub", strings.NewReader("not xml"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSubscribeAllPostsToHub(t *testing.T) {
	s := newDiscoveryStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC1", Name: "a", IsActive: true}))
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC2", Name: "b", IsActive: false}))

	var mu sync.Mutex
	var topics []string
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscribe", r.PostForm.Get("hub.mode"))
		assert.Equal(t, "https://example.com/websub", r.PostForm.Get("hub.callback"))
		mu.Lock()
		topics = append(topics, r.PostForm.Get("hub.topic"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(hub.Close)

	sub := NewSubscriber(s, hub.URL, "https://example.com/websub", 3600, zap.NewNop())
	require.NoError(t, sub.SubscribeAll(ctx))

	// Only the active channel is subscribed.
	require.Len(t, topics, 1)
	assert.Contains(t, topics[0], "channel_id=UC1")
}
