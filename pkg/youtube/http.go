package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/creatrr/trendwatch/internal/resilience"
)

const (
	defaultAPIBaseURL  = "https://www.googleapis.com/youtube/v3"
	defaultFeedBaseURL = "https://www.youtube.com/feeds/videos.xml"
	defaultProbeURL    = "https://www.youtube.com"
)

// quotaRetryAfter is the backoff hint attached to quota-exhaustion errors.
// The daily quota resets at midnight Pacific; an hour keeps bounded retries
// from burning all attempts inside the same exhausted period.
const quotaRetryAfter = time.Hour

// Options configures the HTTP client.
type Options struct {
	APIKey      string
	Timeout     time.Duration
	RateLimit   rate.Limit        // API requests per second
	OnQuota     func(units int64) // called with the quota cost of each API request
	APIBaseURL  string            // override for tests
	FeedBaseURL string            // override for tests
	ProbeURL    string            // override for tests
}

// HTTPClient implements Client against the live YouTube Data API.
type HTTPClient struct {
	client      *http.Client
	probeClient *http.Client
	limiter     *rate.Limiter
	opts        Options
	log         *zap.Logger
}

// NewHTTPClient creates a YouTube client with rate limiting.
func NewHTTPClient(opts Options, log *zap.Logger) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 5
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = defaultAPIBaseURL
	}
	if opts.FeedBaseURL == "" {
		opts.FeedBaseURL = defaultFeedBaseURL
	}
	if opts.ProbeURL == "" {
		opts.ProbeURL = defaultProbeURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		client: &http.Client{Timeout: opts.Timeout},
		probeClient: &http.Client{
			Timeout: opts.Timeout,
			// The shorts probe relies on the redirect status itself.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(opts.RateLimit, int(opts.RateLimit)+1),
		opts:    opts,
		log:     log,
	}
}

// apiError is the YouTube API error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// videoListResponse mirrors the videos.list API shape.
type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			ChannelID   string    `json:"channelId"`
			Title       string    `json:"title"`
			Description string    `json:"description"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
	} `json:"items"`
}

// quotaCost returns the Data API quota units an endpoint charges. Searches
// are two orders of magnitude more expensive than list calls.
func quotaCost(endpoint string) int64 {
	if endpoint == "/search" {
		return 100
	}
	return 1
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "youtube: rate limiter")
	}
	if c.opts.OnQuota != nil {
		c.opts.OnQuota(quotaCost(endpoint))
	}

	params.Set("key", c.opts.APIKey)
	reqURL := c.opts.APIBaseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "youtube: build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "youtube: GET %s", endpoint), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "youtube: read %s", endpoint), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyError(endpoint, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "youtube: decode %s", endpoint)
	}
	return nil
}

func (c *HTTPClient) classifyError(endpoint string, status int, body []byte) error {
	var envelope apiError
	_ = json.Unmarshal(body, &envelope)
	reason := ""
	if len(envelope.Error.Errors) > 0 {
		reason = envelope.Error.Errors[0].Reason
	}

	err := eris.Errorf("youtube: %s returned %d (%s)", endpoint, status, reason)
	switch {
	case reason == "quotaExceeded" || reason == "dailyLimitExceeded":
		c.log.Warn("youtube api quota exhausted", zap.String("endpoint", endpoint))
		return resilience.NewRateLimitError(err, quotaRetryAfter)
	case status == http.StatusTooManyRequests:
		return resilience.NewRateLimitError(err, 0)
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(err, status)
	default:
		return err
	}
}

func (c *HTTPClient) VideoStats(ctx context.Context, videoID string) (*VideoStats, error) {
	params := url.Values{"part": {"statistics"}, "id": {videoID}}
	var resp videoListResponse
	if err := c.get(ctx, "/videos", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, resilience.NewNotFoundError("video " + videoID)
	}
	item := resp.Items[0]
	return &VideoStats{
		VideoID:  item.ID,
		Views:    parseCount(item.Statistics.ViewCount),
		Likes:    parseCount(item.Statistics.LikeCount),
		Comments: parseCount(item.Statistics.CommentCount),
	}, nil
}

func (c *HTTPClient) VideoDetails(ctx context.Context, videoID string) (*VideoDetails, error) {
	params := url.Values{"part": {"snippet,contentDetails,statistics"}, "id": {videoID}}
	var resp videoListResponse
	if err := c.get(ctx, "/videos", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, resilience.NewNotFoundError("video " + videoID)
	}
	item := resp.Items[0]
	seconds, err := ParseISODuration(item.ContentDetails.Duration)
	if err != nil {
		c.log.Warn("youtube: unparseable duration",
			zap.String("video_id", videoID),
			zap.String("duration", item.ContentDetails.Duration),
		)
	}
	return &VideoDetails{
		VideoID:         item.ID,
		ChannelID:       item.Snippet.ChannelID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		PublishedAt:     item.Snippet.PublishedAt,
		DurationSeconds: seconds,
		Stats: VideoStats{
			VideoID:  item.ID,
			Views:    parseCount(item.Statistics.ViewCount),
			Likes:    parseCount(item.Statistics.LikeCount),
			Comments: parseCount(item.Statistics.CommentCount),
		},
	}, nil
}

func (c *HTTPClient) ChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error) {
	params := url.Values{"part": {"snippet,statistics"}, "id": {channelID}}
	var resp channelListResponse
	if err := c.get(ctx, "/channels", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, resilience.NewNotFoundError("channel " + channelID)
	}
	item := resp.Items[0]
	return &ChannelInfo{
		ID:              item.ID,
		Title:           item.Snippet.Title,
		SubscriberCount: parseCount(item.Statistics.SubscriberCount),
		VideoCount:      parseCount(item.Statistics.VideoCount),
	}, nil
}

func (c *HTTPClient) ResolveChannel(ctx context.Context, ref string) (string, error) {
	parsed := ParseChannelRef(ref)
	switch parsed.Kind {
	case RefChannelID:
		return parsed.Value, nil
	case RefHandle:
		params := url.Values{"part": {"id"}, "forHandle": {parsed.Value}}
		var resp channelListResponse
		if err := c.get(ctx, "/channels", params, &resp); err != nil {
			return "", err
		}
		if len(resp.Items) == 0 {
			return "", resilience.NewNotFoundError("channel " + ref)
		}
		return resp.Items[0].ID, nil
	default:
		// Fall back to a channel search; costs 100 quota units.
		params := url.Values{
			"part":       {"snippet"},
			"type":       {"channel"},
			"q":          {parsed.Value},
			"maxResults": {"1"},
		}
		var resp searchListResponse
		if err := c.get(ctx, "/search", params, &resp); err != nil {
			return "", err
		}
		if len(resp.Items) == 0 || resp.Items[0].ID.ChannelID == "" {
			return "", resilience.NewNotFoundError("channel " + ref)
		}
		return resp.Items[0].ID.ChannelID, nil
	}
}

func (c *HTTPClient) ChannelFeed(ctx context.Context, channelID string) ([]FeedEntry, error) {
	feedURL := fmt.Sprintf("%s?channel_id=%s", c.opts.FeedBaseURL, url.QueryEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "youtube: build feed request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "youtube: fetch feed %s", channelID), 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.NewNotFoundError("channel feed " + channelID)
	case resp.StatusCode != http.StatusOK:
		err := eris.Errorf("youtube: feed %s returned %d", channelID, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "youtube: read feed %s", channelID), resp.StatusCode)
	}
	return ParseFeed(body)
}

func parseCount(s string) int64 {
	// Stat fields arrive as decimal strings; absent fields (e.g. hidden
	// like counts) come through as empty.
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
