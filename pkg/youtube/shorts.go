package youtube

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxShortSeconds is the longest a Short can run (3 minutes, with a small
// allowance for rounding in reported durations).
const maxShortSeconds = 183

// IsShort classifies a video as a Short. Anything longer than the Shorts
// duration cap is a regular video. Under the cap, the #shorts hashtag is
// decisive; otherwise a probe of the /shorts/ URL settles it: YouTube serves
// the page directly (200) for Shorts and redirects (303) for regular videos.
func (c *HTTPClient) IsShort(ctx context.Context, d *VideoDetails) bool {
	if d.DurationSeconds <= 0 || d.DurationSeconds > maxShortSeconds {
		return false
	}
	if hasShortsTag(d.Title) || hasShortsTag(d.Description) {
		return true
	}

	probeURL := c.opts.ProbeURL + "/shorts/" + d.VideoID
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		// Probe failures default to regular video; duration alone is not
		// enough evidence.
		c.log.Debug("shorts probe failed", zap.String("video_id", d.VideoID), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func hasShortsTag(s string) bool {
	return strings.Contains(strings.ToLower(s), "#shorts") ||
		strings.Contains(strings.ToLower(s), "#short ")
}
