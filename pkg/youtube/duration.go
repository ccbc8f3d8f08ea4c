package youtube

import (
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
)

// isoDurationRe matches the PT#H#M#S subset the API emits. Videos never
// carry date components.
var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO-8601 duration like "PT1H2M3S" to seconds.
func ParseISODuration(s string) (int64, error) {
	if s == "" || s == "P0D" {
		return 0, nil
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, eris.Errorf("youtube: invalid duration %q", s)
	}
	var seconds int64
	for i, mult := range []int64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "youtube: invalid duration %q", s)
		}
		seconds += n * mult
	}
	return seconds, nil
}
