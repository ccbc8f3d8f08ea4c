package youtube

import (
	"net/url"
	"strings"
)

// RefKind classifies how a channel reference names its channel.
type RefKind int

const (
	// RefChannelID is a raw UC... channel ID; no API call needed.
	RefChannelID RefKind = iota
	// RefHandle is an @handle, resolvable via channels.list forHandle.
	RefHandle
	// RefSearch is anything else (custom URL slug or plain name); resolved
	// via a channel search.
	RefSearch
)

// ChannelRef is a parsed channel reference.
type ChannelRef struct {
	Kind  RefKind
	Value string
}

// ParseChannelRef parses the channel reference forms operators paste in:
// raw channel IDs, @handles, and the common youtube.com URL shapes
// (/channel/UC..., /@handle, /c/name, /user/name).
func ParseChannelRef(ref string) ChannelRef {
	ref = strings.TrimSpace(ref)

	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		path := strings.Trim(u.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) > 0 {
			switch parts[0] {
			case "channel":
				if len(parts) > 1 {
					return ChannelRef{Kind: RefChannelID, Value: parts[1]}
				}
			case "c", "user":
				if len(parts) > 1 {
					return ChannelRef{Kind: RefSearch, Value: parts[1]}
				}
			default:
				if strings.HasPrefix(parts[0], "@") {
					return ChannelRef{Kind: RefHandle, Value: parts[0]}
				}
			}
		}
		return ChannelRef{Kind: RefSearch, Value: path}
	}

	switch {
	case strings.HasPrefix(ref, "UC") && len(ref) == 24:
		return ChannelRef{Kind: RefChannelID, Value: ref}
	case strings.HasPrefix(ref, "@"):
		return ChannelRef{Kind: RefHandle, Value: ref}
	default:
		return ChannelRef{Kind: RefSearch, Value: ref}
	}
}
