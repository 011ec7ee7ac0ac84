// Package action defines the intents carried by inline-button callbacks and
// the token format used to transport them.
//
// Token format v1 is a colon-separated string prefixed with the version:
//
//	1:p:<videoID>             Play
//	1:d:<videoID>:<quality>   Download
//	1:s                       Search
//	1:t                       Trending
//	1:o:<url>                 OpenExternal
//
// Decode also accepts the unversioned tokens older buttons carry
// ("play_<id>", "download_<id>_<quality>", "search", "trending").
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTokenLen is Telegram's limit for callback data.
const MaxTokenLen = 64

const version = "1"

// Kind tags the Action variant.
type Kind string

const (
	KindPlay         Kind = "p"
	KindDownload     Kind = "d"
	KindSearch       Kind = "s"
	KindTrending     Kind = "t"
	KindOpenExternal Kind = "o"
)

// String returns a readable name for logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindDownload:
		return "download"
	case KindSearch:
		return "search"
	case KindTrending:
		return "trending"
	case KindOpenExternal:
		return "open_external"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformed is returned for tokens that cannot be decoded.
	ErrMalformed = errors.New("malformed action token")
	// ErrTooLong is returned when an encoded token exceeds MaxTokenLen.
	ErrTooLong = errors.New("action token too long")
)

// Action is a decoded button intent. Only the fields relevant to Kind are set.
type Action struct {
	Kind    Kind
	VideoID string
	Quality string
	URL     string
}

func Play(videoID string) Action { return Action{Kind: KindPlay, VideoID: videoID} }

func Download(videoID, quality string) Action {
	return Action{Kind: KindDownload, VideoID: videoID, Quality: quality}
}

func Search() Action   { return Action{Kind: KindSearch} }
func Trending() Action { return Action{Kind: KindTrending} }

func OpenExternal(url string) Action { return Action{Kind: KindOpenExternal, URL: url} }

// Encode serializes a into a v1 token.
func Encode(a Action) (string, error) {
	var token string
	switch a.Kind {
	case KindPlay:
		if err := checkID(a.VideoID); err != nil {
			return "", err
		}
		token = join(string(KindPlay), a.VideoID)
	case KindDownload:
		if err := checkID(a.VideoID); err != nil {
			return "", err
		}
		if _, err := ParseQuality(a.Quality); err != nil {
			return "", err
		}
		token = join(string(KindDownload), a.VideoID, a.Quality)
	case KindSearch, KindTrending:
		token = join(string(a.Kind))
	case KindOpenExternal:
		if a.URL == "" {
			return "", fmt.Errorf("%w: empty url", ErrMalformed)
		}
		token = join(string(KindOpenExternal), a.URL)
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrMalformed, a.Kind)
	}
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLong, len(token))
	}
	return token, nil
}

// Decode parses a token. It never panics; any malformed input yields an
// error wrapping ErrMalformed.
func Decode(token string) (Action, error) {
	if token == "" {
		return Action{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if strings.HasPrefix(token, version+":") {
		return decodeV1(strings.TrimPrefix(token, version+":"))
	}
	return decodeLegacy(token)
}

func decodeV1(body string) (Action, error) {
	kind, rest, _ := strings.Cut(body, ":")
	switch Kind(kind) {
	case KindPlay:
		if err := checkID(rest); err != nil {
			return Action{}, err
		}
		return Play(rest), nil
	case KindDownload:
		id, quality, ok := strings.Cut(rest, ":")
		if !ok {
			return Action{}, fmt.Errorf("%w: download without quality", ErrMalformed)
		}
		if err := checkID(id); err != nil {
			return Action{}, err
		}
		if _, err := ParseQuality(quality); err != nil {
			return Action{}, err
		}
		return Download(id, quality), nil
	case KindSearch:
		if rest != "" {
			return Action{}, fmt.Errorf("%w: unexpected payload", ErrMalformed)
		}
		return Search(), nil
	case KindTrending:
		if rest != "" {
			return Action{}, fmt.Errorf("%w: unexpected payload", ErrMalformed)
		}
		return Trending(), nil
	case KindOpenExternal:
		if rest == "" {
			return Action{}, fmt.Errorf("%w: empty url", ErrMalformed)
		}
		return OpenExternal(rest), nil
	default:
		return Action{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
}

func decodeLegacy(token string) (Action, error) {
	switch {
	case token == "search":
		return Search(), nil
	case token == "trending":
		return Trending(), nil
	case strings.HasPrefix(token, "play_"):
		id := strings.TrimPrefix(token, "play_")
		if err := checkID(id); err != nil {
			return Action{}, err
		}
		return Play(id), nil
	case strings.HasPrefix(token, "download_"):
		// Video ids may contain '_', the quality never does.
		rest := strings.TrimPrefix(token, "download_")
		i := strings.LastIndex(rest, "_")
		if i <= 0 {
			return Action{}, fmt.Errorf("%w: download without quality", ErrMalformed)
		}
		id, quality := rest[:i], rest[i+1:]
		if err := checkID(id); err != nil {
			return Action{}, err
		}
		if _, err := ParseQuality(quality); err != nil {
			return Action{}, err
		}
		return Download(id, quality), nil
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
}

// ParseQuality converts a label such as "720p" (or "720") to a height cap.
func ParseQuality(label string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(label), "p"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: quality %q", ErrMalformed, label)
	}
	return n, nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, ": ") {
		return fmt.Errorf("%w: video id %q", ErrMalformed, id)
	}
	return nil
}

func join(parts ...string) string {
	return version + ":" + strings.Join(parts, ":")
}
