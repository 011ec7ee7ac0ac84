package dispatch

import (
	"context"

	"github.com/dayuer/tubebot/internal/action"
	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/utils"
)

// Download qualities offered on every result card.
var Qualities = []string{"360p", "720p", "1080p"}

// maxDescriptionRunes keeps title and description within Telegram's
// 1024 character caption limit.
const maxDescriptionRunes = 800

// Button is one inline button.
type Button struct {
	Label  string
	Action action.Action
}

// UIDescriptor is a result card: text, optional thumbnail and button rows.
type UIDescriptor struct {
	Title         string
	Description   string
	ThumbnailPath string
	Actions       [][]Button
}

// Text renders the card body as markdown.
func (u UIDescriptor) Text() string {
	if u.Description == "" {
		return "**" + u.Title + "**"
	}
	return "**" + u.Title + "**\n\n" + u.Description
}

// Replier is the reply sink implemented by the chat transport. Calls return
// once the platform accepted or rejected the message, so files referenced by
// a call may be removed afterwards.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendCard(ctx context.Context, chatID int64, card UIDescriptor) error
	SendVideo(ctx context.Context, chatID int64, path string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// BuildUI derives the result card for a video.
func BuildUI(v catalog.VideoSummary) UIDescriptor {
	downloads := make([]Button, 0, len(Qualities))
	for _, q := range Qualities {
		downloads = append(downloads, Button{Label: "⬇️ " + q, Action: action.Download(v.ID, q)})
	}

	return UIDescriptor{
		Title:       v.Title,
		Description: utils.TruncateString(v.Description, maxDescriptionRunes, "..."),
		Actions: [][]Button{
			{{Label: "▶️ Play", Action: action.Play(v.ID)}},
			downloads,
			{{Label: "🌐 Open on YouTube", Action: action.OpenExternal(v.WatchURL())}},
			{
				{Label: "🔍 Search", Action: action.Search()},
				{Label: "🔥 Trending", Action: action.Trending()},
			},
		},
	}
}
