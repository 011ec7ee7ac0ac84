package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/action"
	"github.com/dayuer/tubebot/internal/bus"
	"github.com/dayuer/tubebot/internal/dispatch"
	"github.com/dayuer/tubebot/internal/logging"
)

const defaultPollTimeout = 30

// TelegramOptions configures a TelegramChannel.
type TelegramOptions struct {
	Token string
	// Endpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	Endpoint    string
	PollTimeout int
	Debug       bool
	AllowFrom   []string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// TelegramChannel implements the Telegram bot channel using long polling.
// It also serves as the dispatcher's reply sink.
type TelegramChannel struct {
	BaseChannel
	opts   TelegramOptions
	logger *zap.Logger

	mu       sync.Mutex
	api      *tgbotapi.BotAPI
	cancelFn context.CancelFunc
}

var _ dispatch.Replier = (*TelegramChannel)(nil)

// NewTelegramChannel creates a TelegramChannel. No request is made until
// Connect or Start.
func NewTelegramChannel(opts TelegramOptions, msgBus *bus.MessageBus) *TelegramChannel {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Duration(opts.PollTimeout+30) * time.Second}
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			ChannelName: "telegram",
			Bus:         msgBus,
			AllowFrom:   opts.AllowFrom,
		},
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Connect authorizes the bot token. It is safe to call more than once.
func (t *TelegramChannel) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api != nil {
		return nil
	}
	if t.opts.Token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}

	_ = tgbotapi.SetLogger(zap.NewStdLog(t.logger.Named("tgbotapi")))
	api, err := tgbotapi.NewBotAPIWithClient(t.opts.Token, t.opts.Endpoint, t.opts.HTTPClient)
	if err != nil {
		return fmt.Errorf("telegram authorize: %w", err)
	}
	api.Debug = t.opts.Debug
	t.api = api
	t.logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return nil
}

// Username returns the bot's username once connected.
func (t *TelegramChannel) Username() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api == nil {
		return ""
	}
	return t.api.Self.UserName
}

// Start begins long polling for Telegram updates.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.Connect(); err != nil {
		return err
	}

	t.mu.Lock()
	ctx, t.cancelFn = context.WithCancel(ctx)
	api := t.api
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.opts.PollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := api.GetUpdatesChan(u)

	t.setRunning(true)
	defer t.setRunning(false)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			t.processUpdate(ctx, upd)
		}
	}
}

// Stop stops the Telegram bot.
func (t *TelegramChannel) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelFn != nil {
		t.cancelFn()
	}
	return nil
}

func (t *TelegramChannel) processUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic processing update", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()

	ev, sender, ok := EventFromUpdate(upd)
	if !ok {
		return
	}
	if !t.HandleEvent(ctx, sender, ev) {
		t.logger.Debug("update dropped", zap.Int64("chat_id", ev.ChatID), zap.String("sender", sender))
	}
}

// EventFromUpdate converts a Telegram update into an inbound event and the
// "id|username" sender key. ok is false for updates the bot ignores.
func EventFromUpdate(upd tgbotapi.Update) (ev bus.Event, sender string, ok bool) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		ev = bus.Event{
			Kind:       bus.KindCallback,
			CallbackID: cq.ID,
			Data:       cq.Data,
			Timestamp:  time.Now(),
		}
		if cq.From != nil {
			ev.UserID = cq.From.ID
			ev.Username = cq.From.UserName
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		} else {
			ev.ChatID = ev.UserID
		}
	case upd.Message != nil:
		msg := upd.Message
		if msg.Chat == nil || msg.Text == "" {
			return bus.Event{}, "", false
		}
		ev = bus.Event{
			Kind:      bus.KindText,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			Text:      msg.Text,
			Timestamp: msg.Time(),
		}
		if msg.From != nil {
			ev.UserID = msg.From.ID
			ev.Username = msg.From.UserName
		}
		if msg.IsCommand() {
			ev.Kind = bus.KindCommand
			ev.Command = strings.ToLower(msg.Command())
			ev.Args = strings.TrimSpace(msg.CommandArguments())
		}
	default:
		return bus.Event{}, "", false
	}

	sender = strconv.FormatInt(ev.UserID, 10)
	if ev.Username != "" {
		sender += "|" + ev.Username
	}
	return ev, sender, true
}

func (t *TelegramChannel) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api == nil {
		return nil, errors.New("telegram channel not connected")
	}
	return t.api, nil
}

// SendText sends a plain text message.
func (t *TelegramChannel) SendText(ctx context.Context, chatID int64, text string) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendCard sends a result card as a photo with caption when a thumbnail is
// present, otherwise as a text message. HTML rendering falls back to plain
// text if Telegram rejects the markup.
func (t *TelegramChannel) SendCard(ctx context.Context, chatID int64, card dispatch.UIDescriptor) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	markup := Keyboard(card.Actions)
	html := MarkdownToTelegramHTML(card.Text())
	plain := card.Title
	if card.Description != "" {
		plain += "\n\n" + card.Description
	}

	build := func(text, mode string) tgbotapi.Chattable {
		if card.ThumbnailPath != "" {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(card.ThumbnailPath))
			photo.Caption = text
			photo.ParseMode = mode
			photo.ReplyMarkup = markup
			return photo
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = mode
		msg.ReplyMarkup = markup
		return msg
	}

	if _, err := api.Send(build(html, tgbotapi.ModeHTML)); err != nil {
		t.logger.Debug("html card rejected, sending plain", zap.Int64("chat_id", chatID), zap.Error(err))
		_, err = api.Send(build(plain, ""))
		return err
	}
	return nil
}

// SendVideo uploads a local video file.
func (t *TelegramChannel) SendVideo(ctx context.Context, chatID int64, path string) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.SupportsStreaming = true
	_, err = api.Send(video)
	return err
}

// AnswerCallback acknowledges a button press, optionally with a toast text.
func (t *TelegramChannel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// Keyboard renders button rows as an inline keyboard. OpenExternal actions
// become URL buttons; buttons whose token cannot be encoded are skipped.
func Keyboard(rows [][]dispatch.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.Action.Kind == action.KindOpenExternal {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.Action.URL))
				continue
			}
			token, err := action.Encode(b.Action)
			if err != nil {
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, token))
		}
		if len(buttons) > 0 {
			out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

var (
	mdCodeBlock  = regexp.MustCompile("(?s)```\\w*\\n?(.*?)```")
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdQuote      = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	mdStrike     = regexp.MustCompile(`~~(.+?)~~`)
	mdBullet     = regexp.MustCompile(`(?m)^[-*]\s+`)

	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// MarkdownToTelegramHTML converts the markdown subset used in replies to
// Telegram-safe HTML. Code spans are escaped but otherwise left untouched.
func MarkdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	var stash []string
	protect := func(re *regexp.Regexp, open, end string) {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			inner := re.FindStringSubmatch(m)[1]
			stash = append(stash, open+htmlEscaper.Replace(inner)+end)
			return fmt.Sprintf("\x00%d\x00", len(stash)-1)
		})
	}
	protect(mdCodeBlock, "<pre><code>", "</code></pre>")
	protect(mdInlineCode, "<code>", "</code>")

	text = mdHeading.ReplaceAllString(text, "$1")
	text = mdQuote.ReplaceAllString(text, "$1")
	text = htmlEscaper.Replace(text)
	text = mdLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = mdBold.ReplaceAllString(text, "<b>$1$2</b>")
	text = mdStrike.ReplaceAllString(text, "<s>$1</s>")
	text = mdBullet.ReplaceAllString(text, "• ")

	for i, s := range stash {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), s, 1)
	}
	return text
}
