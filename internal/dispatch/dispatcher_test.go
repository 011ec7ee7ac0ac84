package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/tubebot/internal/action"
	"github.com/dayuer/tubebot/internal/bus"
	"github.com/dayuer/tubebot/internal/catalog"
)

const chat int64 = 42

type reply struct {
	Kind       string // text, card, video, ack
	ChatID     int64
	Text       string
	Card       UIDescriptor
	Path       string
	FileExists bool
}

type recorder struct {
	mu      sync.Mutex
	replies []reply
	fail    error
}

func (r *recorder) add(rep reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, rep)
	return r.fail
}

func (r *recorder) SendText(_ context.Context, chatID int64, text string) error {
	return r.add(reply{Kind: "text", ChatID: chatID, Text: text})
}

func (r *recorder) SendCard(_ context.Context, chatID int64, card UIDescriptor) error {
	exists := false
	if card.ThumbnailPath != "" {
		_, err := os.Stat(card.ThumbnailPath)
		exists = err == nil
	}
	return r.add(reply{Kind: "card", ChatID: chatID, Text: card.Title, Card: card, FileExists: exists})
}

func (r *recorder) SendVideo(_ context.Context, chatID int64, path string) error {
	_, err := os.Stat(path)
	return r.add(reply{Kind: "video", ChatID: chatID, Path: path, FileExists: err == nil})
}

func (r *recorder) AnswerCallback(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply{Kind: "ack", Text: text})
	return nil
}

func (r *recorder) all() []reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reply(nil), r.replies...)
}

func (r *recorder) kinds(kind string) []reply {
	var out []reply
	for _, rep := range r.all() {
		if rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

func (r *recorder) waitText(t *testing.T, text string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		c := 0
		for _, rep := range r.all() {
			if rep.Kind == "text" && rep.Text == text {
				c++
			}
		}
		return c >= n
	}, 2*time.Second, 5*time.Millisecond)
}

type fakeCatalog struct {
	mu       sync.Mutex
	results  []catalog.VideoSummary
	err      error
	panics   bool
	queries  []string
	limits   []int
	trending int
}

func (f *fakeCatalog) Search(_ context.Context, query string, limit int) ([]catalog.VideoSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("catalog exploded")
	}
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	return f.results, f.err
}

func (f *fakeCatalog) Trending(context.Context, string, int) ([]catalog.VideoSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("catalog exploded")
	}
	f.trending++
	return f.results, f.err
}

func (f *fakeCatalog) searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeMedia struct {
	dir       string
	size      int64
	streamURL string
	err       error
}

func (f *fakeMedia) ResolveStreamURL(context.Context, string) (string, error) {
	return f.streamURL, f.err
}

func (f *fakeMedia) Download(_ context.Context, videoID string, maxHeight int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s-%d.mp4", videoID, maxHeight))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return path, file.Truncate(f.size)
}

type fakeThumbs struct {
	dir   string
	err   error
	mu    sync.Mutex
	paths []string
}

func (f *fakeThumbs) Fetch(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	file, err := os.CreateTemp(f.dir, "thumb-*.jpg")
	if err != nil {
		return "", err
	}
	file.Close()
	f.mu.Lock()
	f.paths = append(f.paths, file.Name())
	f.mu.Unlock()
	return file.Name(), nil
}

type harness struct {
	d       *Dispatcher
	rec     *recorder
	catalog *fakeCatalog
	media   *fakeMedia
	dir     string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		rec:     &recorder{},
		catalog: &fakeCatalog{},
		media:   &fakeMedia{dir: dir, streamURL: "https://cdn.example/v.mp4"},
		dir:     dir,
	}
	h.d = New(Deps{Replier: h.rec, Catalog: h.catalog, Media: h.media}, opts)
	t.Cleanup(func() {
		h.d.Sessions().Stop()
		h.d.Wait()
	})
	return h
}

func command(text string) bus.Event {
	return bus.Event{Kind: bus.KindCommand, ChatID: chat, Text: text}
}

func text(s string) bus.Event {
	return bus.Event{Kind: bus.KindText, ChatID: chat, Text: s}
}

func callback(t *testing.T, a action.Action) bus.Event {
	t.Helper()
	token, err := action.Encode(a)
	require.NoError(t, err)
	return bus.Event{Kind: bus.KindCallback, ChatID: chat, CallbackID: "cb-1", Data: token}
}

func videos(n int) []catalog.VideoSummary {
	out := make([]catalog.VideoSummary, n)
	for i := range out {
		out[i] = catalog.VideoSummary{ID: fmt.Sprintf("id%d", i), Title: fmt.Sprintf("Video %d", i)}
	}
	return out
}

func TestStart_Welcome(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), command("/start"))

	assert.Equal(t, []reply{{Kind: "text", ChatID: chat, Text: WelcomeText}}, h.rec.all())
}

func TestHelp_AddressedToBot(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), text("/help@tubebot"))

	assert.Equal(t, WelcomeText, h.rec.all()[0].Text)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), command("/nope"))

	assert.Equal(t, UnknownCommandText, h.rec.all()[0].Text)
}

func TestFreeTextWithoutSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), text("hello"))

	assert.Equal(t, FreeTextHint, h.rec.all()[0].Text)
	assert.Empty(t, h.catalog.searches())
}

func TestSearch_LofiScenario(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.results = []catalog.VideoSummary{
		{ID: "abc", Title: "Lofi 1"},
		{ID: "def", Title: "Lofi 2"},
	}
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	h.d.Handle(ctx, text("lofi"))
	h.d.Wait()

	cards := h.rec.kinds("card")
	require.Len(t, cards, 2)
	assert.Equal(t, "Lofi 1", cards[0].Card.Title)
	assert.Equal(t, "Lofi 2", cards[1].Card.Title)
	assert.Equal(t, []string{"lofi"}, h.catalog.searches())
	assert.Equal(t, []int{DefaultLimit}, h.catalog.limits)
	assert.Len(t, h.rec.all(), 3, "prompt plus two results")
}

func TestSearch_ReplyDispatchedRightAfterCommand(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, Options{})
		h.catalog.results = videos(2)
		ctx := context.Background()

		h.d.Dispatch(ctx, command("/search"))
		h.d.Dispatch(ctx, text("lofi"))
		h.d.Wait()

		require.Equal(t, []string{"lofi"}, h.catalog.searches(), "run %d", i)
		all := h.rec.all()
		require.Len(t, all, 3, "run %d", i)
		assert.Equal(t, SearchPrompt, all[0].Text)
		assert.Equal(t, "card", all[1].Kind)
		assert.Equal(t, "card", all[2].Kind)
	}
}

func TestSearch_InlineRightAfterPromptSupersedes(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.results = videos(1)
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.d.Dispatch(ctx, command("/search cats"))
	h.d.Dispatch(ctx, text("dogs"))
	h.d.Wait()

	assert.Equal(t, []string{"cats"}, h.catalog.searches())
	assert.Contains(t, h.rec.all(), reply{Kind: "text", ChatID: chat, Text: FreeTextHint})
	assert.Zero(t, h.d.Sessions().Len())
}

func TestDispatch_RecoversPanic(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.panics = true

	assert.NotPanics(t, func() {
		h.d.Dispatch(context.Background(), command("/trending"))
		h.d.Wait()
	})
}

func TestSearch_CommandTextIsQueryWhilePending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	h.d.Handle(ctx, command("/trending"))
	h.d.Wait()

	assert.Equal(t, []string{"/trending"}, h.catalog.searches())
	assert.Zero(t, h.catalog.trending)
}

func TestSearch_InlineQuery(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.results = videos(1)

	h.d.Handle(context.Background(), command("/search lofi beats"))

	assert.Equal(t, []string{"lofi beats"}, h.catalog.searches())
	assert.Len(t, h.rec.kinds("card"), 1)
	assert.Empty(t, h.rec.kinds("text"))
}

func TestSearch_Timeout(t *testing.T) {
	h := newHarness(t, Options{SearchTimeout: 30 * time.Millisecond})
	h.catalog.results = videos(2)

	h.d.Handle(context.Background(), command("/search"))

	texts := h.rec.kinds("text")
	require.Len(t, texts, 2)
	assert.Equal(t, SearchPrompt, texts[0].Text)
	assert.Equal(t, SearchTimedOut, texts[1].Text)
	assert.Empty(t, h.rec.kinds("card"))
	assert.Empty(t, h.catalog.searches())
}

func TestSearch_EmptyQuery(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	h.d.Handle(ctx, text("   "))
	h.d.Wait()

	h.rec.waitText(t, EmptyQueryText, 1)
	assert.Empty(t, h.catalog.searches())
}

func TestSearch_SecondSearchSupersedes(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.results = videos(1)
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 2)

	h.d.Handle(ctx, text("cats"))
	h.d.Wait()

	assert.Equal(t, []string{"cats"}, h.catalog.searches())
	assert.Len(t, h.rec.kinds("card"), 1)
	assert.Len(t, h.rec.kinds("text"), 2, "two prompts, no timeout or error reply")
}

func TestSearch_ShutdownEndsWaitSilently(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	h.d.Sessions().Stop()
	h.d.Wait()

	assert.Len(t, h.rec.all(), 1)
}

func TestSearch_ContextCanceledEndsWaitSilently(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)
	cancel()
	h.d.Wait()

	assert.Len(t, h.rec.all(), 1)
	assert.Zero(t, h.d.Sessions().Len())
}

func TestSearch_ResultsCappedAtLimit(t *testing.T) {
	h := newHarness(t, Options{Limit: 5})
	h.catalog.results = videos(8)

	h.d.Handle(context.Background(), command("/search many"))

	cards := h.rec.kinds("card")
	require.Len(t, cards, 5)
	for _, c := range cards {
		assert.NotEmpty(t, c.Card.Title)
	}
}

func TestTrending_EmptyList(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), command("/trending"))

	assert.Empty(t, h.rec.all())
	assert.Equal(t, 1, h.catalog.trending)
}

func TestTrending_ProviderFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.err = errors.New("boom")
	h.d.Handle(context.Background(), command("/trending"))

	assert.Equal(t, []reply{{Kind: "text", ChatID: chat, Text: FetchFailedText}}, h.rec.all())
}

func TestTrending_QuotaExceeded(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.err = fmt.Errorf("trending: %w", catalog.ErrQuotaExceeded)
	h.d.Handle(context.Background(), command("/trending"))

	assert.Equal(t, QuotaExceededText, h.rec.all()[0].Text)
}

func TestTrending_ThumbnailRemovedAfterSend(t *testing.T) {
	h := newHarness(t, Options{})
	thumbs := &fakeThumbs{dir: t.TempDir()}
	h.d.thumbs = thumbs
	h.catalog.results = []catalog.VideoSummary{
		{ID: "a", Title: "A", ThumbnailURL: "https://i.ytimg.com/a.jpg"},
		{ID: "b", Title: "B"},
	}

	h.d.Handle(context.Background(), command("/trending"))

	cards := h.rec.kinds("card")
	require.Len(t, cards, 2)
	assert.NotEmpty(t, cards[0].Card.ThumbnailPath)
	assert.True(t, cards[0].FileExists, "thumbnail present during send")
	assert.Empty(t, cards[1].Card.ThumbnailPath)

	require.Len(t, thumbs.paths, 1)
	assert.NoFileExists(t, thumbs.paths[0])
}

func TestTrending_ThumbnailRemovedWhenSendFails(t *testing.T) {
	h := newHarness(t, Options{})
	thumbs := &fakeThumbs{dir: t.TempDir()}
	h.d.thumbs = thumbs
	h.rec.fail = errors.New("telegram down")
	h.catalog.results = []catalog.VideoSummary{{ID: "a", Title: "A", ThumbnailURL: "https://i.ytimg.com/a.jpg"}}

	h.d.Handle(context.Background(), command("/trending"))

	require.Len(t, thumbs.paths, 1)
	assert.NoFileExists(t, thumbs.paths[0])
}

func TestTrending_ThumbnailFailureStillSendsCard(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.thumbs = &fakeThumbs{err: errors.New("404")}
	h.catalog.results = []catalog.VideoSummary{{ID: "a", Title: "A", ThumbnailURL: "https://i.ytimg.com/a.jpg"}}

	h.d.Handle(context.Background(), command("/trending"))

	cards := h.rec.kinds("card")
	require.Len(t, cards, 1)
	assert.Empty(t, cards[0].Card.ThumbnailPath)
}

func TestCallback_Malformed(t *testing.T) {
	h := newHarness(t, Options{})

	assert.NotPanics(t, func() {
		h.d.Handle(context.Background(), bus.Event{Kind: bus.KindCallback, ChatID: chat, CallbackID: "cb", Data: "1:zz:???"})
	})
	assert.Equal(t, []reply{{Kind: "ack", Text: ""}}, h.rec.all())
}

func TestCallback_Play(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), callback(t, action.Play("abc")))

	all := h.rec.all()
	require.Len(t, all, 2)
	assert.Equal(t, reply{Kind: "ack", Text: AckPlay}, all[0])
	assert.Equal(t, fmt.Sprintf(StreamURLFormat, "https://cdn.example/v.mp4"), all[1].Text)
}

func TestCallback_PlayFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.media.err = errors.New("yt-dlp failed")
	h.d.Handle(context.Background(), callback(t, action.Play("abc")))

	assert.Equal(t, ProcessFailedText, h.rec.all()[1].Text)
}

func TestCallback_DownloadDelivered(t *testing.T) {
	h := newHarness(t, Options{})
	h.media.size = 49 * 1024 * 1024

	h.d.Handle(context.Background(), callback(t, action.Download("abc", "720p")))

	all := h.rec.all()
	require.Len(t, all, 2)
	assert.Equal(t, "Preparing 720p download...", all[0].Text)
	assert.Equal(t, "video", all[1].Kind)
	assert.True(t, all[1].FileExists, "file present during delivery")
	assert.NoFileExists(t, all[1].Path)
}

func TestCallback_DownloadRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.media.size = 51 * 1024 * 1024

	h.d.Handle(context.Background(), callback(t, action.Download("abc", "1080p")))

	all := h.rec.all()
	require.Len(t, all, 2)
	assert.Equal(t,
		"Sorry, the file size (51.00MB) exceeds Telegram's limit (50MB). Please try a lower quality.",
		all[1].Text)
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCallback_DownloadFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.media.err = errors.New("format unavailable")

	h.d.Handle(context.Background(), callback(t, action.Download("abc", "360p")))

	assert.Equal(t, ProcessFailedText, h.rec.all()[1].Text)
}

func TestCallback_LegacyDownloadToken(t *testing.T) {
	h := newHarness(t, Options{})
	h.media.size = 1024

	h.d.Handle(context.Background(), bus.Event{Kind: bus.KindCallback, ChatID: chat, CallbackID: "cb", Data: "download_a_b_360"})

	all := h.rec.all()
	require.Len(t, all, 2)
	assert.Equal(t, "Preparing 360p download...", all[0].Text)
	assert.Equal(t, filepath.Join(h.dir, "a_b-360.mp4"), all[1].Path)
}

func TestCallback_Search(t *testing.T) {
	h := newHarness(t, Options{})
	h.d.Handle(context.Background(), callback(t, action.Search()))

	assert.Equal(t, []reply{{Kind: "ack", Text: AckSearch}}, h.rec.all())
	assert.Zero(t, h.d.Sessions().Len())
}

func TestCallback_Trending(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.results = videos(2)
	h.d.Handle(context.Background(), callback(t, action.Trending()))

	all := h.rec.all()
	require.Len(t, all, 3)
	assert.Equal(t, reply{Kind: "ack", Text: AckTrending}, all[0])
	assert.Equal(t, "Video 0", all[1].Card.Title)
	assert.Equal(t, chat, all[1].ChatID)
}

func TestHandle_RecoversPanic(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.panics = true

	assert.NotPanics(t, func() {
		h.d.Handle(context.Background(), command("/trending"))
	})
}

func TestRun_ConsumesBus(t *testing.T) {
	h := newHarness(t, Options{})
	b := bus.NewMessageBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.d.Run(ctx, b)
		close(done)
	}()

	require.NoError(t, b.PublishInbound(ctx, command("/start")))
	h.rec.waitText(t, WelcomeText, 1)

	cancel()
	<-done
	h.d.Wait()
}

func TestSessionsIndependentPerChat(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.d.Dispatch(ctx, command("/search"))
	h.rec.waitText(t, SearchPrompt, 1)

	other := text("hello")
	other.ChatID = chat + 1
	h.d.Handle(ctx, other)

	assert.True(t, h.d.Sessions().HasPending(chat))
	assert.Equal(t, FreeTextHint, h.rec.all()[1].Text)

	h.d.Sessions().Cancel(chat)
	h.d.Wait()
}

func TestBuildUI(t *testing.T) {
	v := catalog.VideoSummary{ID: "dQw4w9WgXcQ", Title: "T", Description: "D"}
	ui := BuildUI(v)

	require.Len(t, ui.Actions, 4)
	assert.Equal(t, action.Play(v.ID), ui.Actions[0][0].Action)
	require.Len(t, ui.Actions[1], 3)
	assert.Equal(t, action.Download(v.ID, "1080p"), ui.Actions[1][2].Action)
	assert.Equal(t, action.OpenExternal("https://www.youtube.com/watch?v=dQw4w9WgXcQ"), ui.Actions[2][0].Action)
	assert.Equal(t, action.Search(), ui.Actions[3][0].Action)
	assert.Equal(t, action.Trending(), ui.Actions[3][1].Action)
	assert.Equal(t, "**T**\n\nD", ui.Text())

	for _, row := range ui.Actions {
		for _, b := range row {
			token, err := action.Encode(b.Action)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(token), action.MaxTokenLen)
		}
	}
}

func TestBuildUI_TruncatesDescription(t *testing.T) {
	long := make([]rune, 2000)
	for i := range long {
		long[i] = 'x'
	}
	ui := BuildUI(catalog.VideoSummary{ID: "a", Title: "T", Description: string(long)})
	assert.LessOrEqual(t, len([]rune(ui.Description)), maxDescriptionRunes)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		ev   bus.Event
		name string
		args string
	}{
		{text("/search"), "search", ""},
		{text("/Search@TubeBot  lofi hip hop "), "search", "lofi hip hop"},
		{text("hello"), "", ""},
		{bus.Event{Kind: bus.KindCommand, Command: "Trending", Args: " x "}, "trending", "x"},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.ev)
		assert.Equal(t, tt.name, name, tt.ev.Text)
		assert.Equal(t, tt.args, args, tt.ev.Text)
	}
}

func TestNormalizeQuality(t *testing.T) {
	assert.Equal(t, "720p", normalizeQuality("720"))
	assert.Equal(t, "720p", normalizeQuality("720p"))
}
