// Package messenger implements the Telegram-facing agent loop (§4.8): a
// single long-running goroutine per bot token that polls updates, triages
// photo/voice/video/text, and drives each turn through the execution
// pipeline or router.
package messenger

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/format"
	"github.com/switchboard-cli/switchboard/internal/intent"
	"github.com/switchboard-cli/switchboard/internal/liverun"
	"github.com/switchboard-cli/switchboard/internal/media"
	"github.com/switchboard-cli/switchboard/internal/paths"
	"github.com/switchboard-cli/switchboard/internal/pipeline"
	"github.com/switchboard-cli/switchboard/internal/router"
)

const helpText = "" +
	"/start - begin a conversation\n" +
	"/help - show this message\n" +
	"/providers - show which providers are configured\n" +
	"/live - resend this chat's most recent live-run link\n" +
	"/clear, /back, /b - reset routing to auto\n" +
	"pN <message> or /pN <message> - lock this chat to provider N for one message or the rest of the chat"

const (
	pollTimeoutSeconds  = 8
	pollBatchLimit      = 50
	pollRetryDelay      = 900 * time.Millisecond
	editThrottle        = 700 * time.Millisecond
	maxChunkLen         = 4000
	memoryLogSoftLimit  = 900 * 1024
	memoryLogCompactTo  = 600 * 1024
)

// RouteMode mirrors §4.8's per-chat state machine.
type RouteMode string

const (
	ModeAuto   RouteMode = "auto"
	ModeLocked RouteMode = "locked"
)

// ChatState is one chat's routing lock.
type ChatState struct {
	Mode         RouteMode
	Provider     config.ProviderId
	Model        string
	LastUpdateAt time.Time
	LastRunID    string
}

// chatStates serializes all ChatState mutations per chat.
type chatStates struct {
	mu     sync.Mutex
	states map[int64]*ChatState
}

func newChatStates() *chatStates {
	return &chatStates{states: map[int64]*ChatState{}}
}

func (c *chatStates) get(chatID int64) ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[chatID]
	if !ok {
		return ChatState{Mode: ModeAuto}
	}
	return *s
}

func (c *chatStates) set(chatID int64, state ChatState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state.LastUpdateAt = time.Now()
	c.states[chatID] = &state
}

func (c *chatStates) clear(chatID int64) {
	c.set(chatID, ChatState{Mode: ModeAuto})
}

// setLastRunID records the chat's most recent live-run id without disturbing
// its routing lock, so /live can resend the link later.
func (c *chatStates) setLastRunID(chatID int64, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[chatID]
	if !ok {
		s = &ChatState{Mode: ModeAuto}
		c.states[chatID] = s
	}
	s.LastRunID = runID
}

// Messenger is the Telegram agent loop for one bot token.
type Messenger struct {
	bot         *tgbot.Bot
	token       string
	pipeline    *pipeline.Pipeline
	registry    *liverun.Registry
	server      *liverun.Server
	transcribe  media.Transcriber
	analyze     media.ImageAnalyzer
	decode      media.VideoDecoder
	chats       *chatStates
	offset      int64
	routerStore *config.Store[config.RouterConfig, *config.RouterConfig]
	credentials router.CredentialResolver
}

// New constructs a Messenger. transcribe/analyze/decode may be nil, in
// which case text-only turns still work and media turns degrade
// gracefully: analyze/decode fall back to the media package's Noop
// collaborators, and a nil transcribe yields a "(transcription
// unavailable)" transcript. credentials
// answers /providers the same way the router itself resolves a candidate;
// it may be nil, in which case /providers reports that no resolver is wired.
func New(token string, p *pipeline.Pipeline, registry *liverun.Registry, server *liverun.Server, routerStore *config.Store[config.RouterConfig, *config.RouterConfig], credentials router.CredentialResolver, transcribe media.Transcriber, analyze media.ImageAnalyzer, decode media.VideoDecoder) (*Messenger, error) {
	if analyze == nil {
		analyze = media.NoopImageAnalyzer{}
	}
	if decode == nil {
		decode = media.NoopVideoDecoder{}
	}
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("messenger: create bot: %w", err)
	}
	return &Messenger{
		bot:         b,
		token:       token,
		pipeline:    p,
		registry:    registry,
		server:      server,
		transcribe:  transcribe,
		analyze:     analyze,
		decode:      decode,
		chats:       newChatStates(),
		routerStore: routerStore,
		credentials: credentials,
	}, nil
}

// Run starts the long-poll loop; it blocks until ctx is cancelled.
func (m *Messenger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := m.bot.GetUpdates(ctx, &tgbot.GetUpdatesParams{
			Offset:  int(m.offset),
			Timeout: pollTimeoutSeconds,
			Limit:   pollBatchLimit,
		})
		if err != nil {
			log.Printf("messenger: poll error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, u := range updates {
			m.offset = int64(u.ID) + 1
			m.ProcessUpdate(ctx, u)
		}
	}
}

// ProcessUpdate implements the §4.8 triage order.
func (m *Messenger) ProcessUpdate(ctx context.Context, u models.Update) {
	if u.Message == nil {
		return
	}
	msg := u.Message
	if msg.From != nil && msg.From.IsBot {
		return
	}

	switch {
	case len(msg.Photo) > 0:
		m.handlePhoto(ctx, msg)
	case msg.Voice != nil:
		m.handleVoice(ctx, msg)
	case msg.Video != nil:
		m.handleVideo(ctx, msg)
	case msg.Document != nil && isMediaMime(msg.Document.MimeType):
		m.handleDocumentFanOut(ctx, msg)
	case msg.Text != "":
		m.handleText(ctx, msg)
	}
}

func isMediaMime(mime string) bool {
	return strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/")
}

func (m *Messenger) handleDocumentFanOut(ctx context.Context, msg *models.Message) {
	switch {
	case strings.HasPrefix(msg.Document.MimeType, "image/"):
		m.routeWithBlob(ctx, msg.Chat.ID, msg.Document.FileID, msg.Caption, m.composeImagePrompt)
	case strings.HasPrefix(msg.Document.MimeType, "audio/"):
		m.routeWithBlob(ctx, msg.Chat.ID, msg.Document.FileID, msg.Caption, m.composeVoicePrompt)
	case strings.HasPrefix(msg.Document.MimeType, "video/"):
		m.routeWithBlob(ctx, msg.Chat.ID, msg.Document.FileID, msg.Caption, m.composeVideoPrompt)
	}
}

// 4.8.1 Photo
func (m *Messenger) handlePhoto(ctx context.Context, msg *models.Message) {
	best := highestResolutionPhoto(msg.Photo)
	m.routeWithBlob(ctx, msg.Chat.ID, best.FileID, msg.Caption, m.composeImagePrompt)
}

func highestResolutionPhoto(sizes []models.PhotoSize) models.PhotoSize {
	sorted := append([]models.PhotoSize(nil), sizes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FileSize != sorted[j].FileSize {
			return sorted[i].FileSize > sorted[j].FileSize
		}
		return sorted[i].Width*sorted[i].Height > sorted[j].Width*sorted[j].Height
	})
	return sorted[0]
}

func (m *Messenger) composeImagePrompt(blob []byte, caption string) string {
	analysis, err := m.analyze.AnalyzeImage(blob)
	if err != nil {
		analysis = "(image analysis unavailable)"
	}
	req := caption
	if req == "" {
		req = "describe what you see and suggest a next step"
	}
	return fmt.Sprintf("User sent a photo. Image analysis: %s. User request: %s", analysis, req)
}

// 4.8.2 Voice / Audio
func (m *Messenger) handleVoice(ctx context.Context, msg *models.Message) {
	m.routeWithBlob(ctx, msg.Chat.ID, msg.Voice.FileID, msg.Caption, m.composeVoicePrompt)
}

func (m *Messenger) composeVoicePrompt(blob []byte, caption string) string {
	transcript := "(transcription unavailable)"
	if m.transcribe != nil {
		if t, err := m.transcribe.Transcribe(blob); err == nil {
			transcript = t
		}
	}
	req := caption
	if req == "" {
		req = transcript
	}
	return fmt.Sprintf("User sent a voice message. Transcript: %s. User request: %s", transcript, req)
}

// 4.8.3 Video
func (m *Messenger) handleVideo(ctx context.Context, msg *models.Message) {
	m.routeWithBlob(ctx, msg.Chat.ID, msg.Video.FileID, msg.Caption, m.composeVideoPrompt)
}

func (m *Messenger) composeVideoPrompt(blob []byte, caption string) string {
	summary, err := m.decode.DecodeVideo(blob)
	if err != nil {
		summary.MetadataSummary = "(video analysis unavailable)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User sent a video. Metadata: %s.", summary.MetadataSummary)
	if summary.Transcript != "" {
		fmt.Fprintf(&b, " Transcript: %s.", summary.Transcript)
	}
	if summary.VisualSummary != "" {
		fmt.Fprintf(&b, " Visual summary: %s.", summary.VisualSummary)
	}
	if summary.DirectVideoSummary != "" {
		fmt.Fprintf(&b, " %s.", summary.DirectVideoSummary)
	}
	req := caption
	if req == "" {
		req = "summarize this video"
	}
	fmt.Fprintf(&b, " User request: %s", req)
	return b.String()
}

// routeWithBlob downloads the Telegram file, composes the fan-out prompt via
// compose, and routes it through the pipeline exactly like a text turn.
func (m *Messenger) routeWithBlob(ctx context.Context, chatID int64, fileID, caption string, compose func(blob []byte, caption string) string) {
	blob, err := m.downloadFile(ctx, fileID)
	if err != nil {
		m.sendText(ctx, chatID, fmt.Sprintf("error downloading media: %v", err))
		return
	}
	prompt := compose(blob, caption)
	m.runTurn(ctx, chatID, prompt)
}

// downloadFile resolves a Telegram file_id to its storage path, then fetches
// the blob directly over HTTPS (the bot API's GetFile only hands back a
// path; retrieval is a plain authenticated GET against the file endpoint).
func (m *Messenger) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := m.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", m.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download: bad status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

var providerSlashPrefix = regexp.MustCompile(`(?i)^/(p[1-6])\b\s*(.*)$`)
var providerNaturalPrefix = regexp.MustCompile(`(?i)^(?:use\s+)?(p[1-6])\s*(.*)$`)

// 4.8.4 Text
func (m *Messenger) handleText(ctx context.Context, msg *models.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch strings.ToLower(text) {
	case "/clear", "/back", "/b":
		m.chats.clear(chatID)
		m.clearRouterOverride()
		m.sendText(ctx, chatID, "routing reset to auto")
		return
	case "/start":
		m.sendText(ctx, chatID, "switchboard is online.\n"+helpText)
		return
	case "/help":
		m.sendText(ctx, chatID, helpText)
		return
	case "/providers":
		m.sendText(ctx, chatID, m.providersStatus())
		return
	case "/live":
		m.sendLastLiveLink(ctx, chatID)
		return
	}

	if provID, rest, ok := matchProviderPhrase(text); ok {
		m.chats.set(chatID, ChatState{Mode: ModeLocked, Provider: provID})
		m.lockRouterOverride(provID)
		if strings.TrimSpace(rest) == "" {
			m.sendText(ctx, chatID, fmt.Sprintf("locked to %s for this chat", strings.ToUpper(string(provID))))
			return
		}
		m.runTurn(ctx, chatID, rest)
		return
	}

	m.runTurn(ctx, chatID, text)
}

// lockRouterOverride persists a selected-provider override on the shared
// RouterConfig. The spec's data model keeps a single global selectedOverride
// field rather than a per-chat one, so a messenger-side provider lock is
// applied the same way a REPL `/ai p3` lock would be.
func (m *Messenger) lockRouterOverride(id config.ProviderId) {
	if m.routerStore == nil {
		return
	}
	_ = m.routerStore.Update(func(c *config.RouterConfig) {
		c.SelectedOverride = config.SelectedOverride{Enabled: true, Provider: id, Mode: config.ModeAuto}
	})
}

func (m *Messenger) clearRouterOverride() {
	if m.routerStore == nil {
		return
	}
	_ = m.routerStore.Update(func(c *config.RouterConfig) {
		c.SelectedOverride = config.SelectedOverride{}
	})
}

// providersStatus implements /providers by resolving each known provider
// through the same CredentialResolver the router consults, so the report
// reflects exactly what a chat prompt would actually be routed against.
func (m *Messenger) providersStatus() string {
	if m.credentials == nil {
		return "no credential resolver configured"
	}
	var b strings.Builder
	b.WriteString("providers:\n")
	for _, id := range config.AllProviders {
		cred, ok := m.credentials.Resolve(id)
		status := "not configured"
		if ok && !cred.Expired() {
			status = "configured"
		} else if ok {
			status = "expired"
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(id)), status)
	}
	return b.String()
}

// sendLastLiveLink implements /live: resend the chat's most recently
// started live-run share link, if one is still tracked.
func (m *Messenger) sendLastLiveLink(ctx context.Context, chatID int64) {
	state := m.chats.get(chatID)
	if state.LastRunID == "" || m.server == nil {
		m.sendText(ctx, chatID, "no live run yet for this chat")
		return
	}
	link := m.server.ShareLink(state.LastRunID)
	if link == "" {
		m.sendText(ctx, chatID, "no live run yet for this chat")
		return
	}
	m.sendText(ctx, chatID, "live: "+link)
}

func matchProviderPhrase(text string) (config.ProviderId, string, bool) {
	if m := providerSlashPrefix.FindStringSubmatch(text); m != nil {
		return config.ProviderId(strings.ToLower(m[1])), m[2], true
	}
	if m := providerNaturalPrefix.FindStringSubmatch(text); m != nil {
		return config.ProviderId(strings.ToLower(m[1])), m[2], true
	}
	return "", "", false
}

// runTurn creates a LiveRun, sends the live-link + placeholder messages,
// runs the prompt through the pipeline with throttled edits, then replaces
// the placeholder with the final chunked result.
func (m *Messenger) runTurn(ctx context.Context, chatID int64, prompt string) {
	runID := fmt.Sprintf("%d-%d", chatID, time.Now().UnixNano())
	m.registry.Begin(runID, prompt)
	m.chats.setLastRunID(chatID, runID)

	if m.server != nil {
		link := m.server.ShareLink(runID)
		if link != "" {
			m.sendText(ctx, chatID, "live: "+link)
		}
	}

	placeholderID, _ := m.sendTextTracked(ctx, chatID, "Thinking: …")

	act := &messengerActivity{
		m:             m,
		ctx:           ctx,
		chatID:        chatID,
		runID:         runID,
		placeholderID: placeholderID,
		lastEdit:      time.Time{},
	}

	if !intent.IsBriefGreeting(prompt) {
		classified := intent.Classify(prompt)
		act.label = string(classified)
	}

	m.pipeline.Run(ctx, prompt, "telegram", act)

	if placeholderID != 0 {
		m.deleteMessage(ctx, chatID, placeholderID)
	}

	m.appendChatMemory(chatID, prompt, act.finalText)
}

// messengerActivity adapts the pipeline's Activity interface to Telegram
// placeholder-edit + live-run narration.
type messengerActivity struct {
	m             *Messenger
	ctx           context.Context
	chatID        int64
	runID         string
	placeholderID int
	label         string
	lastEdit      time.Time
	finalText     string
}

func (a *messengerActivity) StartActivity(actor string) {
	a.m.registry.Emit(a.runID, "activity: "+actor)
	a.maybeEdit(fmt.Sprintf("%s > Thinking: …", actor))
}

func (a *messengerActivity) Progress(stage pipeline.ProgressStage, line string) {
	a.m.registry.Emit(a.runID, fmt.Sprintf("[%s] %s", stage, line))
	a.maybeEdit(fmt.Sprintf("%s > %s", a.label, line))
}

func (a *messengerActivity) Result(text string) {
	a.finalText = text
	a.m.registry.Complete(a.runID, text)
	a.sendFinal(text)
}

func (a *messengerActivity) Denied(reason string) {
	a.finalText = "denied: " + reason
	a.m.registry.Fail(a.runID, reason)
	a.sendFinal("denied: " + reason)
}

func (a *messengerActivity) maybeEdit(text string) {
	if a.placeholderID == 0 {
		return
	}
	if time.Since(a.lastEdit) < editThrottle {
		return
	}
	a.lastEdit = time.Now()
	a.m.editMessage(a.ctx, a.chatID, a.placeholderID, text)
}

func (a *messengerActivity) sendFinal(text string) {
	for _, chunk := range format.ChunkForMessenger(text, maxChunkLen) {
		a.m.sendText(a.ctx, a.chatID, chunk)
	}
}

func (m *Messenger) sendText(ctx context.Context, chatID int64, text string) {
	_, err := m.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		log.Printf("messenger: send error: %v", err)
	}
}

func (m *Messenger) sendTextTracked(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := m.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (m *Messenger) editMessage(ctx context.Context, chatID int64, messageID int, text string) {
	_, err := m.bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		log.Printf("messenger: edit error: %v", err)
	}
}

func (m *Messenger) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	_, err := m.bot.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	if err != nil {
		log.Printf("messenger: delete error: %v", err)
	}
}

// appendChatMemory appends the turn to the chat's append-only markdown log,
// compacting it to the last 600KB once it exceeds 900KB.
func (m *Messenger) appendChatMemory(chatID int64, userText, assistantText string) {
	dir := paths.GetChatMemoryDir("telegram")
	if err := paths.EnsureDir(dir); err != nil {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.md", chatID))

	now := time.Now().Format(time.RFC3339)
	entry := fmt.Sprintf("\n## User@%s\n%s\n\n## Assistant@%s\n%s\n", now, userText, now, assistantText)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	_, _ = f.WriteString(entry)
	f.Close()

	compactChatMemory(path)
}

func compactChatMemory(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= memoryLogSoftLimit {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if len(data) <= memoryLogCompactTo {
		return
	}
	trimmed := data[len(data)-memoryLogCompactTo:]
	_ = paths.WriteFileAtomic(path, trimmed, 0644)
}
