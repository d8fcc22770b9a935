package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/history"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/metrics"
)

const channel = "telegram"

// Answerer answers a validated query.
type Answerer interface {
	Answer(ctx context.Context, q core.Query) core.Answer
}

// sender is the part of the Telegram API the bot uses.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// UserInfo holds basic information about the user
type UserInfo struct {
	ID       int64
	Username string
	FullName string
}

// Bot answers tax questions sent as Telegram messages.
type Bot struct {
	bot      *bot.Bot
	out      sender
	answerer Answerer
	history  *history.Log
	metrics  *metrics.Recorder
	typing   time.Duration
	timeout  time.Duration
}

// NewBot creates a bot for token. history and rec may be nil. Each answer is
// bounded by timeout; zero means no limit.
func NewBot(token string, answerer Answerer, log *history.Log, rec *metrics.Recorder, timeout time.Duration) (*Bot, error) {
	b := &Bot{
		answerer: answerer,
		history:  log,
		metrics:  rec,
		typing:   4 * time.Second, // Telegram typing status lasts ~5 seconds
		timeout:  timeout,
	}

	botAPI, err := bot.New(token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	b.bot = botAPI
	b.out = botAPI
	return b, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	logger.TelegramInfo("Bot started, polling for updates")
	b.bot.Start(ctx)
	logger.TelegramInfo("Bot stopped")
}

// handleUpdate handles a Telegram update.
func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	message := update.Message

	if strings.HasPrefix(message.Text, "/") {
		b.handleCommand(ctx, message)
		return
	}
	b.handleTextMessage(ctx, message)
}

func userInfo(message *models.Message) UserInfo {
	if message.From == nil {
		return UserInfo{ID: message.Chat.ID}
	}
	fullName := message.From.FirstName
	if message.From.LastName != "" {
		fullName += " " + message.From.LastName
	}
	return UserInfo{ID: message.From.ID, Username: message.From.Username, FullName: fullName}
}

const helpText = "Ask me any question about Nigerian tax, for example:" +
	"\n• What is the VAT rate?" +
	"\n• Do small companies pay income tax?" +
	"\n\nCommands:" +
	"\n/help - Show this help message"

func (b *Bot) handleCommand(ctx context.Context, message *models.Message) {
	command := strings.TrimPrefix(strings.Fields(message.Text)[0], "/")
	// Commands in groups arrive as /help@BotName.
	command, _, _ = strings.Cut(command, "@")
	chatID := message.Chat.ID
	logger.TelegramInfo("Chat[%d] User[%d]: Received command: /%s", chatID, userInfo(message).ID, command)

	var text string
	switch command {
	case "start":
		text = "👋 Hello! I'm the Nigerian Tax Assistant.\n\n" + helpText
	case "help":
		text = helpText
	default:
		text = "Unknown command. Try /help to see available commands."
	}
	b.send(ctx, chatID, text)
}

// sendContinuousTypingAction sends the typing action periodically until the done channel is closed
func (b *Bot) sendContinuousTypingAction(ctx context.Context, chatID int64, done chan struct{}) {
	b.out.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: "typing"})

	ticker := time.NewTicker(b.typing)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.out.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: "typing"})
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleTextMessage(ctx context.Context, message *models.Message) {
	start := time.Now()
	chatID := message.Chat.ID
	user := userInfo(message)
	logger.TelegramInfo("Chat[%d] User[%d]: Received question.", chatID, user.ID)

	q := core.Query{Question: strings.TrimSpace(message.Text)}
	if err := q.Validate(); err != nil {
		b.metrics.Invalid(channel)
		b.send(ctx, chatID, validationReply(err))
		return
	}

	answerCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		answerCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	typingDone := make(chan struct{})
	go b.sendContinuousTypingAction(ctx, chatID, typingDone)
	ans := b.answerer.Answer(answerCtx, q)
	close(typingDone)

	b.metrics.Observe(channel, ans, time.Since(start))
	b.history.Record(context.WithoutCancel(ctx), channel, strconv.FormatInt(user.ID, 10), q.Question, ans)
	if ans.Error != "" {
		logger.TelegramWarn("Chat[%d]: Answer failed: %s", chatID, ans.Error)
	}

	b.send(ctx, chatID, ans.Text)
}

func validationReply(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) && verr.Field == "question" && verr.Reason == "must not be empty" {
		return "Please send a question about Nigerian tax, for example: What is the VAT rate?"
	}
	if errors.As(err, &verr) && verr.Field == "question" {
		return fmt.Sprintf("Please keep questions under %d characters.", core.MaxQuestionLength)
	}
	return "Sorry, I couldn't read that question: " + err.Error()
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.out.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		logger.TelegramError("Chat[%d]: Failed to send message: %v", chatID, err)
	}
}
