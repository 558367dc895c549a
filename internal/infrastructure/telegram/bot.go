package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsStream/internal/domain"
	"NewsStream/internal/ports"
)

const (
	defaultPollTimeout = 30 * time.Second
	retryDelay         = 3 * time.Second
	handlerLimit       = 4
)

// updateSource yields batches of updates; *Client is the production one.
type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// BotDeps wires the transport to the delivery use case.
type BotDeps struct {
	Updates     updateSource
	Messenger   ports.Messenger
	Items       ports.NextItemProvider
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// Bot answers /start and /news commands.
type Bot struct {
	updates     updateSource
	messenger   ports.Messenger
	items       ports.NextItemProvider
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewBot builds a bot around a Bot API client.
func NewBot(deps BotDeps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := deps.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Bot{
		updates:     deps.Updates,
		messenger:   deps.Messenger,
		items:       deps.Items,
		pollTimeout: timeout,
		logger:      logger,
	}
}

// Run polls for updates until ctx is cancelled. Updates of one batch are
// handled concurrently; the next poll starts after the batch is answered.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("polling started", "poll_timeout", b.pollTimeout)

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("polling stopped")
			return nil
		}

		updates, err := b.updates.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("get updates failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(handlerLimit)
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			g.Go(func() error {
				b.Handle(ctx, u)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// Handle dispatches one update; failures are logged, never returned.
func (b *Bot) Handle(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	chatID := u.Message.Chat.ID

	var reply string
	switch command(u.Message.Text) {
	case "/start":
		b.logger.Info("bot started", "chat_id", chatID)
		reply = greetingText
	case "/news":
		reply = b.news(ctx, chatID)
	case "":
		return
	default:
		reply = unknownText
	}

	if err := b.messenger.SendMessage(ctx, chatID, reply); err != nil {
		b.logger.Warn("send reply failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) news(ctx context.Context, chatID int64) string {
	consumer := domain.ConsumerID(strconv.FormatInt(chatID, 10))
	item, ok, err := b.items.NextItem(ctx, consumer)
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return unavailableText
	case err != nil:
		b.logger.Error("next item failed", "chat_id", chatID, "error", err)
		return unavailableText
	case !ok:
		return noNewItemText
	default:
		return formatItem(item)
	}
}

// command extracts "/name" from text, dropping a "@botname" suffix.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}
