package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/config"
	"github.com/openbotkit/botflow/pkg/logger"
)

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	client *http.Client
}

func NewTelegramChannel(cfg config.TelegramConfig, broker bus.Broker) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", broker, cfg.AllowFrom),
		bot:         bot,
		client:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	bh, err := th.NewBotHandler(c.bot, updates)
	if err != nil {
		return fmt.Errorf("create bot handler: %w", err)
	}

	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		return c.handleMessage(ctx, &message)
	}, th.Or(th.AnyMessageWithText(), th.AnyMessageWithCaption(), th.AnyMessageWithMedia()))

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go bh.Start()

	go func() {
		<-ctx.Done()
		bh.Stop()
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	switch msg.Kind {
	case bus.OutboundFile:
		f, err := os.Open(msg.FilePath)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer f.Close()

		_, err = c.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:   tu.ID(chatID),
			Document: tu.File(tu.NameReader(f, msg.FileName)),
			Caption:  msg.Content,
		})
		return err

	case bus.OutboundInteractive:
		params := &telego.SendMessageParams{
			ChatID: tu.ID(chatID),
			Text:   msg.Content,
		}
		if opts := splitOptions(msg.Metadata["options"]); len(opts) > 0 {
			rows := make([][]telego.KeyboardButton, 0, len(opts))
			for _, opt := range opts {
				rows = append(rows, tu.KeyboardRow(tu.KeyboardButton(opt)))
			}
			params.ReplyMarkup = &telego.ReplyKeyboardMarkup{
				Keyboard:        rows,
				ResizeKeyboard:  true,
				OneTimeKeyboard: true,
			}
		}
		_, err = c.bot.SendMessage(ctx, params)
		return err

	default:
		_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
		return err
	}
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message) error {
	if message == nil || message.From == nil {
		return nil
	}
	user := message.From

	senderID := fmt.Sprintf("%d", user.ID)
	if user.Username != "" {
		senderID = fmt.Sprintf("%d|%s", user.ID, user.Username)
	}

	// Reject before downloading any attachment.
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id": senderID,
		})
		return nil
	}

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}

	msg := bus.InboundMessage{
		ChatID:    fmt.Sprintf("%d", message.Chat.ID),
		SenderID:  fmt.Sprintf("%d", user.ID),
		Content:   content,
		MessageID: fmt.Sprintf("%d", message.MessageID),
		Timestamp: time.Unix(message.Date, 0),
		Metadata: map[string]string{
			"username":   user.Username,
			"first_name": user.FirstName,
		},
	}

	switch {
	case message.Document != nil:
		doc := message.Document
		body, err := c.downloadFile(ctx, doc.FileID)
		if err != nil {
			logger.ErrorCF("telegram", "Document download failed", map[string]interface{}{
				"file_id": doc.FileID,
				"error":   err.Error(),
			})
		} else {
			msg.FileName = doc.FileName
			msg.FileMime = doc.MimeType
			msg.FileBody = body
		}

	case len(message.Photo) > 0:
		photo := message.Photo[len(message.Photo)-1]
		body, err := c.downloadFile(ctx, photo.FileID)
		if err != nil {
			logger.ErrorCF("telegram", "Photo download failed", map[string]interface{}{
				"file_id": photo.FileID,
				"error":   err.Error(),
			})
		} else {
			msg.FileName = photo.FileUniqueID + ".jpg"
			msg.FileMime = "image/jpeg"
			msg.FileBody = body
		}
	}

	if msg.Content == "" && !msg.HasFile() {
		return nil
	}

	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"sender_id": senderID,
		"chat_id":   msg.ChatID,
		"has_file":  fmt.Sprintf("%t", msg.HasFile()),
	})

	c.Publish(msg)
	return nil
}

func (c *TelegramChannel) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file %s has no download path", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func splitOptions(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
