package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/config"
	"github.com/openbotkit/botflow/pkg/logger"
)

type DiscordChannel struct {
	*BaseChannel
	session   *discordgo.Session
	client    *http.Client
	botUserID string
}

func NewDiscordChannel(cfg config.DiscordConfig, broker bus.Broker) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", broker, cfg.AllowFrom),
		session:     session,
		client:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("get bot user: %w", err)
	}
	c.botUserID = botUser.ID

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	switch msg.Kind {
	case bus.OutboundFile:
		f, err := os.Open(msg.FilePath)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer f.Close()

		_, err = c.session.ChannelFileSendWithMessage(msg.ChatID, msg.Content, msg.FileName, f)
		if err != nil {
			return fmt.Errorf("send discord file: %w", err)
		}
		return nil

	case bus.OutboundInteractive:
		content := msg.Content
		// Discord has no reply keyboard; render the choices inline.
		if opts := splitOptions(msg.Metadata["options"]); len(opts) > 0 {
			content += "\n" + strings.Join(opts, " | ")
		}
		_, err := c.session.ChannelMessageSend(msg.ChatID, content)
		return err

	default:
		_, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content)
		return err
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}

	// Reject before downloading any attachment.
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id": m.Author.ID,
		})
		return
	}

	msg := bus.InboundMessage{
		ChatID:    m.ChannelID,
		SenderID:  m.Author.ID,
		Content:   c.stripBotMention(m.Content),
		MessageID: m.ID,
		Metadata: map[string]string{
			"username": m.Author.Username,
			"guild_id": m.GuildID,
		},
	}

	if len(m.Attachments) > 0 {
		attachment := m.Attachments[0]
		body, err := c.downloadAttachment(attachment.URL)
		if err != nil {
			logger.ErrorCF("discord", "Attachment download failed", map[string]interface{}{
				"url":   attachment.URL,
				"error": err.Error(),
			})
		} else {
			msg.FileName = attachment.Filename
			msg.FileMime = attachment.ContentType
			msg.FileBody = body
		}
	}

	if msg.Content == "" && !msg.HasFile() {
		return
	}

	logger.DebugCF("discord", "Received message", map[string]interface{}{
		"sender_id": m.Author.ID,
		"chat_id":   m.ChannelID,
		"has_file":  fmt.Sprintf("%t", msg.HasFile()),
	})

	c.Publish(msg)
}

func (c *DiscordChannel) downloadAttachment(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Discord mentions have the format <@USER_ID> or <@!USER_ID>.
func (c *DiscordChannel) stripBotMention(text string) string {
	if c.botUserID == "" {
		return strings.TrimSpace(text)
	}
	text = strings.ReplaceAll(text, fmt.Sprintf("<@%s>", c.botUserID), "")
	text = strings.ReplaceAll(text, fmt.Sprintf("<@!%s>", c.botUserID), "")
	return strings.TrimSpace(text)
}
