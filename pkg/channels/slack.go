package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/config"
	"github.com/openbotkit/botflow/pkg/logger"
)

type SlackChannel struct {
	*BaseChannel
	config       config.SlackConfig
	api          *slack.Client
	socketClient *socketmode.Client
	botUserID    string
	client       *http.Client
	ctx          context.Context
	cancel       context.CancelFunc

	emailMu sync.RWMutex
	emails  map[string]string
}

func NewSlackChannel(cfg config.SlackConfig, broker bus.Broker) (*SlackChannel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack bot_token and app_token are required")
	}

	api := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)

	return &SlackChannel{
		BaseChannel:  NewBaseChannel("slack", broker, cfg.AllowFrom),
		config:       cfg,
		api:          api,
		socketClient: socketmode.New(api),
		client:       &http.Client{Timeout: 60 * time.Second},
		emails:       make(map[string]string),
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	logger.InfoC("slack", "Starting Slack channel (Socket Mode)")

	c.ctx, c.cancel = context.WithCancel(ctx)

	authResp, err := c.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	c.botUserID = authResp.UserID

	logger.InfoCF("slack", "Slack bot connected", map[string]interface{}{
		"bot_user_id": c.botUserID,
		"team":        authResp.Team,
	})

	go c.eventLoop()

	go func() {
		if err := c.socketClient.RunContext(c.ctx); err != nil {
			if c.ctx.Err() == nil {
				logger.ErrorCF("slack", "Socket Mode connection error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}()

	c.setRunning(true)
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	logger.InfoC("slack", "Stopping Slack channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.setRunning(false)
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack channel not running")
	}

	switch msg.Kind {
	case bus.OutboundFile:
		_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Channel:  msg.ChatID,
			File:     msg.FilePath,
			Filename: msg.FileName,
			Title:    msg.FileName,
		})
		if err != nil {
			return fmt.Errorf("upload slack file: %w", err)
		}
		return nil

	case bus.OutboundInteractive:
		blocks := []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, msg.Content, false, false),
				nil, nil,
			),
		}
		if opts := splitOptions(msg.Metadata["options"]); len(opts) > 0 {
			elements := make([]slack.BlockElement, 0, len(opts))
			for _, opt := range opts {
				elements = append(elements, slack.NewButtonBlockElement(
					"option_"+opt, opt,
					slack.NewTextBlockObject(slack.PlainTextType, opt, false, false),
				))
			}
			blocks = append(blocks, slack.NewActionBlock("followups", elements...))
		}
		_, _, err := c.api.PostMessageContext(ctx, msg.ChatID,
			slack.MsgOptionText(msg.Content, false),
			slack.MsgOptionBlocks(blocks...),
		)
		return err

	default:
		_, _, err := c.api.PostMessageContext(ctx, msg.ChatID,
			slack.MsgOptionText(msg.Content, false),
		)
		return err
	}
}

func (c *SlackChannel) eventLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.socketClient.Events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(event)
			case socketmode.EventTypeInteractive:
				c.handleInteractive(event)
			}
		}
	}
}

func (c *SlackChannel) handleEventsAPI(event socketmode.Event) {
	if event.Request != nil {
		c.socketClient.Ack(*event.Request)
	}

	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		c.handleMessageEvent(ev)
	}
}

func (c *SlackChannel) handleMessageEvent(ev *slackevents.MessageEvent) {
	if ev.User == c.botUserID || ev.User == "" || ev.BotID != "" {
		return
	}
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}

	// Reject before downloading any attachment.
	if !c.IsAllowed(ev.User) {
		logger.DebugCF("slack", "Message rejected by allowlist", map[string]interface{}{
			"user_id": ev.User,
		})
		return
	}

	msg := bus.InboundMessage{
		ChatID:    ev.Channel,
		SenderID:  ev.User,
		Content:   strings.TrimSpace(c.stripBotMention(ev.Text)),
		MessageID: ev.TimeStamp,
		Email:     c.lookupEmail(ev.User),
		Metadata: map[string]string{
			"channel_id": ev.Channel,
			"thread_ts":  ev.ThreadTimeStamp,
		},
	}

	if ev.Message != nil && len(ev.Message.Files) > 0 {
		file := ev.Message.Files[0]
		body, err := c.downloadSlackFile(file)
		if err != nil {
			logger.ErrorCF("slack", "File download failed", map[string]interface{}{
				"file_id": file.ID,
				"error":   err.Error(),
			})
		} else {
			msg.FileName = file.Name
			msg.FileMime = file.Mimetype
			msg.FileBody = body
		}
	}

	if msg.Content == "" && !msg.HasFile() {
		return
	}

	logger.DebugCF("slack", "Received message", map[string]interface{}{
		"sender_id": ev.User,
		"chat_id":   ev.Channel,
		"has_file":  fmt.Sprintf("%t", msg.HasFile()),
	})

	c.Publish(msg)
}

// handleInteractive turns a button click into a plain inbound message
// carrying the button's keyword, as if the user had typed it.
func (c *SlackChannel) handleInteractive(event socketmode.Event) {
	if event.Request != nil {
		c.socketClient.Ack(*event.Request)
	}

	callback, ok := event.Data.(slack.InteractionCallback)
	if !ok || callback.Type != slack.InteractionTypeBlockActions {
		return
	}
	if len(callback.ActionCallback.BlockActions) == 0 {
		return
	}
	if !c.IsAllowed(callback.User.ID) {
		return
	}

	action := callback.ActionCallback.BlockActions[0]
	c.Publish(bus.InboundMessage{
		ChatID:    callback.Channel.ID,
		SenderID:  callback.User.ID,
		Content:   action.Value,
		MessageID: callback.ActionTs,
		Email:     c.lookupEmail(callback.User.ID),
	})
}

func (c *SlackChannel) downloadSlackFile(file slack.File) ([]byte, error) {
	downloadURL := file.URLPrivateDownload
	if downloadURL == "" {
		downloadURL = file.URLPrivate
	}
	if downloadURL == "" {
		return nil, fmt.Errorf("no download URL for file %s", file.ID)
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BotToken)

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

// lookupEmail resolves a Slack user id to a profile email, cached for the
// process lifetime. Responses referencing the sender's email rely on this.
func (c *SlackChannel) lookupEmail(userID string) string {
	c.emailMu.RLock()
	email, ok := c.emails[userID]
	c.emailMu.RUnlock()
	if ok {
		return email
	}

	user, err := c.api.GetUserInfo(userID)
	if err != nil {
		logger.DebugCF("slack", "User info lookup failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ""
	}

	c.emailMu.Lock()
	c.emails[userID] = user.Profile.Email
	c.emailMu.Unlock()
	return user.Profile.Email
}

func (c *SlackChannel) stripBotMention(text string) string {
	return strings.ReplaceAll(text, fmt.Sprintf("<@%s>", c.botUserID), "")
}
