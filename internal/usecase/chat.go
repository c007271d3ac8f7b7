package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voxcanvas/internal/deadline"
	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/ports"
)

// ChatController sends the prompt as a chat message and records the exchange.
type ChatController struct {
	sender       ports.ChatSender
	prompt       ports.PromptBuffer
	conversation ports.ConversationLog
	events       ports.EventSink
	metrics      *observability.Metrics
	logger       zerolog.Logger
	timeout      time.Duration
}

func NewChatController(
	sender ports.ChatSender,
	prompt ports.PromptBuffer,
	conversation ports.ConversationLog,
	events ports.EventSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	timeout time.Duration,
) *ChatController {
	if timeout <= 0 {
		timeout = deadline.DefaultTimeout
	}
	return &ChatController{
		sender:       sender,
		prompt:       prompt,
		conversation: conversation,
		events:       events,
		metrics:      metrics,
		logger:       observability.WithComponent(logger, "chat"),
		timeout:      timeout,
	}
}

// Send posts the current prompt with attachments. The user message is
// recorded and the prompt reset before the request is issued; the reply is
// appended once it arrives.
func (c *ChatController) Send(ctx context.Context, attachments []domain.Attachment) error {
	if strings.TrimSpace(c.prompt.Text()) == "" && len(attachments) == 0 {
		return domain.ErrEmptyMessage
	}

	query := c.prompt.Take()
	names := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		names = append(names, attachment.Name)
	}
	c.record(domain.Message{Role: domain.RoleUser, Content: query, Attachments: names})

	started := time.Now()
	logger := observability.WithCorrelationID(c.logger, "")
	reply, err := deadline.Call(ctx, c.timeout, func(callCtx context.Context) (string, error) {
		return c.sender.SendMessage(callCtx, query, attachments)
	})
	if err != nil {
		status := observability.StatusError
		if errors.Is(err, deadline.ErrExpired) {
			status = observability.StatusTimeout
			err = domain.ErrChatTimeout
		}
		c.metrics.RecordChatMessage(status, time.Since(started))
		logger.Warn().Err(err).Int("attachments", len(attachments)).Msg("chat message failed")
		c.events.PipelineError(domain.ErrorCodeChat, err.Error())
		return err
	}

	c.metrics.RecordChatMessage(observability.StatusSuccess, time.Since(started))
	logger.Debug().Dur("elapsed", time.Since(started)).Msg("chat reply received")
	c.record(domain.Message{Role: domain.RoleAssistant, Content: reply})
	return nil
}

// Messages returns the conversation so far.
func (c *ChatController) Messages() []domain.Message {
	return c.conversation.Messages()
}

// Clear drops the conversation.
func (c *ChatController) Clear() {
	c.conversation.Clear()
}

func (c *ChatController) record(message domain.Message) {
	c.conversation.Append(message)
	c.events.MessageAppended(message)
}
