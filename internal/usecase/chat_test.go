package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/state"
)

func TestChatControllerSendRecordsExchange(t *testing.T) {
	t.Parallel()

	prompt := state.NewPromptBuffer(nil)
	prompt.Set("describe this")
	conversation := state.NewConversation()
	sender := &fakeChatSender{reply: "a cat"}
	events := &fakeEventSink{}
	controller := NewChatController(sender, prompt, conversation, events, observability.NewMetrics(), zerolog.Nop(), 0)

	attachments := []domain.Attachment{{Name: "cat.png", MimeType: "image/png", Data: []byte("png")}}
	if err := controller.Send(context.Background(), attachments); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if prompt.Text() != "" {
		t.Fatalf("expected prompt reset, got %q", prompt.Text())
	}
	if sender.query != "describe this" || len(sender.attachments) != 1 {
		t.Fatalf("unexpected request: %q %d", sender.query, len(sender.attachments))
	}

	messages := controller.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %+v", messages)
	}
	if messages[0].Role != domain.RoleUser || messages[0].Content != "describe this" || len(messages[0].Attachments) != 1 || messages[0].Attachments[0] != "cat.png" {
		t.Fatalf("unexpected user message: %+v", messages[0])
	}
	if messages[1].Role != domain.RoleAssistant || messages[1].Content != "a cat" {
		t.Fatalf("unexpected assistant message: %+v", messages[1])
	}
	if len(events.snapshotMessages()) != 2 {
		t.Fatalf("expected two message events")
	}

	controller.Clear()
	if len(controller.Messages()) != 0 {
		t.Fatalf("expected conversation cleared")
	}
}

func TestChatControllerRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	prompt := state.NewPromptBuffer(nil)
	prompt.Set("   ")
	sender := &fakeChatSender{}
	controller := NewChatController(sender, prompt, state.NewConversation(), &fakeEventSink{}, nil, zerolog.Nop(), 0)

	if err := controller.Send(context.Background(), nil); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no request")
	}
	if prompt.Text() != "   " {
		t.Fatalf("rejected send must not reset the prompt")
	}
}

func TestChatControllerAttachmentsOnlyIsAllowed(t *testing.T) {
	t.Parallel()

	sender := &fakeChatSender{reply: "ok"}
	controller := NewChatController(sender, state.NewPromptBuffer(nil), state.NewConversation(), &fakeEventSink{}, nil, zerolog.Nop(), 0)

	if err := controller.Send(context.Background(), []domain.Attachment{{Name: "a.txt", Data: []byte("a")}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sender.calls != 1 || sender.query != "" {
		t.Fatalf("unexpected request: calls=%d query=%q", sender.calls, sender.query)
	}
}

func TestChatControllerFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	prompt := state.NewPromptBuffer(nil)
	prompt.Set("hi")
	events := &fakeEventSink{}
	controller := NewChatController(
		&fakeChatSender{err: &domain.ChatFailedError{Status: 502, Body: "bad gateway"}},
		prompt,
		state.NewConversation(),
		events,
		nil,
		zerolog.Nop(),
		0,
	)

	err := controller.Send(context.Background(), nil)
	var failed *domain.ChatFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ChatFailedError, got %v", err)
	}
	if messages := controller.Messages(); len(messages) != 1 || messages[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
	if errs := events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeChat {
		t.Fatalf("expected chat error event, got %+v", errs)
	}
}

func TestChatControllerTimeout(t *testing.T) {
	t.Parallel()

	prompt := state.NewPromptBuffer(nil)
	prompt.Set("hi")
	release := make(chan struct{})
	defer close(release)
	controller := NewChatController(&fakeChatSender{wait: release}, prompt, state.NewConversation(), &fakeEventSink{}, nil, zerolog.Nop(), 20*time.Millisecond)

	if err := controller.Send(context.Background(), nil); !errors.Is(err, domain.ErrChatTimeout) {
		t.Fatalf("expected ErrChatTimeout, got %v", err)
	}
}

type fakeChatSender struct {
	mu          sync.Mutex
	reply       string
	err         error
	wait        chan struct{}
	calls       int
	query       string
	attachments []domain.Attachment
}

func (f *fakeChatSender) SendMessage(ctx context.Context, query string, attachments []domain.Attachment) (string, error) {
	f.mu.Lock()
	f.calls++
	f.query = query
	f.attachments = attachments
	f.mu.Unlock()

	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}
