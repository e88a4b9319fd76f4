package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMessageService_SendAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sam := f.register(t, "sam", "state")
	alex := f.register(t, "alex", "state")

	for _, body := range []string{"hey", "  pregame saturday?  "} {
		if _, err := f.messages.Send(ctx, alex, sam.UserID, body); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		f.now = f.now.Add(time.Minute)
	}

	conversations, err := f.messages.Conversations(ctx, sam)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(conversations) != 1 || conversations[0].Partner.ID != alex.UserID || conversations[0].UnreadCount != 2 {
		t.Fatalf("unexpected conversations %+v", conversations)
	}
	if conversations[0].LastMessage.Body != "pregame saturday?" {
		t.Fatalf("expected trimmed last message, got %q", conversations[0].LastMessage.Body)
	}

	messages, err := f.messages.Conversation(ctx, sam, alex.UserID, 0)
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Body != "hey" {
		t.Fatalf("unexpected conversation %+v", messages)
	}

	conversations, err = f.messages.Conversations(ctx, sam)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if conversations[0].UnreadCount != 0 {
		t.Fatalf("expected conversation to be read, got %d unread", conversations[0].UnreadCount)
	}

	if len(f.events.subjects) != 2 || f.events.subjects[0] != EventMessageSent {
		t.Fatalf("expected two message events, got %v", f.events.subjects)
	}
}

func TestMessageService_SendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sam := f.register(t, "sam", "state")
	tess := f.register(t, "tess", "tech")

	_, err := f.messages.Send(ctx, sam, sam.UserID, "   ")
	assertValidationField(t, err, "body")
	assertValidationField(t, err, "recipient")

	_, err = f.messages.Send(ctx, sam, "someone", strings.Repeat("a", maxMessageLength+1))
	assertValidationField(t, err, "body")

	_, err = f.messages.Send(ctx, sam, tess.UserID, "hello from another school")
	assertErrorIs(t, err, ErrNotFound)
}

func TestMessageService_PublishFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	sam := f.register(t, "sam", "state")
	alex := f.register(t, "alex", "state")
	f.events.err = errors.New("broker down")

	message, err := f.messages.Send(context.Background(), sam, alex.UserID, "still delivered")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if message.ID == "" {
		t.Fatalf("expected stored message id")
	}
}
