package telegram

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Keyboard button labels. "Disable" is deliberate: the action only stops
// retrieval, it never deletes stored history.
const (
	ButtonEnableHistory  = "Enable History"
	ButtonDisableHistory = "Disable History"
)

const (
	welcomeText  = "Hello! I'm your AI assistant. Chat with me!"
	enabledText  = "Your chat history has been enabled. Future messages will be remembered."
	disabledText = "Your chat history has been disabled. Future messages won't be remembered."
	failureText  = "Sorry, something went wrong. Please try again."
)

// Conversation is the engine surface the poller drives.
type Conversation interface {
	HandleTurn(ctx context.Context, userID, userText string) (string, error)
	EnableHistory(ctx context.Context, userID string) error
	DisableHistory(ctx context.Context, userID string) error
}

// Poller long-polls Telegram and dispatches each inbound message to the
// engine. Messages from different chats are handled concurrently; the
// engine serializes per user on its own.
type Poller struct {
	client      *Client
	engine      Conversation
	pollTimeout time.Duration
}

func NewPoller(client *Client, engine Conversation, pollTimeout time.Duration) *Poller {
	if pollTimeout < time.Second {
		pollTimeout = 30 * time.Second
	}
	return &Poller{client: client, engine: engine, pollTimeout: pollTimeout}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried after a short pause; they never kill the loop.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.client.GetUpdates(offset, int(p.pollTimeout.Seconds()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[TELEGRAM] poll failed: %v", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
				continue
			}
			msg := *u.Message
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.handleMessage(ctx, msg)
			}()
		}
	}
}

func (p *Poller) handleMessage(ctx context.Context, msg Message) {
	userID := strconv.FormatInt(msg.Chat.ID, 10)
	text := strings.TrimSpace(msg.Text)

	switch text {
	case "/start":
		p.send(msg.Chat.ID, welcomeText)
	case ButtonDisableHistory:
		if err := p.engine.DisableHistory(ctx, userID); err != nil {
			log.Printf("[TELEGRAM] disable history for %s failed: %v", userID, err)
			p.send(msg.Chat.ID, failureText)
			return
		}
		p.send(msg.Chat.ID, disabledText)
	case ButtonEnableHistory:
		if err := p.engine.EnableHistory(ctx, userID); err != nil {
			log.Printf("[TELEGRAM] enable history for %s failed: %v", userID, err)
			p.send(msg.Chat.ID, failureText)
			return
		}
		p.send(msg.Chat.ID, enabledText)
	default:
		reply, err := p.engine.HandleTurn(ctx, userID, text)
		if err != nil {
			log.Printf("[TELEGRAM] turn for %s failed: %v", userID, err)
			p.send(msg.Chat.ID, failureText)
			return
		}
		p.send(msg.Chat.ID, reply)
	}
}

func (p *Poller) send(chatID int64, text string) {
	if err := p.client.SendMessage(chatID, text, true); err != nil {
		log.Printf("[TELEGRAM] send to %d failed: %v", chatID, err)
	}
}
