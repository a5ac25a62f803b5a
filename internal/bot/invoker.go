package bot

import (
	"context"
	"log"
	"time"

	"github.com/codehub/chat-relay/internal/chat"
	"github.com/codehub/chat-relay/internal/metrics"
)

// Fixed notices delivered privately when the assistant cannot answer.
const (
	RateLimitNotice = "Code Guru limit reached. Please wait a minute and try again (limit is 5 messages per minute)."
	FailureNotice   = "Code Guru is experiencing difficulties, please try again later."
)

// Assistant is the external LLM-backed collaborator. Classify reports
// whether the text should trigger an automated reply; Complete
// generates the reply body. Both are fallible and may block up to the
// collaborator's own timeout.
type Assistant interface {
	Classify(ctx context.Context, text string) (bool, error)
	Complete(ctx context.Context, text string) (string, error)
}

// Invoker relays user messages and produces rate-limited assistant
// replies through the message factory. Assistant errors are fully
// contained here; they never propagate to the session router or crash
// the connection.
type Invoker struct {
	factory   *chat.Factory
	store     chat.Store
	assistant Assistant
	limiter   *Limiter
}

// NewInvoker wires an Invoker with the default sliding-window quota.
func NewInvoker(factory *chat.Factory, store chat.Store, assistant Assistant) *Invoker {
	return &Invoker{
		factory:   factory,
		store:     store,
		assistant: assistant,
		limiter:   NewLimiter(MaxPerWindow, Window),
	}
}

// HandleUserMessage runs the full per-message state machine: upsert the
// author, persist and broadcast the user's own message unconditionally,
// then decide whether a bot reply follows. The human message is never
// delayed or lost because of assistant flakiness — it is committed
// before the assistant is consulted.
func (inv *Invoker) HandleUserMessage(ctx context.Context, conn chat.Conn, author chat.User, content, roomID string, sentToBot bool) {
	if err := inv.store.UpsertUser(ctx, author); err != nil {
		log.Printf("bot: upsert author id=%s failed: %v", author.ID, err)
	}

	userMsg := inv.factory.UserMessage(author, content, roomID, sentToBot)
	inv.factory.Save(ctx, userMsg)
	inv.factory.Broadcast(userMsg)

	inv.respond(ctx, conn, content, roomID, sentToBot)
}

// respond evaluates the trigger, enforces the room quota, and calls the
// assistant. Any assistant error — classification or completion,
// timeout or malformed response — lands in the same generic-notice
// path: persist a fixed bot notice and deliver it to the originating
// connection only.
func (inv *Invoker) respond(ctx context.Context, conn chat.Conn, content, roomID string, sentToBot bool) {
	// Classification always runs, even for explicit requests, so the
	// outcome is observable regardless of the trigger decision.
	classified, err := inv.assistant.Classify(ctx, content)
	if err != nil {
		metrics.ClassifierResults.WithLabelValues("error").Inc()
		log.Printf("bot: classify failed room=%s: %v", roomID, err)
		inv.sendNotice(ctx, conn, roomID, FailureNotice)
		metrics.AssistantInvocations.WithLabelValues("failed").Inc()
		return
	}
	if classified {
		metrics.ClassifierResults.WithLabelValues("match").Inc()
	} else {
		metrics.ClassifierResults.WithLabelValues("no_match").Inc()
	}

	if !sentToBot && !classified {
		return
	}

	if !inv.limiter.Allow(roomID) {
		log.Printf("bot: rate limited room=%s", roomID)
		inv.sendNotice(ctx, conn, roomID, RateLimitNotice)
		metrics.AssistantInvocations.WithLabelValues("rate_limited").Inc()
		return
	}

	start := time.Now()
	reply, err := inv.assistant.Complete(ctx, content)
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("bot: completion failed room=%s: %v", roomID, err)
		inv.sendNotice(ctx, conn, roomID, FailureNotice)
		metrics.AssistantInvocations.WithLabelValues("failed").Inc()
		return
	}

	botMsg := inv.factory.BotMessage(reply, roomID)
	inv.factory.Save(ctx, botMsg)
	inv.factory.Broadcast(botMsg)
	metrics.AssistantInvocations.WithLabelValues("completed").Inc()
}

// sendNotice persists a fixed bot notice and unicasts it to the
// originating connection so it does not pollute the shared transcript.
func (inv *Invoker) sendNotice(ctx context.Context, conn chat.Conn, roomID, text string) {
	notice := inv.factory.BotMessage(text, roomID)
	inv.factory.Save(ctx, notice)
	inv.factory.SendTo(conn, notice)
}
