// Package dialog implements the conversational state machine: multi-step
// flows advanced one inbound message at a time, with per-user session state
// held in an injected session store.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

// Universal dialog controls, available at every step.
const (
	BackLabel     = "🔙 Назад"
	CancelCommand = "/cancel"
)

// Flow names, used by the router to start dialogs.
const (
	FlowRegistration = "registration"
	FlowAdminCode    = "admin_code"
	FlowExchange     = "exchange"
	FlowRateEdit     = "rate_edit"
	FlowPriceEdit    = "price_edit"
	FlowStatusEdit   = "status_edit"
	FlowBroadcast    = "broadcast"
	FlowAddShipment  = "add_shipment"
)

// User-facing messages for flow aborts, distinct per error kind only where
// it helps the user.
const (
	msgCancelled   = "❌ Отменено."
	msgNotFound    = "❌ Запись не найдена. Попробуйте начать заново."
	msgDuplicate   = "❌ Такой трек-код уже существует."
	msgStorageDown = "⚠️ Сервис временно недоступен. Попробуйте позже."
)

// Reply is a transport-agnostic response: text plus an optional row-grouped
// button layout. The transport layer renders it into its own keyboard types.
type Reply struct {
	Text     string
	Keyboard [][]string

	// RequestContact asks the transport to render a single contact-sharing
	// button instead of plain labels.
	RequestContact bool
}

// Input is one inbound message from a user.
type Input struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Text      string
	Contact   *Contact
}

// Contact is a shared phone contact attached to a message.
type Contact struct {
	UserID      int64
	PhoneNumber string
}

// Result is the outcome of one step handling one message.
type Result struct {
	// Next names the step to transition to. The engine enters it and
	// appends its prompt to Reply.
	Next string

	// Done completes the flow; the session is discarded.
	Done bool

	// Retry re-invokes the same step on the next message.
	Retry bool

	Reply Reply
}

// PromptFunc builds the message shown on entering a step. It may fetch lists
// into session scratch.
type PromptFunc func(ctx context.Context, e *Engine, s *session.Session) (Reply, error)

// HandleFunc consumes one inbound message at a step.
type HandleFunc func(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error)

// Step couples a prompt with its message handler. Back names the step to
// re-enter when the user presses the back button; empty means back cancels
// the whole flow.
type Step struct {
	Prompt PromptFunc
	Handle HandleFunc
	Back   string
}

// Flow is a named set of steps with a single entry point.
type Flow struct {
	Name  string
	Entry string
	Steps map[string]*Step
}

// Broadcaster delivers a message to an audience, one attempt per recipient,
// and reports how many deliveries succeeded and failed.
type Broadcaster interface {
	Broadcast(ctx context.Context, audience database.BroadcastAudience, text string) (sent, failed int, err error)
}

// Engine runs at most one active flow per user. All persisted reads and
// writes go through the injected store.
type Engine struct {
	store       database.Store
	sessions    *session.Store
	broadcaster Broadcaster
	adminCode   string
	logger      *slog.Logger

	flows map[string]*Flow
}

// New creates the engine with every supported flow registered.
func New(store database.Store, sessions *session.Store, broadcaster Broadcaster, adminCode string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		store:       store,
		sessions:    sessions,
		broadcaster: broadcaster,
		adminCode:   adminCode,
		logger:      logger.With("component", "dialog_engine"),
	}
	e.flows = map[string]*Flow{}
	for _, f := range []*Flow{
		registrationFlow(),
		adminCodeFlow(),
		exchangeFlow(),
		rateEditFlow(),
		priceEditFlow(),
		statusEditFlow(),
		broadcastFlow(),
		addShipmentFlow(),
	} {
		e.flows[f.Name] = f
	}
	return e
}

// Active reports whether the user has a flow in progress.
func (e *Engine) Active(userID int64) bool {
	return e.sessions.Active(userID)
}

// Start begins a flow for the user, replacing any active one, and returns
// the entry step's prompt.
func (e *Engine) Start(ctx context.Context, userID int64, flowName string) (Reply, error) {
	flow, ok := e.flows[flowName]
	if !ok {
		return Reply{}, fmt.Errorf("start flow: unknown flow %q", flowName)
	}

	s := e.sessions.Begin(userID, flow.Name, flow.Entry)
	reply, err := flow.Steps[flow.Entry].Prompt(ctx, e, s)
	if err != nil {
		e.sessions.Clear(userID)
		return e.abortReply(ctx, userID, flow.Name, flow.Entry, err), nil
	}

	e.logger.DebugContext(ctx, "Flow started", "user_id", userID, "flow", flow.Name)
	return reply, nil
}

// Advance feeds one inbound message into the user's active flow and returns
// the response. The second return value is false when no flow is active.
func (e *Engine) Advance(ctx context.Context, in Input) (Reply, bool) {
	s, ok := e.sessions.Get(in.UserID)
	if !ok {
		return Reply{}, false
	}

	flow, ok := e.flows[s.Flow]
	if !ok {
		// Stale session pointing at a flow that no longer exists.
		e.sessions.Clear(in.UserID)
		return Reply{}, false
	}
	step, ok := flow.Steps[s.Step]
	if !ok {
		e.sessions.Clear(in.UserID)
		return Reply{}, false
	}

	switch in.Text {
	case CancelCommand:
		e.cancel(ctx, in.UserID, flow.Name)
		return Reply{Text: msgCancelled}, true
	case BackLabel:
		if step.Back == "" {
			e.cancel(ctx, in.UserID, flow.Name)
			return Reply{Text: msgCancelled}, true
		}
		return e.enter(ctx, s, flow, step.Back, Reply{}), true
	}

	res, err := step.Handle(ctx, e, s, in)
	if err != nil {
		e.sessions.Clear(in.UserID)
		return e.abortReply(ctx, in.UserID, flow.Name, s.Step, err), true
	}

	switch {
	case res.Retry:
		return res.Reply, true
	case res.Done:
		e.sessions.Clear(in.UserID)
		e.logger.DebugContext(ctx, "Flow completed", "user_id", in.UserID, "flow", flow.Name)
		return res.Reply, true
	case res.Next != "":
		return e.enter(ctx, s, flow, res.Next, res.Reply), true
	default:
		// A handler must continue, complete, or retry.
		e.sessions.Clear(in.UserID)
		e.logger.ErrorContext(ctx, "Step returned empty result",
			"user_id", in.UserID, "flow", flow.Name, "step", s.Step)
		return Reply{Text: msgStorageDown}, true
	}
}

// enter transitions the session to a step and returns its prompt, prefixed
// with any text the previous handler produced.
func (e *Engine) enter(ctx context.Context, s *session.Session, flow *Flow, stepName string, preface Reply) Reply {
	step, ok := flow.Steps[stepName]
	if !ok {
		e.sessions.Clear(s.Owner)
		e.logger.ErrorContext(ctx, "Transition to unknown step", "flow", flow.Name, "step", stepName)
		return Reply{Text: msgStorageDown}
	}

	s.Step = stepName
	reply, err := step.Prompt(ctx, e, s)
	if err != nil {
		e.sessions.Clear(s.Owner)
		return e.abortReply(ctx, s.Owner, flow.Name, stepName, err)
	}

	if preface.Text != "" {
		reply.Text = preface.Text + "\n\n" + reply.Text
	}
	return reply
}

func (e *Engine) cancel(ctx context.Context, userID int64, flowName string) {
	e.sessions.Clear(userID)
	e.logger.DebugContext(ctx, "Flow cancelled", "user_id", userID, "flow", flowName)
}

// abortReply maps an error kind to its user-facing message. Validation never
// reaches here; handlers translate it into a retry themselves.
func (e *Engine) abortReply(ctx context.Context, userID int64, flowName, stepName string, err error) Reply {
	var text string
	switch {
	case errors.Is(err, database.ErrNotFound):
		text = msgNotFound
	case errors.Is(err, database.ErrAlreadyExists):
		text = msgDuplicate
	default:
		text = msgStorageDown
	}

	e.logger.ErrorContext(ctx, "Flow aborted",
		"user_id", userID, "flow", flowName, "step", stepName, "error", err)
	return Reply{Text: text}
}
