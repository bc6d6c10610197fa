package dialog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

type fakeBroadcaster struct {
	audience database.BroadcastAudience
	text     string
	sent     int
	failed   int
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, audience database.BroadcastAudience, text string) (int, int, error) {
	f.audience = audience
	f.text = text
	return f.sent, f.failed, nil
}

func newTestEngine(t *testing.T) (*Engine, database.Store, *fakeBroadcaster) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	bc := &fakeBroadcaster{}
	engine := New(store, session.NewStore(), bc, "secret123", nil)
	return engine, store, bc
}

func advance(t *testing.T, e *Engine, in Input) Reply {
	t.Helper()

	reply, ok := e.Advance(context.Background(), in)
	if !ok {
		t.Fatalf("Advance(%q): no active flow", in.Text)
	}
	return reply
}

func TestRegistrationFlow(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	reply, err := engine.Start(ctx, 10, FlowRegistration)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !reply.RequestContact {
		t.Error("registration prompt does not request a contact")
	}

	// Plain text instead of a contact retries the same step.
	reply = advance(t, engine, Input{UserID: 10, Text: "привет"})
	if !reply.RequestContact {
		t.Error("retry prompt does not request a contact")
	}
	if !engine.Active(10) {
		t.Fatal("flow dropped after invalid input")
	}

	// A forwarded contact belonging to someone else is rejected.
	reply = advance(t, engine, Input{
		UserID:  10,
		Contact: &Contact{UserID: 11, PhoneNumber: "+70000000000"},
	})
	if !engine.Active(10) {
		t.Fatal("flow dropped after foreign contact")
	}

	reply = advance(t, engine, Input{
		UserID:    10,
		FirstName: "Ivan",
		LastName:  "Petrov",
		Contact:   &Contact{UserID: 10, PhoneNumber: "+79161234567"},
	})
	if !strings.Contains(reply.Text, "GD-") {
		t.Errorf("completion reply lacks a customer code: %q", reply.Text)
	}
	if engine.Active(10) {
		t.Error("session not cleared after completion")
	}

	if _, err := store.GetUser(ctx, 10); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestAdminCodeFlow(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Start(ctx, 20, FlowAdminCode); err != nil {
		t.Fatalf("Start: %v", err)
	}

	advance(t, engine, Input{UserID: 20, Text: "wrong"})
	if !engine.Active(20) {
		t.Fatal("flow dropped after wrong code")
	}
	if isAdmin, _ := store.IsAdmin(ctx, 20); isAdmin {
		t.Fatal("wrong code granted admin")
	}

	reply := advance(t, engine, Input{UserID: 20, Text: "secret123", FirstName: "Anna"})
	if !strings.Contains(reply.Text, "администратор") {
		t.Errorf("unexpected completion reply: %q", reply.Text)
	}
	if isAdmin, _ := store.IsAdmin(ctx, 20); !isAdmin {
		t.Error("correct code did not grant admin")
	}
}

func TestExchangeFlow(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	reply, err := engine.Start(ctx, 30, FlowExchange)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(reply.Keyboard) == 0 {
		t.Fatal("currency prompt has no keyboard")
	}

	advance(t, engine, Input{UserID: 30, Text: "🇺🇸 USD (Доллар США)"})
	advance(t, engine, Input{UserID: 30, Text: "🇪🇺 EUR (Евро)"})

	// Seeded rates: USD 95, EUR 105. 100 USD = 9500 RUB = 90.48 EUR.
	reply = advance(t, engine, Input{UserID: 30, Text: "100"})
	if !strings.Contains(reply.Text, "90.48") {
		t.Errorf("conversion result missing from reply: %q", reply.Text)
	}
	if engine.Active(30) {
		t.Error("session not cleared after completion")
	}
}

func TestExchangeFlowRejectsSameCurrency(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Start(context.Background(), 31, FlowExchange); err != nil {
		t.Fatalf("Start: %v", err)
	}
	advance(t, engine, Input{UserID: 31, Text: "USD"})
	advance(t, engine, Input{UserID: 31, Text: "USD"})

	// Still on the target step: a valid target must complete the flow.
	advance(t, engine, Input{UserID: 31, Text: "RUB"})
	reply := advance(t, engine, Input{UserID: 31, Text: "1"})
	if !strings.Contains(reply.Text, "95.00") {
		t.Errorf("expected 1 USD = 95.00 RUB in reply: %q", reply.Text)
	}
}

func TestExchangeFlowBackNavigation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Start(context.Background(), 32, FlowExchange); err != nil {
		t.Fatalf("Start: %v", err)
	}
	advance(t, engine, Input{UserID: 32, Text: "USD"})
	advance(t, engine, Input{UserID: 32, Text: "EUR"})

	// Back from the amount step lands on target selection again.
	reply := advance(t, engine, Input{UserID: 32, Text: BackLabel})
	if !strings.Contains(reply.Text, "получить") {
		t.Errorf("back did not return to target selection: %q", reply.Text)
	}
	if !engine.Active(32) {
		t.Fatal("back navigation dropped the flow")
	}

	// Back from the entry step cancels the flow entirely.
	reply = advance(t, engine, Input{UserID: 32, Text: BackLabel})
	if !engine.Active(32) {
		t.Fatal("still expected active flow on source step")
	}
	reply = advance(t, engine, Input{UserID: 32, Text: BackLabel})
	if reply.Text != msgCancelled {
		t.Errorf("back on entry step reply = %q, want cancellation", reply.Text)
	}
	if engine.Active(32) {
		t.Error("session survives cancellation")
	}
}

func TestCancelCommandAbortsAnyFlow(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for _, flow := range []string{FlowRegistration, FlowExchange, FlowAdminCode} {
		if _, err := engine.Start(context.Background(), 40, flow); err != nil {
			t.Fatalf("Start(%s): %v", flow, err)
		}
		reply := advance(t, engine, Input{UserID: 40, Text: CancelCommand})
		if reply.Text != msgCancelled {
			t.Errorf("flow %s: cancel reply = %q", flow, reply.Text)
		}
		if engine.Active(40) {
			t.Errorf("flow %s: session survives /cancel", flow)
		}
	}
}

func TestBroadcastFlow(t *testing.T) {
	engine, store, bc := newTestEngine(t)
	ctx := context.Background()
	bc.sent = 2
	bc.failed = 1

	for id := int64(50); id < 53; id++ {
		if _, err := store.RegisterUser(ctx, database.RegisterUserParams{
			TelegramID: id, FirstName: "U", PhoneNumber: "+79160000000",
		}); err != nil {
			t.Fatalf("RegisterUser: %v", err)
		}
	}

	if _, err := engine.Start(ctx, 50, FlowBroadcast); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply := advance(t, engine, Input{UserID: 50, Text: "📢 Всем пользователям"})
	if !strings.Contains(reply.Text, "Получателей: 3") {
		t.Errorf("recipient count missing: %q", reply.Text)
	}

	reply = advance(t, engine, Input{UserID: 50, Text: "Склад закрыт 1 мая"})
	if bc.audience != database.AudienceAll {
		t.Errorf("audience = %q, want all", bc.audience)
	}
	if bc.text != "Склад закрыт 1 мая" {
		t.Errorf("broadcast text = %q", bc.text)
	}
	if !strings.Contains(reply.Text, "Успешно: 2") || !strings.Contains(reply.Text, "Не удалось: 1") {
		t.Errorf("result summary mismatch: %q", reply.Text)
	}
}

func TestRateEditFlow(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Start(ctx, 70, FlowRateEdit); err != nil {
		t.Fatalf("Start: %v", err)
	}

	advance(t, engine, Input{UserID: 70, Text: "🇺🇸 USD (Доллар США) (текущий: 95 RUB)"})

	// Garbage retries the same step.
	advance(t, engine, Input{UserID: 70, Text: "дорого"})
	if !engine.Active(70) {
		t.Fatal("flow dropped after invalid rate")
	}

	reply := advance(t, engine, Input{UserID: 70, Text: "97,25"})
	if !strings.Contains(reply.Text, "97.25") {
		t.Errorf("completion reply = %q", reply.Text)
	}

	rates, err := store.ListExchangeRates(ctx)
	if err != nil {
		t.Fatalf("ListExchangeRates: %v", err)
	}
	for _, r := range rates {
		if r.CurrencyCode == "USD" && r.Rate.String() != "97.25" {
			t.Errorf("USD rate = %s, want 97.25", r.Rate)
		}
	}
}

func TestPriceEditFlowDays(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Start(ctx, 71, FlowPriceEdit); err != nil {
		t.Fatalf("Start: %v", err)
	}

	advance(t, engine, Input{UserID: 71, Text: "✈️ Авиа ($8/кг)"})
	advance(t, engine, Input{UserID: 71, Text: "📅 Изменить сроки доставки"})

	// Inverted range is rejected and the step retries.
	advance(t, engine, Input{UserID: 71, Text: "7-3"})
	if !engine.Active(71) {
		t.Fatal("flow dropped after inverted day range")
	}

	reply := advance(t, engine, Input{UserID: 71, Text: "2-5"})
	if !strings.Contains(reply.Text, "2-5") {
		t.Errorf("completion reply = %q", reply.Text)
	}

	methods, err := store.ListDeliveryMethods(ctx, "air")
	if err != nil {
		t.Fatalf("ListDeliveryMethods: %v", err)
	}
	if methods[0].MinDays != 2 || methods[0].MaxDays != 5 {
		t.Errorf("avia days = %d-%d, want 2-5", methods[0].MinDays, methods[0].MaxDays)
	}
}

func TestStatusEditFlow(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.RegisterUser(ctx, database.RegisterUserParams{
		TelegramID: 72, FirstName: "Ivan", PhoneNumber: "+79161234567",
	}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := store.AddShipment(ctx, 72, "TRK1", "", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("AddShipment: %v", err)
	}

	reply, err := engine.Start(ctx, 72, FlowStatusEdit)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(reply.Text, "TRK1") {
		t.Fatalf("shipment list missing from prompt: %q", reply.Text)
	}

	advance(t, engine, Input{UserID: 72, Text: "TRK1 - В обработке"})
	reply = advance(t, engine, Input{UserID: 72, Text: "🚚 В пути"})
	if !strings.Contains(reply.Text, "В пути") {
		t.Errorf("completion reply = %q", reply.Text)
	}

	sh, err := store.GetShipmentByTrackCode(ctx, "TRK1")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if sh.Status != database.StatusInTransit {
		t.Errorf("status = %q, want in_transit", sh.Status)
	}
}

func TestStatusEditFlowWithoutShipments(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	// No shipments at all: the flow aborts on entry with a user-facing
	// message instead of an error.
	reply, err := engine.Start(context.Background(), 73, FlowStatusEdit)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.Text != msgNotFound {
		t.Errorf("empty-list reply = %q, want %q", reply.Text, msgNotFound)
	}
	if engine.Active(73) {
		t.Error("session left active after aborted entry")
	}
}

func TestAddShipmentFlow(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.RegisterUser(ctx, database.RegisterUserParams{
		TelegramID: 74, FirstName: "Ivan", PhoneNumber: "+79161234567",
	}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if _, err := engine.Start(ctx, 74, FlowAddShipment); err != nil {
		t.Fatalf("Start: %v", err)
	}
	advance(t, engine, Input{UserID: 74, Text: "ab99"})
	advance(t, engine, Input{UserID: 74, Text: "кроссовки"})
	reply := advance(t, engine, Input{UserID: 74, Text: "25.50"})
	if !strings.Contains(reply.Text, "AB99") {
		t.Errorf("completion reply = %q", reply.Text)
	}

	sh, err := store.GetShipmentByTrackCode(ctx, "AB99")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if sh.Description != "кроссовки" || sh.Price.String() != "25.5" {
		t.Errorf("shipment = %+v", sh)
	}

	// A duplicate track code aborts with the duplicate message.
	if _, err := engine.Start(ctx, 74, FlowAddShipment); err != nil {
		t.Fatalf("Start: %v", err)
	}
	advance(t, engine, Input{UserID: 74, Text: "AB99"})
	advance(t, engine, Input{UserID: 74, Text: "другое"})
	reply = advance(t, engine, Input{UserID: 74, Text: "1"})
	if reply.Text != msgDuplicate {
		t.Errorf("duplicate reply = %q, want %q", reply.Text, msgDuplicate)
	}
	if engine.Active(74) {
		t.Error("session left active after aborted flow")
	}
}

func TestAdvanceWithoutActiveFlow(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, ok := engine.Advance(context.Background(), Input{UserID: 60, Text: "привет"}); ok {
		t.Error("Advance claimed a message with no active flow")
	}
}
