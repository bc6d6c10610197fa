package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })

	return NewStore(db, nil)
}

func registerTestUser(t *testing.T, store Store, telegramID int64) string {
	t.Helper()

	code, err := store.RegisterUser(context.Background(), RegisterUserParams{
		TelegramID:  telegramID,
		Username:    "testuser",
		FirstName:   "Ivan",
		LastName:    "Petrov",
		PhoneNumber: "+79161234567",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return code
}

func TestRegisterUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	code := registerTestUser(t, store, 100)
	if !strings.HasPrefix(code, "GD-IP4567") {
		t.Errorf("customer code = %q, want prefix GD-IP4567", code)
	}

	user, err := store.GetUser(ctx, 100)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.CustomerCode != code {
		t.Errorf("stored code = %q, want %q", user.CustomerCode, code)
	}
	if !user.Balance.IsZero() {
		t.Errorf("initial balance = %s, want 0", user.Balance)
	}

	// Re-registration keeps the code and updates profile fields.
	again, err := store.RegisterUser(ctx, RegisterUserParams{
		TelegramID:  100,
		Username:    "renamed",
		FirstName:   "Ivan",
		LastName:    "Petrov",
		PhoneNumber: "+79161234567",
	})
	if err != nil {
		t.Fatalf("RegisterUser again: %v", err)
	}
	if again != code {
		t.Errorf("re-registration code = %q, want %q", again, code)
	}

	user, err = store.GetUser(ctx, 100)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Username != "renamed" {
		t.Errorf("username = %q, want renamed", user.Username)
	}
}

func TestRegisterUserNeverDemotesAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RegisterUser(ctx, RegisterUserParams{
		TelegramID: 200, FirstName: "Anna", PhoneNumber: "admin", IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("RegisterUser admin: %v", err)
	}

	// A later registration without the admin flag must not strip it.
	_, err = store.RegisterUser(ctx, RegisterUserParams{
		TelegramID: 200, FirstName: "Anna", PhoneNumber: "+79160000000",
	})
	if err != nil {
		t.Fatalf("RegisterUser again: %v", err)
	}

	isAdmin, err := store.IsAdmin(ctx, 200)
	if err != nil {
		t.Fatalf("IsAdmin: %v", err)
	}
	if !isAdmin {
		t.Error("admin flag was demoted by re-registration")
	}
}

func TestIsAdminUnknownUser(t *testing.T) {
	store := newTestStore(t)

	isAdmin, err := store.IsAdmin(context.Background(), 999)
	if err != nil {
		t.Fatalf("IsAdmin: %v", err)
	}
	if isAdmin {
		t.Error("unknown user reported as admin")
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUser(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser error = %v, want ErrNotFound", err)
	}
}

func TestUpdateBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	registerTestUser(t, store, 300)

	balance, err := store.UpdateBalance(ctx, 300, decimal.RequireFromString("150.50"))
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if balance.String() != "150.5" {
		t.Errorf("balance = %s, want 150.5", balance)
	}

	balance, err = store.UpdateBalance(ctx, 300, decimal.RequireFromString("-50.50"))
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if balance.String() != "100" {
		t.Errorf("balance = %s, want 100", balance)
	}

	if _, err := store.UpdateBalance(ctx, 999, decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateBalance unknown user error = %v, want ErrNotFound", err)
	}
}

func TestExchangeRates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rates, err := store.ListExchangeRates(ctx)
	if err != nil {
		t.Fatalf("ListExchangeRates: %v", err)
	}
	if len(rates) != 3 {
		t.Fatalf("got %d rates, want 3 seeded", len(rates))
	}
	// Ordered by currency code.
	if rates[0].CurrencyCode != "CNY" || rates[1].CurrencyCode != "EUR" || rates[2].CurrencyCode != "USD" {
		t.Errorf("unexpected rate order: %v %v %v",
			rates[0].CurrencyCode, rates[1].CurrencyCode, rates[2].CurrencyCode)
	}

	if err := store.UpdateExchangeRate(ctx, "USD", decimal.RequireFromString("97.25")); err != nil {
		t.Fatalf("UpdateExchangeRate: %v", err)
	}
	rates, err = store.ListExchangeRates(ctx)
	if err != nil {
		t.Fatalf("ListExchangeRates: %v", err)
	}
	if got := rates[2].Rate.String(); got != "97.25" {
		t.Errorf("USD rate = %s, want 97.25", got)
	}

	err = store.UpdateExchangeRate(ctx, "GBP", decimal.NewFromInt(120))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateExchangeRate unknown currency error = %v, want ErrNotFound", err)
	}
}

func TestDeliveryMethods(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	methods, err := store.ListDeliveryMethods(ctx, "")
	if err != nil {
		t.Fatalf("ListDeliveryMethods: %v", err)
	}
	if len(methods) != 3 {
		t.Fatalf("got %d methods, want 3 seeded", len(methods))
	}

	ground, err := store.ListDeliveryMethods(ctx, "ground")
	if err != nil {
		t.Fatalf("ListDeliveryMethods ground: %v", err)
	}
	if len(ground) != 2 {
		t.Errorf("got %d ground methods, want 2", len(ground))
	}

	if err := store.UpdateDeliveryPrice(ctx, "avia", decimal.RequireFromString("9.5")); err != nil {
		t.Fatalf("UpdateDeliveryPrice: %v", err)
	}
	if err := store.UpdateDeliveryDays(ctx, "avia", 2, 5); err != nil {
		t.Fatalf("UpdateDeliveryDays: %v", err)
	}

	methods, err = store.ListDeliveryMethods(ctx, "air")
	if err != nil {
		t.Fatalf("ListDeliveryMethods air: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d air methods, want 1", len(methods))
	}
	if methods[0].PricePerKg.String() != "9.5" || methods[0].MinDays != 2 || methods[0].MaxDays != 5 {
		t.Errorf("avia after update = %s %d-%d, want 9.5 2-5",
			methods[0].PricePerKg, methods[0].MinDays, methods[0].MaxDays)
	}

	if err := store.UpdateDeliveryPrice(ctx, "sea", decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDeliveryPrice unknown method error = %v, want ErrNotFound", err)
	}
}

func TestShipments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	registerTestUser(t, store, 400)

	if err := store.AddShipment(ctx, 400, "ab123", "кроссовки", decimal.RequireFromString("45.00")); err != nil {
		t.Fatalf("AddShipment: %v", err)
	}

	// Track codes are stored uppercase and looked up case-insensitively.
	sh, err := store.GetShipmentByTrackCode(ctx, "Ab123")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if sh.TrackCode != "AB123" {
		t.Errorf("track code = %q, want AB123", sh.TrackCode)
	}
	if sh.Status != StatusPending {
		t.Errorf("status = %q, want pending", sh.Status)
	}
	if !sh.CustomerCode.Valid {
		t.Error("customer code not joined for assigned shipment")
	}

	// Duplicate track code is rejected, existing record untouched.
	err = store.AddShipment(ctx, 0, "AB123", "другое", decimal.NewFromInt(1))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate AddShipment error = %v, want ErrAlreadyExists", err)
	}
	sh, err = store.GetShipmentByTrackCode(ctx, "AB123")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if sh.Description != "кроссовки" {
		t.Errorf("description changed by failed insert: %q", sh.Description)
	}

	// Unassigned shipment.
	if err := store.AddShipment(ctx, 0, "CD456", "", decimal.Zero); err != nil {
		t.Fatalf("AddShipment unassigned: %v", err)
	}
	sh, err = store.GetShipmentByTrackCode(ctx, "CD456")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if sh.UserID.Valid {
		t.Error("unassigned shipment has an owner")
	}

	if err := store.UpdateShipmentStatus(ctx, sh.ID, StatusDelivered); err != nil {
		t.Fatalf("UpdateShipmentStatus: %v", err)
	}
	if err := store.UpdateShipmentStatus(ctx, sh.ID, "lost"); err == nil {
		t.Error("UpdateShipmentStatus accepted unknown status")
	}
	if err := store.UpdateShipmentStatus(ctx, 9999, StatusDelivered); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateShipmentStatus unknown id error = %v, want ErrNotFound", err)
	}

	owned, err := store.ListShipmentsForUser(ctx, 400)
	if err != nil {
		t.Fatalf("ListShipmentsForUser: %v", err)
	}
	if len(owned) != 1 || owned[0].TrackCode != "AB123" {
		t.Errorf("owned shipments = %v, want only AB123", owned)
	}

	recent, err := store.ListRecentShipments(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentShipments: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d recent shipments, want 2", len(recent))
	}
}

func TestComputeStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	registerTestUser(t, store, 500)
	if _, err := store.RegisterUser(ctx, RegisterUserParams{
		TelegramID: 501, FirstName: "Boss", PhoneNumber: "admin", IsAdmin: true,
	}); err != nil {
		t.Fatalf("RegisterUser admin: %v", err)
	}

	if err := store.AddShipment(ctx, 500, "ST1", "", decimal.Zero); err != nil {
		t.Fatalf("AddShipment: %v", err)
	}
	if err := store.AddShipment(ctx, 500, "ST2", "", decimal.Zero); err != nil {
		t.Fatalf("AddShipment: %v", err)
	}
	sh, err := store.GetShipmentByTrackCode(ctx, "ST2")
	if err != nil {
		t.Fatalf("GetShipmentByTrackCode: %v", err)
	}
	if err := store.UpdateShipmentStatus(ctx, sh.ID, StatusDelivered); err != nil {
		t.Fatalf("UpdateShipmentStatus: %v", err)
	}

	stats, err := store.ComputeStatistics(ctx)
	if err != nil {
		t.Fatalf("ComputeStatistics: %v", err)
	}
	if stats.UserCount != 2 || stats.AdminCount != 1 || stats.ShipmentCount != 2 || stats.DeliveredCount != 1 {
		t.Errorf("stats = %+v, want users 2, admins 1, shipments 2, delivered 1", stats)
	}
}

func TestListBroadcastRecipients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	registerTestUser(t, store, 600)
	registerTestUser(t, store, 601)
	if _, err := store.RegisterUser(ctx, RegisterUserParams{
		TelegramID: 602, FirstName: "Boss", PhoneNumber: "admin", IsAdmin: true,
	}); err != nil {
		t.Fatalf("RegisterUser admin: %v", err)
	}
	if err := store.AddShipment(ctx, 600, "BR1", "", decimal.Zero); err != nil {
		t.Fatalf("AddShipment: %v", err)
	}

	tests := []struct {
		audience BroadcastAudience
		want     int
	}{
		{AudienceAll, 3},
		{AudienceWithShipments, 1},
		{AudienceAdmins, 1},
	}
	for _, tt := range tests {
		ids, err := store.ListBroadcastRecipients(ctx, tt.audience)
		if err != nil {
			t.Fatalf("ListBroadcastRecipients(%s): %v", tt.audience, err)
		}
		if len(ids) != tt.want {
			t.Errorf("audience %s: got %d recipients, want %d", tt.audience, len(ids), tt.want)
		}
	}

	if _, err := store.ListBroadcastRecipients(ctx, "everyone"); err == nil {
		t.Error("unknown audience accepted")
	}
}

func TestRunMaintenance(t *testing.T) {
	store := newTestStore(t)

	if err := store.RunMaintenance(context.Background()); err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
}

func TestStatusFromLabel(t *testing.T) {
	tests := []struct {
		label string
		want  ShipmentStatus
		ok    bool
	}{
		{"В пути", StatusInTransit, true},
		{"🚚 В пути", StatusInTransit, true},
		{"📦 На складе", StatusAtWarehouse, true},
		{"Доставлен", StatusDelivered, true},
		{"неизвестно", "", false},
	}
	for _, tt := range tests {
		got, ok := StatusFromLabel(tt.label)
		if ok != tt.ok || got != tt.want {
			t.Errorf("StatusFromLabel(%q) = %q, %v; want %q, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCodeInitials(t *testing.T) {
	tests := []struct {
		first, last string
		want        string
	}{
		{"Ivan", "Petrov", "IP"},
		{"Иван", "Петров", "IP"},
		{"Ольга", "Ёлкина", "OE"},
		{"Чингиз", "Щербаков", "CS"},
		{"иван", "петров", "IP"},
		{"123", "Smith", "XS"},
		{"", "", "XX"},
	}
	for _, tt := range tests {
		if got := codeInitials(tt.first, tt.last); got != tt.want {
			t.Errorf("codeInitials(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestRegisterUserCyrillicName(t *testing.T) {
	store := newTestStore(t)

	code, err := store.RegisterUser(context.Background(), RegisterUserParams{
		TelegramID:  77,
		FirstName:   "Иван",
		LastName:    "Петров",
		PhoneNumber: "+79161234567",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if !strings.HasPrefix(code, "GD-IP4567") {
		t.Errorf("customer code = %q, want prefix GD-IP4567", code)
	}
}
