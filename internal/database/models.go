package database

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered customer of the forwarding service.
// The customer code is unique and immutable once assigned; the balance
// changes only through explicit delta operations.
type User struct {
	ID           int64           `db:"id"`
	TelegramID   int64           `db:"telegram_id"`
	Username     string          `db:"username"`
	FirstName    string          `db:"first_name"`
	LastName     string          `db:"last_name"`
	PhoneNumber  string          `db:"phone_number"`
	CustomerCode string          `db:"customer_code"`
	Balance      decimal.Decimal `db:"balance"`
	IsAdmin      bool            `db:"is_admin"`
	RegisteredAt time.Time       `db:"registered_at"`
}

// ExchangeRate holds the rate of one currency to the base currency (RUB).
// Exactly one row exists per currency code.
type ExchangeRate struct {
	CurrencyCode string          `db:"currency_code"`
	Name         string          `db:"name"`
	Flag         string          `db:"flag"`
	Rate         decimal.Decimal `db:"rate"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// DeliveryMethod describes one shipping option with its per-kilogram price
// and transit day range (min <= max).
type DeliveryMethod struct {
	MethodCode  string          `db:"method_code"`
	MethodName  string          `db:"method_name"`
	Icon        string          `db:"icon"`
	PricePerKg  decimal.Decimal `db:"price_per_kg"`
	MinDays     int             `db:"min_days"`
	MaxDays     int             `db:"max_days"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Shipment is a unit of cargo tracked by its unique track code. The owning
// user may be unassigned. Shipments are never deleted.
type Shipment struct {
	ID          int64           `db:"id"`
	TrackCode   string          `db:"track_code"`
	UserID      sql.NullInt64   `db:"user_id"`
	Status      ShipmentStatus  `db:"status"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	CreatedAt   time.Time       `db:"created_at"`

	// CustomerCode is filled by queries joining the owning user; empty when
	// the shipment is unassigned.
	CustomerCode sql.NullString `db:"customer_code"`
}

// Statistics aggregates counters shown in the admin panel.
type Statistics struct {
	UserCount      int `db:"user_count"`
	AdminCount     int `db:"admin_count"`
	ShipmentCount  int `db:"shipment_count"`
	DeliveredCount int `db:"delivered_count"`
}

// ShipmentStatus enumerates the closed set of shipment states. Transitions
// are unrestricted: an admin may set any status from any status.
type ShipmentStatus string

const (
	StatusPending     ShipmentStatus = "pending"
	StatusInTransit   ShipmentStatus = "in_transit"
	StatusAtWarehouse ShipmentStatus = "at_warehouse"
	StatusDelivered   ShipmentStatus = "delivered"
	StatusCancelled   ShipmentStatus = "cancelled"
)

// AllStatuses lists every status in display order.
var AllStatuses = []ShipmentStatus{
	StatusPending,
	StatusDelivered,
	StatusCancelled,
	StatusInTransit,
	StatusAtWarehouse,
}

var statusLabels = map[ShipmentStatus]string{
	StatusPending:     "В обработке",
	StatusInTransit:   "В пути",
	StatusAtWarehouse: "На складе",
	StatusDelivered:   "Доставлен",
	StatusCancelled:   "Отменен",
}

// Valid reports whether s belongs to the closed status set.
func (s ShipmentStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable status name.
func (s ShipmentStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Icon returns the traffic-light glyph: yellow for pending, green for
// delivered, red for everything else.
func (s ShipmentStatus) Icon() string {
	switch s {
	case StatusPending:
		return "🟡"
	case StatusDelivered:
		return "🟢"
	default:
		return "🔴"
	}
}

// AdminIcon returns the glyph used in the admin shipment list, where
// in-transit and at-warehouse have their own symbols.
func (s ShipmentStatus) AdminIcon() string {
	switch s {
	case StatusInTransit:
		return "🚚"
	case StatusAtWarehouse:
		return "📦"
	default:
		return s.Icon()
	}
}

// StatusFromLabel resolves a display label (with or without a leading glyph)
// back to its status. Returns false when the label matches nothing.
func StatusFromLabel(label string) (ShipmentStatus, bool) {
	for s, l := range statusLabels {
		if label == l || label == s.AdminIcon()+" "+l {
			return s, true
		}
	}
	return "", false
}

// BroadcastAudience selects the recipient set for a notification fan-out.
type BroadcastAudience string

const (
	AudienceAll           BroadcastAudience = "all"
	AudienceWithShipments BroadcastAudience = "with_shipments"
	AudienceAdmins        BroadcastAudience = "admins"
)
