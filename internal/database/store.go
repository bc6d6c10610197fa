package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Store is the data access facade: the only component allowed to read and
// write persisted entities. Every operation is a single statement or a
// read-then-write pair; none spans the notification fan-out.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RegisterUser is idempotent: if the telegram identity already has a
	// record, profile fields are updated and the existing customer code is
	// returned unchanged. The admin flag may be promoted but never demoted.
	RegisterUser(ctx context.Context, p RegisterUserParams) (string, error)

	// GetUser retrieves a user by telegram identity. Returns ErrNotFound
	// if absent.
	GetUser(ctx context.Context, telegramID int64) (*User, error)

	// IsAdmin reports whether the identity has an admin user record.
	// Unknown identities are not admins.
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)

	// UpdateBalance adds delta to the user's balance and returns the new
	// value. Single admin operator assumed; no cross-process locking.
	UpdateBalance(ctx context.Context, telegramID int64, delta decimal.Decimal) (decimal.Decimal, error)

	// ListExchangeRates returns all rates ordered by currency code.
	ListExchangeRates(ctx context.Context) ([]ExchangeRate, error)

	// UpdateExchangeRate overwrites the rate for a currency code.
	UpdateExchangeRate(ctx context.Context, currencyCode string, rate decimal.Decimal) error

	// ListDeliveryMethods returns delivery methods, optionally filtered by
	// category (empty string means all).
	ListDeliveryMethods(ctx context.Context, category string) ([]DeliveryMethod, error)

	// UpdateDeliveryPrice overwrites the per-kilogram price for a method.
	UpdateDeliveryPrice(ctx context.Context, methodCode string, price decimal.Decimal) error

	// UpdateDeliveryDays overwrites the transit day range for a method.
	UpdateDeliveryDays(ctx context.Context, methodCode string, minDays, maxDays int) error

	// AddShipment inserts a new shipment. Returns ErrAlreadyExists if the
	// track code is taken; the existing record is left unmodified.
	// ownerTelegramID of zero leaves the shipment unassigned.
	AddShipment(ctx context.Context, ownerTelegramID int64, trackCode, description string, price decimal.Decimal) error

	// UpdateShipmentStatus overwrites a shipment's status.
	UpdateShipmentStatus(ctx context.Context, shipmentID int64, status ShipmentStatus) error

	// ListRecentShipments returns the most recently created shipments with
	// the owning customer code joined in.
	ListRecentShipments(ctx context.Context, limit int) ([]Shipment, error)

	// ListShipmentsForUser returns all shipments owned by the identity,
	// newest first.
	ListShipmentsForUser(ctx context.Context, telegramID int64) ([]Shipment, error)

	// GetShipmentByTrackCode looks up a shipment by its track code. The
	// code is matched case-insensitively (stored uppercase).
	GetShipmentByTrackCode(ctx context.Context, trackCode string) (*Shipment, error)

	// ComputeStatistics returns the admin-panel counters.
	ComputeStatistics(ctx context.Context) (*Statistics, error)

	// ListBroadcastRecipients resolves an audience selector to telegram
	// identities.
	ListBroadcastRecipients(ctx context.Context, audience BroadcastAudience) ([]int64, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// RegisterUserParams carries the profile fields captured during the
// registration or admin-code dialogs.
type RegisterUserParams struct {
	TelegramID  int64
	Username    string
	FirstName   string
	LastName    string
	PhoneNumber string
	IsAdmin     bool
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// storeError maps a low-level database error onto the facade error kinds so
// callers can pattern-match with errors.Is instead of catching broadly.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *sqlxStore) RegisterUser(ctx context.Context, p RegisterUserParams) (string, error) {
	if p.TelegramID == 0 {
		return "", fmt.Errorf("register user: telegram id must be non-zero")
	}

	existing, err := s.GetUser(ctx, p.TelegramID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if existing != nil {
		// Update profile fields, keep the customer code unchanged. The
		// admin flag is only ever promoted here.
		query := `
			UPDATE users
			SET username = ?, first_name = ?, last_name = ?, phone_number = ?,
			    is_admin = CASE WHEN ? THEN 1 ELSE is_admin END
			WHERE telegram_id = ?;
		`
		if _, err := s.db.ExecContext(ctx, query,
			p.Username, p.FirstName, p.LastName, p.PhoneNumber, p.IsAdmin, p.TelegramID); err != nil {
			return "", storeError("register user: update profile", err)
		}
		s.logger.DebugContext(ctx, "Existing user re-registered",
			"telegram_id", p.TelegramID, "customer_code", existing.CustomerCode)
		return existing.CustomerCode, nil
	}

	code, err := s.generateCustomerCode(ctx, p.FirstName, p.LastName, p.PhoneNumber)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name, phone_number,
		                   customer_code, balance, is_admin, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, '0', ?, ?);
	`
	if _, err := s.db.ExecContext(ctx, query,
		p.TelegramID, p.Username, p.FirstName, p.LastName, p.PhoneNumber,
		code, p.IsAdmin, time.Now().UTC()); err != nil {
		return "", storeError("register user: insert", err)
	}

	s.logger.InfoContext(ctx, "User registered",
		"telegram_id", p.TelegramID, "customer_code", code, "is_admin", p.IsAdmin)
	return code, nil
}

// generateCustomerCode derives a code from the profile initials and the last
// phone digits, falling back to random suffixes on collision.
func (s *sqlxStore) generateCustomerCode(ctx context.Context, firstName, lastName, phone string) (string, error) {
	base := "GD-" + codeInitials(firstName, lastName) + lastPhoneDigits(phone, 4)

	candidate := base
	for attempt := 0; attempt < 10; attempt++ {
		var n int
		err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE customer_code = ?;`, candidate)
		if err != nil {
			return "", storeError("generate customer code", err)
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%02d", base, rand.Intn(100))
	}
	// Extremely crowded code space for these initials; go fully random.
	return fmt.Sprintf("GD-%c%c%05d", 'A'+rand.Intn(26), 'A'+rand.Intn(26), rand.Intn(100000)), nil
}

// initialTranslit maps uppercase Cyrillic letters to a Latin initial so
// customer codes stay readable inside the Latin GD- scheme.
var initialTranslit = map[rune]byte{
	'А': 'A', 'Б': 'B', 'В': 'V', 'Г': 'G', 'Д': 'D', 'Е': 'E', 'Ё': 'E',
	'Ж': 'Z', 'З': 'Z', 'И': 'I', 'Й': 'I', 'К': 'K', 'Л': 'L', 'М': 'M',
	'Н': 'N', 'О': 'O', 'П': 'P', 'Р': 'R', 'С': 'S', 'Т': 'T', 'У': 'U',
	'Ф': 'F', 'Х': 'H', 'Ц': 'C', 'Ч': 'C', 'Ш': 'S', 'Щ': 'S', 'Ы': 'Y',
	'Э': 'E', 'Ю': 'U', 'Я': 'Y',
}

func codeInitials(firstName, lastName string) string {
	initial := func(name string) byte {
		for _, r := range name {
			if !unicode.IsLetter(r) {
				continue
			}
			u := unicode.ToUpper(r)
			if u >= 'A' && u <= 'Z' {
				return byte(u)
			}
			if b, ok := initialTranslit[u]; ok {
				return b
			}
		}
		return 'X'
	}
	return string([]byte{initial(firstName), initial(lastName)})
}

func lastPhoneDigits(phone string, n int) string {
	var digits []byte
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}
	for len(digits) < n {
		digits = append(digits, byte('0'+rand.Intn(10)))
	}
	return string(digits[len(digits)-n:])
}

func (s *sqlxStore) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, telegram_id, username, first_name, last_name, phone_number,
		       customer_code, balance, is_admin, registered_at
		FROM users WHERE telegram_id = ?;
	`, telegramID)
	if err != nil {
		return nil, storeError("get user", err)
	}
	return &u, nil
}

func (s *sqlxStore) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	var isAdmin bool
	err := s.db.GetContext(ctx, &isAdmin,
		`SELECT is_admin FROM users WHERE telegram_id = ?;`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("is admin", err)
	}
	return isAdmin, nil
}

func (s *sqlxStore) UpdateBalance(ctx context.Context, telegramID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, storeError("update balance: begin", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back balance transaction", "error", rollbackErr)
			}
		}
	}()

	var balance decimal.Decimal
	if err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM users WHERE telegram_id = ?;`, telegramID); err != nil {
		return decimal.Zero, storeError("update balance: read", err)
	}

	newBalance := balance.Add(delta)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = ? WHERE telegram_id = ?;`, newBalance, telegramID); err != nil {
		return decimal.Zero, storeError("update balance: write", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, storeError("update balance: commit", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Balance updated",
		"telegram_id", telegramID, "delta", delta.String(), "balance", newBalance.String())
	return newBalance, nil
}

func (s *sqlxStore) ListExchangeRates(ctx context.Context) ([]ExchangeRate, error) {
	var rates []ExchangeRate
	err := s.db.SelectContext(ctx, &rates, `
		SELECT currency_code, name, flag, rate, updated_at
		FROM exchange_rates ORDER BY currency_code;
	`)
	if err != nil {
		return nil, storeError("list exchange rates", err)
	}
	return rates, nil
}

func (s *sqlxStore) UpdateExchangeRate(ctx context.Context, currencyCode string, rate decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exchange_rates SET rate = ?, updated_at = ? WHERE currency_code = ?;
	`, rate, time.Now().UTC(), currencyCode)
	if err != nil {
		return storeError("update exchange rate", err)
	}
	return requireRowAffected("update exchange rate", res)
}

func (s *sqlxStore) ListDeliveryMethods(ctx context.Context, category string) ([]DeliveryMethod, error) {
	query := `
		SELECT method_code, method_name, icon, price_per_kg, min_days, max_days,
		       description, category, updated_at
		FROM delivery_methods
	`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY method_code;`

	var methods []DeliveryMethod
	if err := s.db.SelectContext(ctx, &methods, query, args...); err != nil {
		return nil, storeError("list delivery methods", err)
	}
	return methods, nil
}

func (s *sqlxStore) UpdateDeliveryPrice(ctx context.Context, methodCode string, price decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_methods SET price_per_kg = ?, updated_at = ? WHERE method_code = ?;
	`, price, time.Now().UTC(), methodCode)
	if err != nil {
		return storeError("update delivery price", err)
	}
	return requireRowAffected("update delivery price", res)
}

func (s *sqlxStore) UpdateDeliveryDays(ctx context.Context, methodCode string, minDays, maxDays int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_methods SET min_days = ?, max_days = ?, updated_at = ? WHERE method_code = ?;
	`, minDays, maxDays, time.Now().UTC(), methodCode)
	if err != nil {
		return storeError("update delivery days", err)
	}
	return requireRowAffected("update delivery days", res)
}

func (s *sqlxStore) AddShipment(ctx context.Context, ownerTelegramID int64, trackCode, description string, price decimal.Decimal) error {
	var owner sql.NullInt64
	if ownerTelegramID != 0 {
		user, err := s.GetUser(ctx, ownerTelegramID)
		if err != nil {
			return fmt.Errorf("add shipment: resolve owner: %w", err)
		}
		owner = sql.NullInt64{Int64: user.ID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (track_code, user_id, status, description, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, strings.ToUpper(strings.TrimSpace(trackCode)), owner, StatusPending, description, price, time.Now().UTC())
	if err != nil {
		return storeError("add shipment", err)
	}

	s.logger.InfoContext(ctx, "Shipment added",
		"track_code", trackCode, "owner_telegram_id", ownerTelegramID)
	return nil
}

func (s *sqlxStore) UpdateShipmentStatus(ctx context.Context, shipmentID int64, status ShipmentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update shipment status: unknown status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipments SET status = ? WHERE id = ?;`, status, shipmentID)
	if err != nil {
		return storeError("update shipment status", err)
	}
	return requireRowAffected("update shipment status", res)
}

func (s *sqlxStore) ListRecentShipments(ctx context.Context, limit int) ([]Shipment, error) {
	if limit <= 0 {
		limit = 10
	}
	var shipments []Shipment
	err := s.db.SelectContext(ctx, &shipments, `
		SELECT sh.id, sh.track_code, sh.user_id, sh.status, sh.description,
		       sh.price, sh.created_at, u.customer_code
		FROM shipments sh
		LEFT JOIN users u ON sh.user_id = u.id
		ORDER BY sh.created_at DESC, sh.id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, storeError("list recent shipments", err)
	}
	return shipments, nil
}

func (s *sqlxStore) ListShipmentsForUser(ctx context.Context, telegramID int64) ([]Shipment, error) {
	var shipments []Shipment
	err := s.db.SelectContext(ctx, &shipments, `
		SELECT sh.id, sh.track_code, sh.user_id, sh.status, sh.description,
		       sh.price, sh.created_at, u.customer_code
		FROM shipments sh
		JOIN users u ON sh.user_id = u.id
		WHERE u.telegram_id = ?
		ORDER BY sh.created_at DESC, sh.id DESC;
	`, telegramID)
	if err != nil {
		return nil, storeError("list shipments for user", err)
	}
	return shipments, nil
}

func (s *sqlxStore) GetShipmentByTrackCode(ctx context.Context, trackCode string) (*Shipment, error) {
	var sh Shipment
	err := s.db.GetContext(ctx, &sh, `
		SELECT sh.id, sh.track_code, sh.user_id, sh.status, sh.description,
		       sh.price, sh.created_at, u.customer_code
		FROM shipments sh
		LEFT JOIN users u ON sh.user_id = u.id
		WHERE sh.track_code = ?;
	`, strings.ToUpper(strings.TrimSpace(trackCode)))
	if err != nil {
		return nil, storeError("get shipment by track code", err)
	}
	return &sh, nil
}

func (s *sqlxStore) ComputeStatistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM users)                                    AS user_count,
			(SELECT COUNT(*) FROM users WHERE is_admin = 1)                 AS admin_count,
			(SELECT COUNT(*) FROM shipments)                                AS shipment_count,
			(SELECT COUNT(*) FROM shipments WHERE status = 'delivered')     AS delivered_count;
	`)
	if err != nil {
		return nil, storeError("compute statistics", err)
	}
	return &stats, nil
}

func (s *sqlxStore) ListBroadcastRecipients(ctx context.Context, audience BroadcastAudience) ([]int64, error) {
	var query string
	switch audience {
	case AudienceAll:
		query = `SELECT telegram_id FROM users;`
	case AudienceWithShipments:
		query = `
			SELECT DISTINCT u.telegram_id
			FROM users u JOIN shipments sh ON sh.user_id = u.id;
		`
	case AudienceAdmins:
		query = `SELECT telegram_id FROM users WHERE is_admin = 1;`
	default:
		return nil, fmt.Errorf("list broadcast recipients: unknown audience %q", audience)
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, storeError("list broadcast recipients", err)
	}
	return ids, nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	for _, stmt := range []string{`VACUUM;`, `ANALYZE;`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeError("run maintenance", err)
		}
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}

// requireRowAffected converts a zero-row UPDATE into ErrNotFound so key
// misses surface as a distinct error kind.
func requireRowAffected(op string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return storeError(op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
