package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/usmnv/gdbot/internal/database"
)

type userResponse struct {
	TelegramID     int64           `json:"telegram_id"`
	Username       string          `json:"username,omitempty"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name,omitempty"`
	PhoneNumber    string          `json:"phone_number"`
	CustomerCode   string          `json:"customer_code"`
	Balance        decimal.Decimal `json:"balance"`
	OrdersCount    int             `json:"orders_count"`
	DeliveredCount int             `json:"delivered_count"`
	IsAdmin        bool            `json:"is_admin"`
	RegisteredAt   time.Time       `json:"registered_at"`
}

type ordersResponse struct {
	Orders []shipmentResponse `json:"orders"`
}

type ratesResponse struct {
	Rates []rateResponse `json:"rates"`
}

type shipmentResponse struct {
	TrackCode    string          `json:"track_code"`
	Status       string          `json:"status"`
	StatusLabel  string          `json:"status_label"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	CustomerCode string          `json:"customer_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type rateResponse struct {
	CurrencyCode string          `json:"currency_code"`
	Name         string          `json:"name"`
	Flag         string          `json:"flag"`
	Rate         decimal.Decimal `json:"rate"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}

	user, err := s.store.GetUser(r.Context(), telegramID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	// The mini-app shows the order counters on the profile card.
	shipments, err := s.store.ListShipmentsForUser(r.Context(), telegramID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	delivered := 0
	for _, sh := range shipments {
		if sh.Status == database.StatusDelivered {
			delivered++
		}
	}

	s.writeJSON(w, http.StatusOK, userResponse{
		TelegramID:     user.TelegramID,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		PhoneNumber:    user.PhoneNumber,
		CustomerCode:   user.CustomerCode,
		Balance:        user.Balance,
		OrdersCount:    len(shipments),
		DeliveredCount: delivered,
		IsAdmin:        user.IsAdmin,
		RegisteredAt:   user.RegisteredAt,
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}

	// Unknown users get 404, not an empty list.
	if _, err := s.store.GetUser(r.Context(), telegramID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	shipments, err := s.store.ListShipmentsForUser(r.Context(), telegramID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]shipmentResponse, 0, len(shipments))
	for _, sh := range shipments {
		out = append(out, toShipmentResponse(sh))
	}
	s.writeJSON(w, http.StatusOK, ordersResponse{Orders: out})
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.store.ListExchangeRates(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]rateResponse, 0, len(rates))
	for _, rate := range rates {
		out = append(out, rateResponse{
			CurrencyCode: rate.CurrencyCode,
			Name:         rate.Name,
			Flag:         rate.Flag,
			Rate:         rate.Rate,
			UpdatedAt:    rate.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, ratesResponse{Rates: out})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	trackCode := chi.URLParam(r, "trackCode")

	shipment, err := s.store.GetShipmentByTrackCode(r.Context(), trackCode)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toShipmentResponse(*shipment))
}

func toShipmentResponse(sh database.Shipment) shipmentResponse {
	resp := shipmentResponse{
		TrackCode:   sh.TrackCode,
		Status:      string(sh.Status),
		StatusLabel: sh.Status.Label(),
		Description: sh.Description,
		Price:       sh.Price,
		CreatedAt:   sh.CreatedAt,
	}
	if sh.CustomerCode.Valid {
		resp.CustomerCode = sh.CustomerCode.String
	}
	return resp
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("API request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
