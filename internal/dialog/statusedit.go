package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepStatusOrder = "order"
	stepStatusPick  = "status"

	recentShipmentsLimit = 10
)

// statusEditFlow lets an admin pick a shipment from the recent list and set
// any status from the closed set. Transitions are unrestricted.
func statusEditFlow() *Flow {
	return &Flow{
		Name:  FlowStatusEdit,
		Entry: stepStatusOrder,
		Steps: map[string]*Step{
			stepStatusOrder: {
				Prompt: promptStatusOrder,
				Handle: handleStatusOrder,
			},
			stepStatusPick: {
				Prompt: promptStatusPick,
				Handle: handleStatusPick,
				Back:   stepStatusOrder,
			},
		},
	}
}

func promptStatusOrder(ctx context.Context, e *Engine, s *session.Session) (Reply, error) {
	shipments, err := e.store.ListRecentShipments(ctx, recentShipmentsLimit)
	if err != nil {
		return Reply{}, err
	}
	if len(shipments) == 0 {
		return Reply{}, fmt.Errorf("status edit: no shipments: %w", database.ErrNotFound)
	}
	s.Shipments = shipments

	var b strings.Builder
	b.WriteString("📦 Последние заказы:\n\n")
	rows := make([][]string, 0, len(shipments)+1)
	for _, sh := range shipments {
		customer := "Неизвестен"
		if sh.CustomerCode.Valid {
			customer = sh.CustomerCode.String
		}
		fmt.Fprintf(&b, "%s %s\nКлиент: %s\nСтатус: %s\nЦена: $%s\n\n",
			sh.Status.Icon(), sh.TrackCode, customer, sh.Status.Label(), sh.Price.String())
		rows = append(rows, []string{sh.TrackCode + " - " + sh.Status.Label()})
	}
	rows = append(rows, []string{BackLabel})
	b.WriteString("Выберите заказ для изменения статуса:")

	return Reply{Text: b.String(), Keyboard: rows}, nil
}

func handleStatusOrder(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	// Labels are "trackcode - status" composites; everything before the
	// separator is the code.
	trackCode := strings.TrimSpace(in.Text)
	if before, _, found := strings.Cut(trackCode, " - "); found {
		trackCode = strings.TrimSpace(before)
	}

	for _, sh := range s.Shipments {
		if sh.TrackCode == trackCode {
			s.ShipmentID = sh.ID
			s.TrackCode = sh.TrackCode
			return Result{Next: stepStatusPick}, nil
		}
	}
	return Result{Retry: true, Reply: Reply{
		Text: "Заказ не найден. Выберите из списка.",
	}}, nil
}

func promptStatusPick(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	rows := make([][]string, 0, len(database.AllStatuses)+1)
	for _, st := range database.AllStatuses {
		rows = append(rows, []string{st.AdminIcon() + " " + st.Label()})
	}
	rows = append(rows, []string{BackLabel})

	return Reply{
		Text:     fmt.Sprintf("📦 Заказ: %s\n\nВыберите новый статус:", s.TrackCode),
		Keyboard: rows,
	}, nil
}

func handleStatusPick(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	status, ok := database.StatusFromLabel(strings.TrimSpace(in.Text))
	if !ok {
		return Result{Retry: true, Reply: Reply{
			Text: "Неизвестный статус. Выберите из списка.",
		}}, nil
	}

	if err := e.store.UpdateShipmentStatus(ctx, s.ShipmentID, status); err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Статус обновлен!\n\n📦 Заказ: %s\n📈 Новый статус: %s",
			s.TrackCode, status.Label()),
	}}, nil
}
