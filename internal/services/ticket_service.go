package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tickethub/internal/status"
	"tickethub/monitoring"
	"tickethub/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// liveQRWindow is how close to the event start a ticket's QR switches from
// the placeholder payload to the scannable live payload.
const liveQRWindow = 24 * time.Hour

// TicketService mints ticket records for completed sales and builds their
// QR payloads. Issuance runs inside the completion transaction and is
// guarded upstream by the sale ledger's compare-and-set, so a sale can
// never be issued twice.
type TicketService struct {
	app        core.App
	signingKey []byte
}

func NewTicketService(app core.App, signingKey string) *TicketService {
	return &TicketService{app: app, signingKey: []byte(signingKey)}
}

// QRPayload is the signed content encoded into a ticket's QR code. It is a
// pure function of the ticket's fields: regenerating it never changes the
// ticket's identity or code.
type QRPayload struct {
	TicketID string `json:"ticket_id"`
	Code     string `json:"code"`
	EventID  string `json:"event_id"`
	IssuedAt string `json:"issued_at"`
	Mode     string `json:"mode"` // placeholder, live
}

// IssueForSale mints exactly quantity tickets for a completed sale. If the
// sale already has tickets the call is a no-op, which keeps a replayed
// completion harmless even if the upstream guard is bypassed.
func (s *TicketService) IssueForSale(txApp core.App, sale *core.Record) ([]*core.Record, error) {
	existing, err := txApp.FindRecordsByFilter(
		"tickets",
		"sale_id = {:saleId}",
		"",
		0,
		0,
		dbx.Params{"saleId": sale.Id},
	)
	if err == nil && len(existing) > 0 {
		return existing, nil
	}

	collection, err := txApp.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("issue: tickets collection: %w", err)
	}

	eventID := sale.GetString("event_id")
	quantity := sale.GetInt("quantity")
	seatIDs := seatIDsOf(sale)

	event, err := txApp.FindRecordById("events", eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s", status.ErrNotFound, eventID)
	}
	issuedAt := types.NowDateTime()
	mode := s.qrMode(event.GetDateTime("start_time").Time(), issuedAt.Time())

	tickets := make([]*core.Record, 0, quantity)
	for i := 0; i < quantity; i++ {
		code, err := utils.GenerateCode(6)
		if err != nil {
			return nil, fmt.Errorf("issue: generate code: %w", err)
		}

		ticket := core.NewRecord(collection)
		ticket.Set("sale_id", sale.Id)
		ticket.Set("event_id", eventID)
		ticket.Set("code", code)
		ticket.Set("status", "valid")
		ticket.Set("issued_at", issuedAt)
		if i < len(seatIDs) {
			ticket.Set("seat_id", seatIDs[i])
		}

		// First save assigns the record id the QR payload encodes.
		if err := txApp.Save(ticket); err != nil {
			return nil, fmt.Errorf("issue: save ticket: %w", err)
		}

		qr, err := s.BuildQRPayload(&QRPayload{
			TicketID: ticket.Id,
			Code:     code,
			EventID:  eventID,
			IssuedAt: issuedAt.String(),
			Mode:     mode,
		})
		if err != nil {
			return nil, err
		}
		ticket.Set("qr_payload", qr)

		if err := txApp.Save(ticket); err != nil {
			return nil, fmt.Errorf("issue: save ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}

	monitoring.TrackTicketsIssued(len(tickets))
	return tickets, nil
}

// BuildQRPayload encodes and signs a QR payload. Deterministic: the same
// fields always produce the same string.
func (s *TicketService) BuildQRPayload(p *QRPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("qr payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	sig := utils.Hmac256(data, s.signingKey)
	return fmt.Sprintf("%s.%s", encoded, sig), nil
}

// DecodeQRPayload verifies a scanned QR string and returns its payload.
func (s *TicketService) DecodeQRPayload(qr string) (*QRPayload, error) {
	i := strings.IndexByte(qr, '.')
	if i < 0 {
		return nil, status.ErrSignatureInvalid
	}
	encoded, sig := qr[:i], qr[i+1:]

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, status.ErrSignatureInvalid
	}
	if !utils.VerifyHmac256(data, s.signingKey, sig) {
		return nil, status.ErrSignatureInvalid
	}

	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, status.ErrSignatureInvalid
	}
	return &p, nil
}

// RefreshQR regenerates a ticket's QR payload, switching placeholder
// payloads to live ones inside the 24h window. Identity and code are
// reused; only the mode changes.
func (s *TicketService) RefreshQR(ticketID string) (string, error) {
	ticket, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return "", fmt.Errorf("%w: ticket %s", status.ErrNotFound, ticketID)
	}

	event, err := s.app.FindRecordById("events", ticket.GetString("event_id"))
	if err != nil {
		return "", fmt.Errorf("%w: event %s", status.ErrNotFound, ticket.GetString("event_id"))
	}

	qr, err := s.BuildQRPayload(&QRPayload{
		TicketID: ticket.Id,
		Code:     ticket.GetString("code"),
		EventID:  event.Id,
		IssuedAt: ticket.GetDateTime("issued_at").String(),
		Mode:     s.qrMode(event.GetDateTime("start_time").Time(), time.Now()),
	})
	if err != nil {
		return "", err
	}

	ticket.Set("qr_payload", qr)
	if err := s.app.Save(ticket); err != nil {
		return "", fmt.Errorf("refresh qr: %w", err)
	}
	return qr, nil
}

// CheckIn marks a valid ticket as used. Used and cancelled tickets are
// rejected.
func (s *TicketService) CheckIn(code string) (*core.Record, error) {
	ticket, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"code = {:code}",
		dbx.Params{"code": code},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ticket code %s", status.ErrNotFound, code)
	}

	res, err := s.app.DB().
		NewQuery("UPDATE tickets SET status = 'used', used_at = {:now} WHERE id = {:id} AND status = 'valid'").
		Bind(dbx.Params{"id": ticket.Id, "now": types.NowDateTime().String()}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: ticket %s is %s", status.ErrInvalidTransition, ticket.Id, ticket.GetString("status"))
	}

	return s.app.FindRecordById("tickets", ticket.Id)
}

// CancelForSale invalidates every ticket belonging to a cancelled sale.
func (s *TicketService) CancelForSale(txApp core.App, saleID string) error {
	_, err := txApp.DB().
		NewQuery("UPDATE tickets SET status = 'cancelled' WHERE sale_id = {:saleId} AND status != 'cancelled'").
		Bind(dbx.Params{"saleId": saleID}).
		Execute()
	if err != nil {
		return fmt.Errorf("cancel tickets for sale %s: %w", saleID, err)
	}
	return nil
}

func (s *TicketService) qrMode(eventStart, now time.Time) string {
	if eventStart.IsZero() || eventStart.Sub(now) > liveQRWindow {
		return "placeholder"
	}
	return "live"
}

// seatIDsOf reads the sale's seat id list from its JSON field.
func seatIDsOf(sale *core.Record) []string {
	var ids []string
	raw := sale.GetString("seat_ids")
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
