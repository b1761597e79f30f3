package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var _ ExportUseCase = (*exportUC)(nil)

// ExportUseCase dumps the ledger for humans.
type ExportUseCase interface {
	// LedgerJSON returns the indented document and the number of entries.
	LedgerJSON(ctx context.Context) ([]byte, int, error)
}

type exportRecord struct {
	Message      string      `json:"Сообщение"`
	Amount       json.Number `json:"Сумма"`
	LastDonation string      `json:"Последний донат"`
	Expiry       *string     `json:"Подписка до"`
	CreatedAt    string      `json:"Создано"`
	UpdatedAt    string      `json:"Обновлено"`
}

type exportUC struct {
	ledger LedgerUseCase
	loc    *time.Location
	log    *zerolog.Logger
}

func NewExportUseCase(ledger LedgerUseCase, loc *time.Location, logger *zerolog.Logger) *exportUC {
	if loc == nil {
		loc = time.UTC
	}
	return &exportUC{ledger: ledger, loc: loc, log: logger}
}

func (u *exportUC) LedgerJSON(ctx context.Context) ([]byte, int, error) {
	defer logging.TraceDuration(u.log, "ExportUC.LedgerJSON")()
	entries, err := u.ledger.List(ctx)
	if err != nil {
		return nil, 0, err
	}

	records := make([]exportRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, u.record(e))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(records), nil
}

func (u *exportUC) record(e *model.LedgerEntry) exportRecord {
	r := exportRecord{
		Message:      e.AttributionKey,
		Amount:       json.Number(e.CumulativeAmount.String()),
		LastDonation: u.format(e.LastDonationAt),
		CreatedAt:    u.format(e.CreatedAt),
		UpdatedAt:    u.format(e.UpdatedAt),
	}
	if e.SubscriptionExpiry != nil {
		s := u.format(*e.SubscriptionExpiry)
		r.Expiry = &s
	}
	return r
}

func (u *exportUC) format(t time.Time) string {
	return t.In(u.loc).Format(exportTimeLayout)
}
