//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/usecase"
)

func TestExportUseCase_LedgerJSON(t *testing.T) {
	ctx := context.Background()
	msk := time.FixedZone("MSK", 3*3600)
	at := time.Date(2024, time.March, 1, 21, 30, 0, 0, time.UTC)

	repo := NewMockLedgerRepo()
	repo.Put(&model.LedgerEntry{ID: "a", AttributionKey: "@alice_fan <3", CumulativeAmount: dec("450.5"),
		LastDonationAt: at, SubscriptionExpiry: tp(at.AddDate(0, 2, 0)), CreatedAt: at, UpdatedAt: at})
	repo.Put(&model.LedgerEntry{ID: "b", AttributionKey: "@bob_fan", CumulativeAmount: dec("100"),
		LastDonationAt: at, CreatedAt: at, UpdatedAt: at})
	uc := usecase.NewExportUseCase(newLedgerUC(repo), msk, newTestLogger())

	data, n, err := uc.LedgerJSON(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}
	first := rows[0]
	if first["Сообщение"] != "@alice_fan <3" {
		t.Errorf("expected the raw message unescaped, got %v", first["Сообщение"])
	}
	if first["Сумма"] != 450.5 {
		t.Errorf("expected a numeric amount, got %v", first["Сумма"])
	}
	if first["Последний донат"] != "2024-03-02 00:30:00" {
		t.Errorf("expected local time, got %v", first["Последний донат"])
	}
	if first["Подписка до"] != "2024-05-02 00:30:00" {
		t.Errorf("unexpected expiry %v", first["Подписка до"])
	}
	if v, ok := rows[1]["Подписка до"]; !ok || v != nil {
		t.Errorf("expected a null expiry, got %v", v)
	}
}
