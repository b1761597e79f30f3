//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
)

func TestMemberRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPostgresMemberRepo(testPool)
	ctx := context.Background()

	t.Run("should upsert on telegram id and find by username", func(t *testing.T) {
		cleanup(t)

		m, err := model.NewMember("", 123456789, "@Integration_User")
		if err != nil {
			t.Fatalf("model.NewMember() failed: %v", err)
		}
		if err := repo.Save(ctx, nil, m); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		found, err := repo.FindByUsername(ctx, nil, "integration_user")
		if err != nil {
			t.Fatalf("FindByUsername failed: %v", err)
		}
		if found.ID != m.ID {
			t.Errorf("expected id %s, got %s", m.ID, found.ID)
		}

		// A second registration under a new id keeps the first row.
		again, _ := model.NewMember("", 123456789, "renamed")
		if err := repo.Save(ctx, nil, again); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		found, err = repo.FindByTelegramID(ctx, nil, 123456789)
		if err != nil {
			t.Fatalf("FindByTelegramID failed: %v", err)
		}
		if found.ID != m.ID || found.Username != "renamed" {
			t.Errorf("unexpected member after upsert %+v", found)
		}
		if _, err := repo.FindByUsername(ctx, nil, "integration_user"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected the old handle to be gone, got %v", err)
		}
		if n, _ := repo.Count(ctx, nil); n != 1 {
			t.Errorf("expected 1 member, got %d", n)
		}
	})
}
