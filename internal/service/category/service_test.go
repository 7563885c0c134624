package category_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

func TestFindOrCreate_ConvergesOnOneRow(t *testing.T) {
	store := memory.New()
	svc := category.New(store, store, nil)
	ctx := context.Background()
	uid := uuid.New()

	first, res, err := svc.FindOrCreate(ctx, uid, "  groceries ")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if res != category.Created {
		t.Fatalf("first call resolution = %s", res)
	}

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := svc.FindOrCreate(ctx, uid, "GROCERIES")
			if err != nil {
				t.Errorf("find or create: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != first.ID {
			t.Fatalf("got %v, want %v", id, first.ID)
		}
	}
	all, err := svc.List(ctx, uid)
	if err != nil || len(all) != 1 {
		t.Fatalf("list = %d err=%v", len(all), err)
	}
}

func TestCreate_DuplicateAndValidation(t *testing.T) {
	store := memory.New()
	svc := category.New(store, store, nil)
	ctx := context.Background()
	uid := uuid.New()
	name := "Travel"

	c, err := svc.Create(ctx, uid, category.Input{Name: &name})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Color == "" || c.Icon == "" {
		t.Fatalf("style not defaulted: %+v", c)
	}
	lower := "travel"
	if _, err := svc.Create(ctx, uid, category.Input{Name: &lower}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate: want conflict, got %v", err)
	}
	badColor := "red"
	other := "Other"
	if _, err := svc.Create(ctx, uid, category.Input{Name: &other, Color: &badColor}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("bad color: want invalid, got %v", err)
	}
	if _, err := svc.Authorize(ctx, uuid.New(), c.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign authorize: want forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, uid, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestSeedDefaults_IsRepeatable(t *testing.T) {
	store := memory.New()
	svc := category.New(store, store, nil)
	ctx := context.Background()
	uid := uuid.New()
	for i := 0; i < 2; i++ {
		if err := svc.SeedDefaults(ctx, uid); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	first, _ := svc.List(ctx, uid)
	if len(first) == 0 {
		t.Fatalf("no defaults seeded")
	}
	if err := svc.SeedDefaults(ctx, uid); err != nil {
		t.Fatalf("seed: %v", err)
	}
	again, _ := svc.List(ctx, uid)
	if len(again) != len(first) {
		t.Fatalf("seed not idempotent: %d then %d", len(first), len(again))
	}
}
