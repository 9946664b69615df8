package memory

import (
	"context"
	"errors"
	"testing"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

func TestPostStore_UpsertAndRange(t *testing.T) {
	store := NewPostStore()
	ctx := context.Background()

	err := store.Upsert(ctx, []*domain.Post{
		{PostID: "b", Text: "two", CreatedAt: 2000},
		{PostID: "a", Text: "one", CreatedAt: 1000},
		{PostID: "c", Text: "three", CreatedAt: 3000},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, 1000, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 || got[0].PostID != "a" || got[1].PostID != "b" {
		t.Errorf("unexpected range result %+v", got)
	}

	_ = store.Upsert(ctx, []*domain.Post{{PostID: "a", Text: "edited", CreatedAt: 1000}})
	p, err := store.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if p.Text != "edited" {
		t.Errorf("text not refreshed: %s", p.Text)
	}

	if _, err := store.GetByID(ctx, "zzz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUnresolvedIssueStore_RecordIncrements(t *testing.T) {
	store := NewUnresolvedIssueStore()
	ctx := context.Background()

	for i, post := range []string{"p1", "p2", "p3"} {
		if err := store.Record(ctx, domain.IssueTicker, "foo", post, int64(1000+i)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	_ = store.Record(ctx, domain.IssueTicker, "bar", "p1", 5000)
	_ = store.Record(ctx, domain.IssuePhrase, "foo", "p1", 5000)

	issue, err := store.Get(ctx, domain.IssueTicker, "foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if issue.SeenCount != 3 || issue.SamplePostID != "p3" || issue.FirstSeenAt != 1000 || issue.LastSeenAt != 1002 {
		t.Errorf("unexpected issue %+v", issue)
	}

	top, _ := store.ListTop(ctx, domain.IssueTicker, 10)
	if len(top) != 2 || top[0].NormalizedValue != "foo" {
		t.Errorf("unexpected top issues %+v", top)
	}
}

func TestCandleStore_ReplaceAndRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.PriceCandle{
		{Pool: "p", Timeframe: domain.TimeframeDay, Timestamp: 86400 * 2, High: 2},
		{Pool: "p", Timeframe: domain.TimeframeDay, Timestamp: 86400, High: 1},
		{Pool: "p", Timeframe: domain.TimeframeMinute, Timestamp: 86400, High: 9},
		{Pool: "q", Timeframe: domain.TimeframeDay, Timestamp: 86400, High: 7},
	}
	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	_ = store.InsertBulk(ctx, []domain.PriceCandle{{Pool: "p", Timeframe: domain.TimeframeDay, Timestamp: 86400, High: 1.5}})

	got, err := store.GetRange(ctx, "p", domain.TimeframeDay, 0, 86400*3)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].Timestamp != 86400 || got[0].High != 1.5 {
		t.Errorf("unexpected first candle %+v", got[0])
	}

	if err := store.InsertBulk(ctx, []domain.PriceCandle{{Timestamp: 1}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScanCursorStore(t *testing.T) {
	store := NewScanCursorStore()
	ctx := context.Background()

	if _, err := store.GetCursor(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetCursor(ctx, &storage.ScanCursor{CreatedAt: 10, PostID: "x"}); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	c, err := store.GetCursor(ctx)
	if err != nil || c.CreatedAt != 10 || c.PostID != "x" {
		t.Errorf("unexpected cursor %+v err=%v", c, err)
	}
}
