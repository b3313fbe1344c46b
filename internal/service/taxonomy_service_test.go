package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/lensfolio/internal/db"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestTagSlug(t *testing.T) {
	cases := []struct {
		tagType string
		name    string
		want    string
	}{
		{tagType: "topic", name: "Sunset", want: "topic:sunset"},
		{tagType: "topic", name: "Golden   Hour", want: "topic:golden-hour"},
		{tagType: "category", name: "Street\tPhoto", want: "category:street-photo"},
		{tagType: "topic", name: "ＡＢＣ", want: "topic:abc"},
		{tagType: "season", name: "秋天", want: "season:秋天"},
	}

	for _, tc := range cases {
		if got := TagSlug(tc.tagType, tc.name); got != tc.want {
			t.Fatalf("TagSlug(%q, %q) = %q, want %q", tc.tagType, tc.name, got, tc.want)
		}
	}
}

func TestParseTagList(t *testing.T) {
	got := ParseTagList("海边，日落; sunset\n#beach、海边 ,, Sunset")
	want := []string{"海边", "日落", "sunset", "beach", "Sunset"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseTagList = %#v, want %#v", got, want)
	}
	if len(ParseTagList("  ,\n ; ")) != 0 {
		t.Fatal("expected separators only to produce no tags")
	}
}

func TestEnsureTagIDsEmptySkipsStore(t *testing.T) {
	gdb := setupServiceTestDB(t, "taxonomy-empty")
	svc := NewTaxonomyService(gdb, zaptest.NewLogger(t))

	queries := 0
	if err := gdb.Callback().Query().Before("gorm:query").Register("test:count_query", func(*gorm.DB) { queries++ }); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	ids, err := svc.EnsureTagIDs(context.Background(), nil, []string{" ", ""}, db.TagTypeTopic)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(ids) != 0 || queries != 0 {
		t.Fatalf("expected no ids and no queries, got %v and %d queries", ids, queries)
	}
}

func TestEnsureTagIDsCreatesOnceAndReuses(t *testing.T) {
	gdb := setupServiceTestDB(t, "taxonomy-reuse")
	svc := NewTaxonomyService(gdb, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := svc.EnsureTagIDs(ctx, nil, []string{"海边", " 日落 ", "海边"}, db.TagTypeTopic)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 ids, got %v", first)
	}

	second, err := svc.EnsureTagIDs(ctx, nil, []string{"日落", "海边"}, db.TagTypeTopic)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected same ids, got %v then %v", first, second)
	}

	other, err := svc.EnsureTagIDs(ctx, nil, []string{"海边"}, db.TagTypeCategory)
	if err != nil {
		t.Fatalf("ensure category: %v", err)
	}
	if len(other) != 1 || other[0] == first[0] || other[0] == first[1] {
		t.Fatalf("expected a distinct category tag, got %v", other)
	}

	var count int64
	gdb.Model(&db.Tag{}).Count(&count)
	if count != 3 {
		t.Fatalf("expected 3 tag rows, got %d", count)
	}
}

func TestEnsureTagIDsResolvesSlugEquivalentNames(t *testing.T) {
	gdb := setupServiceTestDB(t, "taxonomy-slug")
	svc := NewTaxonomyService(gdb, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := svc.EnsureTagIDs(ctx, nil, []string{"Golden Hour"}, db.TagTypeTopic)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := svc.EnsureTagIDs(ctx, nil, []string{"golden  hour"}, db.TagTypeTopic)
	if err != nil {
		t.Fatalf("ensure variant: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected slug-equivalent names to share a tag, got %v and %v", first, second)
	}
}

func TestEnsureTagIDsConcurrentCallersNeverDuplicateSlugs(t *testing.T) {
	gdb := setupServiceTestDB(t, "taxonomy-concurrent")
	svc := NewTaxonomyService(gdb, zaptest.NewLogger(t))
	ctx := context.Background()

	batches := [][]string{
		{"海边", "日落", "云"},
		{"日落", "云", "山"},
		{"山", "海边"},
		{"云", "海边", "日落", "山"},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(batches)*4)
	for round := 0; round < 4; round++ {
		for _, names := range batches {
			wg.Add(1)
			go func(names []string) {
				defer wg.Done()
				ids, err := svc.EnsureTagIDs(ctx, nil, names, db.TagTypeTopic)
				if err != nil {
					errs <- err
					return
				}
				if len(ids) != len(names) {
					errs <- errors.New("missing ids for some names")
				}
			}(names)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ensure failed: %v", err)
	}

	var rows []struct {
		Slug  string
		Count int
	}
	if err := gdb.Model(&db.Tag{}).Select("slug, COUNT(*) AS count").Group("slug").Scan(&rows).Error; err != nil {
		t.Fatalf("group slugs: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 distinct slugs, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Count != 1 {
			t.Fatalf("slug %s stored %d times", row.Slug, row.Count)
		}
	}
}

func TestTaxonomyServiceListAndDelete(t *testing.T) {
	gdb := setupServiceTestDB(t, "taxonomy-delete")
	svc := NewTaxonomyService(gdb, zaptest.NewLogger(t))
	ctx := context.Background()

	ids, err := svc.EnsureTagIDs(ctx, nil, []string{"街拍", "风光"}, db.TagTypeCategory)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := svc.EnsureTagIDs(ctx, nil, []string{"海边"}, db.TagTypeTopic); err != nil {
		t.Fatalf("ensure topic: %v", err)
	}

	categories, err := svc.List(ctx, db.TagTypeCategory)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}

	if err := gdb.Create(&db.PictureSetCategory{PictureSetID: 1, CategoryID: ids[0]}).Error; err != nil {
		t.Fatalf("seed join: %v", err)
	}
	if err := svc.Delete(ctx, ids[0]); !errors.Is(err, ErrTagInUse) {
		t.Fatalf("expected ErrTagInUse, got %v", err)
	}
	if err := svc.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("delete unused tag: %v", err)
	}
	if err := svc.Delete(ctx, ids[1]); !errors.Is(err, ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}
}
