package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type pictureSetFixture struct {
	svc        *PictureSetService
	gdb        *gorm.DB
	store      *storage.LocalStore
	translator *fakeTranslator
	analyzer   *fakeAnalyzer
}

func newPictureSetFixture(t *testing.T, name string) pictureSetFixture {
	t.Helper()
	gdb := setupServiceTestDB(t, name)
	logger := zaptest.NewLogger(t)

	store, err := storage.NewLocalStore(t.TempDir(), "/static/uploads", logger)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	translator := newFakeTranslator()
	analyzer := &fakeAnalyzer{outputs: map[string]string{}}
	autofill := NewAutofillEngine(translator, logger)
	taxonomy := NewTaxonomyService(gdb, logger)
	runner := NewEnrichmentRunner(gdb, analyzer, autofill, taxonomy, store, 3, logger)
	locations := NewLocationService(gdb, nil, logger)

	svc := NewPictureSetService(gdb, taxonomy, locations, autofill, runner, store, logger)
	svc.SetUploadURLPath("/static/uploads")
	return pictureSetFixture{svc: svc, gdb: gdb, store: store, translator: translator, analyzer: analyzer}
}

func (f pictureSetFixture) putObject(t *testing.T, key string) string {
	t.Helper()
	stored, err := f.store.Put(context.Background(), key, strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return stored
}

func (f pictureSetFixture) objectExists(key string) bool {
	_, err := os.Stat(filepath.Join(f.store.Root(), filepath.FromSlash(key)))
	return err == nil
}

func uintPtr(v uint) *uint {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func TestPictureSetSaveCreatesSetWithTaxonomy(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-create")
	ctx := context.Background()

	section := db.Section{Name: "Featured", Slug: "featured"}
	if err := f.gdb.Create(&section).Error; err != nil {
		t.Fatalf("seed section: %v", err)
	}

	detail, err := f.svc.Save(ctx, 0, PictureSetInput{
		Title:           "海边日落",
		CoverImageURL:   stringPtr("/static/uploads/20240101/cover.jpg"),
		IsPublished:     true,
		Tags:            []string{"sea", "Dawn", "sea"},
		Categories:      []string{"Landscape"},
		PrimaryCategory: "Travel",
		Season:          "Summer",
		SectionIDs:      []uint{section.ID},
		Location:        &LocationInput{Name: "Xiamen", Latitude: floatPtr(24.48), Longitude: floatPtr(118.09)},
		Pictures: []PictureInput{
			{ImageURL: "20240101/a.jpg", Title: "Morning fog", Style: "Film"},
			{ImageURL: "20240101/b.jpg"},
		},
		PropagateTaxonomy: true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if detail.ID == 0 || detail.Version != 1 || detail.Position != db.PositionUp {
		t.Fatalf("unexpected set header %+v", detail)
	}
	if detail.CoverImageURL != "20240101/cover.jpg" {
		t.Fatalf("cover url should be stored as a key, got %q", detail.CoverImageURL)
	}
	if detail.Translations.Title.ZH != "海边日落" || detail.Translations.Title.EN != "Sunset by the sea" {
		t.Fatalf("unexpected title translations %+v", detail.Translations.Title)
	}
	if len(detail.Tags) != 2 {
		t.Fatalf("expected 2 topic tags, got %+v", detail.Tags)
	}
	if len(detail.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", detail.Categories)
	}
	for _, category := range detail.Categories {
		if category.Primary != (category.Name == "Travel") {
			t.Fatalf("primary flag wrong for %+v", category)
		}
	}
	if detail.PrimaryCategoryID == nil {
		t.Fatal("primary category id should be set")
	}
	if detail.Season == nil || detail.Season.Name != "Summer" {
		t.Fatalf("unexpected season %+v", detail.Season)
	}
	if len(detail.Sections) != 1 || detail.Sections[0].ID != section.ID {
		t.Fatalf("unexpected sections %+v", detail.Sections)
	}
	if detail.Location == nil || detail.Location.Name != "Xiamen" {
		t.Fatalf("unexpected location %+v", detail.Location)
	}

	if len(detail.Pictures) != 2 {
		t.Fatalf("expected 2 pictures, got %d", len(detail.Pictures))
	}
	first := detail.Pictures[0]
	if first.OrderIndex != 0 || first.ImagePublicURL != "/static/uploads/20240101/a.jpg" {
		t.Fatalf("unexpected first picture %+v", first)
	}
	if first.Style != "Film" {
		t.Fatalf("expected style, got %q", first.Style)
	}
	if len(first.Categories) != 2 || first.Season == nil {
		t.Fatalf("set taxonomy should propagate to pictures without their own: %+v", first)
	}
	if first.Translations.Title.EN != "Morning fog" || first.Translations.Title.ZH != "晨雾" {
		t.Fatalf("picture translations not filled: %+v", first.Translations.Title)
	}

	var styles int64
	f.gdb.Model(&db.Tag{}).Where("type = ?", db.TagTypeStyle).Count(&styles)
	if styles != 1 {
		t.Fatalf("expected style tag to be registered, got %d", styles)
	}
}

func TestPictureSetSaveMergesPicturesByIdentity(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-merge")
	ctx := context.Background()

	keys := []string{
		f.putObject(t, "20240101/one.jpg"),
		f.putObject(t, "20240101/two.jpg"),
		f.putObject(t, "20240101/three.jpg"),
		f.putObject(t, "20240101/three-raw.jpg"),
	}
	created, err := f.svc.Save(ctx, 0, PictureSetInput{
		Title: "Coast",
		Pictures: []PictureInput{
			{ImageURL: keys[0]},
			{ImageURL: keys[1]},
			{ImageURL: keys[2], RawImageURL: keys[3], Tags: []string{"sea"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p1, p2, p3 := created.Pictures[0].ID, created.Pictures[1].ID, created.Pictures[2].ID

	newKey := f.putObject(t, "20240102/new.jpg")
	updated, err := f.svc.Save(ctx, created.ID, PictureSetInput{
		Title: "Coast",
		Pictures: []PictureInput{
			{ID: uintPtr(p2), ImageURL: keys[1]},
			{ImageURL: newKey},
			{ID: uintPtr(p1), ImageURL: keys[0]},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(updated.Pictures) != 3 {
		t.Fatalf("expected 3 pictures, got %d", len(updated.Pictures))
	}
	if updated.Pictures[0].ID != p2 || updated.Pictures[2].ID != p1 {
		t.Fatalf("unexpected order %d %d %d", updated.Pictures[0].ID, updated.Pictures[1].ID, updated.Pictures[2].ID)
	}
	newID := updated.Pictures[1].ID
	if newID == p1 || newID == p2 || newID == p3 {
		t.Fatalf("expected a freshly inserted picture, got %d", newID)
	}
	for i, picture := range updated.Pictures {
		if picture.OrderIndex != i {
			t.Fatalf("picture %d has order_index %d", picture.ID, picture.OrderIndex)
		}
	}

	var count int64
	f.gdb.Model(&db.Picture{}).Where("id = ?", p3).Count(&count)
	if count != 0 {
		t.Fatal("picture 3 should be deleted")
	}
	f.gdb.Model(&db.PictureTag{}).Where("picture_id = ?", p3).Count(&count)
	if count != 0 {
		t.Fatal("tag links of the deleted picture should be removed")
	}
	if f.objectExists(keys[2]) || f.objectExists(keys[3]) {
		t.Fatal("storage objects of the deleted picture should be removed")
	}
	if !f.objectExists(keys[0]) || !f.objectExists(keys[1]) || !f.objectExists(newKey) {
		t.Fatal("objects still referenced must be kept")
	}
}

func TestPictureSetSaveDeletesReplacedImageAfterCommit(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-replace")
	ctx := context.Background()

	oldKey := f.putObject(t, "20240101/old.jpg")
	created, err := f.svc.Save(ctx, 0, PictureSetInput{Pictures: []PictureInput{{ImageURL: oldKey}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newKey := f.putObject(t, "20240101/new.jpg")
	if _, err := f.svc.Save(ctx, created.ID, PictureSetInput{
		Pictures: []PictureInput{{ID: uintPtr(created.Pictures[0].ID), ImageURL: newKey}},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.objectExists(oldKey) {
		t.Fatal("replaced image should be removed from storage")
	}
	if !f.objectExists(newKey) {
		t.Fatal("new image must be kept")
	}
}

func TestPictureSetSaveRollsBackForeignPicture(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-foreign")
	ctx := context.Background()

	other, err := f.svc.Save(ctx, 0, PictureSetInput{Title: "Other", Pictures: []PictureInput{{ImageURL: "x.jpg"}}})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	target, err := f.svc.Save(ctx, 0, PictureSetInput{Title: "Target"})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	_, err = f.svc.Save(ctx, target.ID, PictureSetInput{
		Title:    "Renamed",
		Pictures: []PictureInput{{ID: uintPtr(other.Pictures[0].ID), ImageURL: "x.jpg"}},
	})
	if !errors.Is(err, ErrPictureNotInSet) {
		t.Fatalf("expected ErrPictureNotInSet, got %v", err)
	}

	var set db.PictureSet
	if err := f.gdb.First(&set, target.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if set.Title != "Target" || set.Version != 1 {
		t.Fatalf("failed save must not leave partial writes, got %+v", set)
	}
}

func TestPictureSetSaveVersionConflict(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-version")
	ctx := context.Background()

	created, err := f.svc.Save(ctx, 0, PictureSetInput{Title: "Coast"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := f.svc.Save(ctx, created.ID, PictureSetInput{Title: "Coast II", ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	_, err = f.svc.Save(ctx, created.ID, PictureSetInput{Title: "Stale", ExpectedVersion: 1})
	if !errors.Is(err, ErrPictureSetConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := f.svc.Save(ctx, created.ID, PictureSetInput{Title: "Last writer"}); err != nil {
		t.Fatalf("save without expected version should win: %v", err)
	}
	if _, err := f.svc.Save(ctx, 9999, PictureSetInput{Title: "Missing"}); !errors.Is(err, ErrPictureSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPictureSetSaveValidation(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-validate")
	ctx := context.Background()

	cases := []struct {
		name  string
		input PictureSetInput
		want  error
	}{
		{"missing image", PictureSetInput{Pictures: []PictureInput{{ImageURL: " "}}}, ErrPictureImageMissing},
		{"duplicate id", PictureSetInput{Pictures: []PictureInput{{ID: uintPtr(4), ImageURL: "a.jpg"}, {ID: uintPtr(4), ImageURL: "b.jpg"}}}, ErrDuplicatePicture},
		{"bad position", PictureSetInput{Position: "left"}, ErrInvalidPosition},
		{"unknown section", PictureSetInput{SectionIDs: []uint{42}}, ErrSectionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Save(ctx, 0, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var count int64
	f.gdb.Model(&db.PictureSet{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected saves must not create rows, got %d", count)
	}
}

func TestPictureSetSaveKeepsAuthoredEnglish(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-authored")
	ctx := context.Background()

	created, err := f.svc.Save(ctx, 0, PictureSetInput{Title: "Morning fog"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Translations.Title.Touch != db.TouchAuthoredEnglish {
		t.Fatalf("english base should be authored, got %+v", created.Translations.Title)
	}

	updated, err := f.svc.Save(ctx, created.ID, PictureSetInput{Title: "晨雾"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Translations.Title.EN != "Morning fog" {
		t.Fatalf("authored english must survive a base change, got %+v", updated.Translations.Title)
	}
	if updated.Translations.Title.ZH != "晨雾" {
		t.Fatalf("chinese should be refilled, got %+v", updated.Translations.Title)
	}
}

func TestPictureSetSaveRunsEnrichment(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-enrich")
	f.analyzer.outputs["/static/uploads/a.jpg|title"] = "海边日落"

	detail, err := f.svc.Save(context.Background(), 0, PictureSetInput{
		Pictures:   []PictureInput{{ImageURL: "a.jpg"}},
		Enrichment: EnrichmentOptions{GenerateTitle: true},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(detail.Enrichment) != 1 || !detail.Enrichment[0].TitleGenerated {
		t.Fatalf("expected enrichment result, got %+v", detail.Enrichment)
	}
	title := detail.Pictures[0].Translations.Title
	if detail.Pictures[0].Title != "海边日落" || title.ZH != "海边日落" || title.EN != "Sunset by the sea" {
		t.Fatalf("generated title should be filled in both locales: %q %+v", detail.Pictures[0].Title, title)
	}
}

func TestPictureSetDeleteRemovesRowsAndObjects(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-delete")
	ctx := context.Background()

	cover := f.putObject(t, "20240101/cover.jpg")
	image := f.putObject(t, "20240101/a.jpg")
	created, err := f.svc.Save(ctx, 0, PictureSetInput{
		Title:         "Coast",
		CoverImageURL: &cover,
		Tags:          []string{"sea"},
		Pictures:      []PictureInput{{ImageURL: image, Tags: []string{"sea"}}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, created.ID); !errors.Is(err, ErrPictureSetNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	for _, model := range []any{&db.Picture{}, &db.PictureTag{}, &db.PictureSetTag{}, &db.PictureSetTranslation{}, &db.PictureTranslation{}} {
		var count int64
		f.gdb.Model(model).Count(&count)
		if count != 0 {
			t.Fatalf("expected %T rows to be removed, got %d", model, count)
		}
	}
	if f.objectExists(cover) || f.objectExists(image) {
		t.Fatal("storage objects should be removed")
	}
	if err := f.svc.Delete(ctx, created.ID); !errors.Is(err, ErrPictureSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPictureSetNextPositionBalancesRows(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-position")
	ctx := context.Background()

	var positions []string
	for i := 0; i < 3; i++ {
		detail, err := f.svc.Save(ctx, 0, PictureSetInput{Title: "Set"})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		positions = append(positions, detail.Position)
	}
	if positions[0] != db.PositionUp || positions[1] != db.PositionDown || positions[2] != db.PositionUp {
		t.Fatalf("unexpected positions %v", positions)
	}
}

func TestPictureSetListFiltersPublished(t *testing.T) {
	f := newPictureSetFixture(t, "picture-set-list")
	ctx := context.Background()

	for _, published := range []bool{true, false, true} {
		if _, err := f.svc.Save(ctx, 0, PictureSetInput{
			Title:       "Set",
			IsPublished: published,
			Pictures:    []PictureInput{{ImageURL: "a.jpg"}, {ImageURL: "b.jpg"}},
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	published := true
	page, err := f.svc.List(ctx, PictureSetFilter{Published: &published, PerPage: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Page != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].PictureCount != 2 || !page.Items[0].IsPublished {
		t.Fatalf("unexpected summary %+v", page.Items[0])
	}

	all, err := f.svc.List(ctx, PictureSetFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 3 || all.PerPage != 20 {
		t.Fatalf("unexpected page %+v", all)
	}
}
