package service

import (
	"context"
	"fmt"

	"github.com/lensfolio/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Delta 记录一次关联对账实际新增与移除的目标 ID。
type Delta struct {
	Added   []uint
	Removed []uint
}

// Empty reports whether the reconcile issued no writes.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Reconcile 计算 desired 与 existing 的差集：toAdd = desired − existing，toRemove = existing − desired。
// add / remove 仅在对应差集非空时调用，各调用一次；零值 ID 会被忽略。
func Reconcile(desired, existing []uint, add, remove func([]uint) error) (Delta, error) {
	desiredSet := idSet(desired)
	existingSet := idSet(existing)

	var delta Delta
	for _, id := range uniqueIDs(desired) {
		if _, ok := existingSet[id]; !ok {
			delta.Added = append(delta.Added, id)
		}
	}
	for _, id := range uniqueIDs(existing) {
		if _, ok := desiredSet[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}

	if len(delta.Added) > 0 {
		if err := add(delta.Added); err != nil {
			return Delta{}, err
		}
	}
	if len(delta.Removed) > 0 {
		if err := remove(delta.Removed); err != nil {
			return Delta{Added: delta.Added}, err
		}
	}
	return delta, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func idSet(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// JoinTable 描述一张 (owner, target) 关联表，对账只依赖这两列。
// HasPrimary 表示该表带有 is_primary 列，可用于 MarkPrimary。
type JoinTable struct {
	Model        func() any
	OwnerColumn  string
	TargetColumn string
	HasPrimary   bool
}

var (
	SetTags = JoinTable{
		Model:        func() any { return &db.PictureSetTag{} },
		OwnerColumn:  "picture_set_id",
		TargetColumn: "tag_id",
	}
	SetCategories = JoinTable{
		Model:        func() any { return &db.PictureSetCategory{} },
		OwnerColumn:  "picture_set_id",
		TargetColumn: "category_id",
		HasPrimary:   true,
	}
	SetSections = JoinTable{
		Model:        func() any { return &db.PictureSetSection{} },
		OwnerColumn:  "picture_set_id",
		TargetColumn: "section_id",
	}
	PictureTags = JoinTable{
		Model:        func() any { return &db.PictureTag{} },
		OwnerColumn:  "picture_id",
		TargetColumn: "tag_id",
	}
	PictureCategories = JoinTable{
		Model:        func() any { return &db.PictureCategory{} },
		OwnerColumn:  "picture_id",
		TargetColumn: "category_id",
		HasPrimary:   true,
	}
)

// Existing 返回 owner 当前关联的全部目标 ID。
func (t JoinTable) Existing(ctx context.Context, tx *gorm.DB, ownerID uint) ([]uint, error) {
	var ids []uint
	if err := tx.WithContext(ctx).
		Model(t.Model()).
		Where(t.OwnerColumn+" = ?", ownerID).
		Order(t.TargetColumn+" asc").
		Pluck(t.TargetColumn, &ids).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", t.OwnerColumn, err)
	}
	return ids, nil
}

// Sync 将 owner 的关联替换为 desired（全量替换语义），只写入差量。
func (t JoinTable) Sync(ctx context.Context, tx *gorm.DB, ownerID uint, desired []uint) (Delta, error) {
	existing, err := t.Existing(ctx, tx, ownerID)
	if err != nil {
		return Delta{}, err
	}
	return Reconcile(desired, existing,
		func(ids []uint) error { return t.insert(ctx, tx, ownerID, ids) },
		func(ids []uint) error { return t.delete(ctx, tx, ownerID, ids) },
	)
}

// AddOnly 只追加 ids 中尚未关联的目标，不移除已有关联，返回新增的 ID。
func (t JoinTable) AddOnly(ctx context.Context, tx *gorm.DB, ownerID uint, ids []uint) ([]uint, error) {
	existing, err := t.Existing(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	union := append(append([]uint{}, existing...), ids...)
	delta, err := Reconcile(union, existing,
		func(added []uint) error { return t.insert(ctx, tx, ownerID, added) },
		func([]uint) error { return nil },
	)
	if err != nil {
		return nil, err
	}
	return delta.Added, nil
}

// MarkPrimary 清除 owner 其他行的 is_primary，再把 targetID 对应行标记为主项；targetID 为 0 时只清除。
func (t JoinTable) MarkPrimary(ctx context.Context, tx *gorm.DB, ownerID, targetID uint) error {
	if !t.HasPrimary {
		return fmt.Errorf("join table for %s has no primary flag", t.TargetColumn)
	}
	tx = tx.WithContext(ctx)
	if err := tx.Model(t.Model()).
		Where(t.OwnerColumn+" = ? AND "+t.TargetColumn+" <> ? AND is_primary = ?", ownerID, targetID, true).
		Update("is_primary", false).Error; err != nil {
		return fmt.Errorf("clear primary %s: %w", t.TargetColumn, err)
	}
	if targetID == 0 {
		return nil
	}
	if err := tx.Model(t.Model()).
		Where(t.OwnerColumn+" = ? AND "+t.TargetColumn+" = ?", ownerID, targetID).
		Update("is_primary", true).Error; err != nil {
		return fmt.Errorf("mark primary %s: %w", t.TargetColumn, err)
	}
	return nil
}

// Clear 删除 owner 的全部关联，用于删除作品集或图片。
func (t JoinTable) Clear(ctx context.Context, tx *gorm.DB, ownerID uint) error {
	if err := tx.WithContext(ctx).Where(t.OwnerColumn+" = ?", ownerID).Delete(t.Model()).Error; err != nil {
		return fmt.Errorf("clear %s links: %w", t.TargetColumn, err)
	}
	return nil
}

func (t JoinTable) insert(ctx context.Context, tx *gorm.DB, ownerID uint, ids []uint) error {
	rows := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, map[string]interface{}{t.OwnerColumn: ownerID, t.TargetColumn: id})
	}
	if err := tx.WithContext(ctx).
		Model(t.Model()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error; err != nil {
		return fmt.Errorf("insert %s links: %w", t.TargetColumn, err)
	}
	return nil
}

func (t JoinTable) delete(ctx context.Context, tx *gorm.DB, ownerID uint, ids []uint) error {
	if err := tx.WithContext(ctx).
		Where(t.OwnerColumn+" = ? AND "+t.TargetColumn+" IN ?", ownerID, ids).
		Delete(t.Model()).Error; err != nil {
		return fmt.Errorf("delete %s links: %w", t.TargetColumn, err)
	}
	return nil
}

// Primary 返回 owner 被标记为主项的目标 ID，没有时返回 0。
func (t JoinTable) Primary(ctx context.Context, tx *gorm.DB, ownerID uint) (uint, error) {
	if !t.HasPrimary {
		return 0, nil
	}
	var ids []uint
	if err := tx.WithContext(ctx).
		Model(t.Model()).
		Where(t.OwnerColumn+" = ? AND is_primary = ?", ownerID, true).
		Limit(1).
		Pluck(t.TargetColumn, &ids).Error; err != nil {
		return 0, fmt.Errorf("load primary %s: %w", t.TargetColumn, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}
