package actualize

import (
	"context"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/store"
)

// Hydrator 按端点 ID 补全传入实体的反规范化快照，使首次写入的快照与后续实际化结果一致。
// 端点无法解析时返回 VALIDATION_ERROR。
type Hydrator struct {
	repos Repositories
}

func NewHydrator(repos Repositories) *Hydrator {
	return &Hydrator{repos: repos}
}

func (h *Hydrator) RuleSet(ctx context.Context, rs *refbook.RuleSet) error {
	l := newLookup(h.repos)
	for _, ep := range ruleSetEndpoints() {
		snap := ep.Get(rs)
		m, err := h.repos.MetaFields.FindByID(ctx, snap.MetaFieldID)
		if err != nil {
			return missing(err, ep.Name+".metaFieldId", snap.MetaFieldID)
		}
		fresh, err := l.metaFieldSnapshot(ctx, m)
		if err != nil {
			return missing(err, ep.Name+".metaFieldId", snap.MetaFieldID)
		}
		*snap = fresh
	}
	if rs.Default != nil {
		f, err := h.repos.Fields.FindByID(ctx, rs.Default.FieldID)
		if err != nil {
			return missing(err, "default.fieldId", rs.Default.FieldID)
		}
		*rs.Default = f.Snapshot()
	}
	return nil
}

// Rule 补全规则两端的字段快照；两端字段必须分别属于规则集的源、目标元字段
func (h *Hydrator) Rule(ctx context.Context, r *refbook.Rule) error {
	rs, err := h.repos.RuleSets.FindByID(ctx, r.RuleSetID)
	if err != nil {
		return missing(err, "ruleSetId", r.RuleSetID)
	}
	endpoints := []struct {
		name      string
		snap      *refbook.FieldSnapshot
		metaField string
	}{
		{"from", &r.From, rs.From.MetaFieldID},
		{"to", &r.To, rs.To.MetaFieldID},
	}
	for _, ep := range endpoints {
		f, err := h.repos.Fields.FindByID(ctx, ep.snap.FieldID)
		if err != nil {
			return missing(err, ep.name+".fieldId", ep.snap.FieldID)
		}
		if f.MetaFieldID != ep.metaField {
			return errors.Errorf(errors.ErrCodeValidation, "%s.fieldId=%s 属于元字段 %s，规则集 %s 的%s端点为 %s",
				ep.name, f.ID, f.MetaFieldID, rs.ID, ep.name, ep.metaField).
				WithContext("rule_set_id", rs.ID)
		}
		*ep.snap = f.Snapshot()
	}
	return nil
}

func (h *Hydrator) SyncTask(ctx context.Context, t *refbook.SyncTask) error {
	l := newLookup(h.repos)
	d, err := l.dictionary(ctx, t.Dictionary.DictionaryID)
	if err != nil {
		return missing(err, "dictionary.dictionaryId", t.Dictionary.DictionaryID)
	}
	snap, err := l.dictionarySnapshot(ctx, d)
	if err != nil {
		return missing(err, "dictionary.groupId", d.GroupID)
	}
	t.Dictionary = snap
	return nil
}

// Require 校验上级实体存在且未关闭
func Require[T domain.Entity[T]](ctx context.Context, repo store.IRepository[T], field, id string) error {
	parent, err := repo.FindByID(ctx, id)
	if err != nil {
		return missing(err, field, id)
	}
	if parent.IsClosed() {
		return errors.Errorf(errors.ErrCodeValidation, "依赖已关闭: %s=%s", field, id).
			WithContext("kind", repo.Kind().String())
	}
	return nil
}

func missing(err error, field, id string) error {
	if id == "" {
		return errors.Errorf(errors.ErrCodeValidation, "缺少必需的依赖: %s", field)
	}
	if errors.IsNotFound(err) || errors.IsErrorCode(err, errors.ErrCodeDependency) {
		return errors.WrapError(err, errors.ErrCodeValidation, "依赖不存在: "+field+"="+id)
	}
	return err
}
