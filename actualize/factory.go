package actualize

import (
	"context"
	"strings"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
)

// RuleSetFactory 按两个字典的主元字段构建规则集
type RuleSetFactory struct {
	repos Repositories
}

func NewRuleSetFactory(repos Repositories) *RuleSetFactory {
	return &RuleSetFactory{repos: repos}
}

// PrimaryMetaField 字典唯一的有效主元字段；没有或有多个候选时返回 VALIDATION_ERROR
func (f *RuleSetFactory) PrimaryMetaField(ctx context.Context, dictionaryID string) (*refbook.MetaField, error) {
	metaFields, err := activeChildren(ctx, f.repos.MetaFields, dictionaryID)
	if err != nil {
		return nil, err
	}
	var candidates []*refbook.MetaField
	for _, m := range metaFields {
		if m.Primary {
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return nil, errors.Errorf(errors.ErrCodeValidation, "字典 %s 没有主元字段", dictionaryID).
			WithContext("dictionary_id", dictionaryID)
	default:
		ids := domain.IDs(candidates)
		return nil, errors.Errorf(errors.ErrCodeValidation, "字典 %s 有 %d 个主元字段: %s",
			dictionaryID, len(candidates), strings.Join(ids, ", ")).
			WithContext("dictionary_id", dictionaryID)
	}
}

// Build 构建未持久化的规则集，端点快照取自当前存储
func (f *RuleSetFactory) Build(ctx context.Context, name, fromDictionaryID, toDictionaryID string) (*refbook.RuleSet, error) {
	l := newLookup(f.repos)
	from, err := f.endpoint(ctx, l, fromDictionaryID)
	if err != nil {
		return nil, err
	}
	to, err := f.endpoint(ctx, l, toDictionaryID)
	if err != nil {
		return nil, err
	}
	rs := &refbook.RuleSet{Name: name, From: from, To: to}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (f *RuleSetFactory) endpoint(ctx context.Context, l *lookup, dictionaryID string) (refbook.MetaFieldSnapshot, error) {
	m, err := f.PrimaryMetaField(ctx, dictionaryID)
	if err != nil {
		return refbook.MetaFieldSnapshot{}, err
	}
	return l.metaFieldSnapshot(ctx, m)
}
