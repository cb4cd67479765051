package actualize

import (
	"context"

	"refsync/domain/refbook"
)

func ruleSetEndpoints() []Accessor[*refbook.RuleSet, refbook.MetaFieldSnapshot] {
	return []Accessor[*refbook.RuleSet, refbook.MetaFieldSnapshot]{
		{Name: "from", Get: func(rs *refbook.RuleSet) *refbook.MetaFieldSnapshot { return &rs.From }},
		{Name: "to", Get: func(rs *refbook.RuleSet) *refbook.MetaFieldSnapshot { return &rs.To }},
	}
}

func metaFieldID(s refbook.MetaFieldSnapshot) string { return s.MetaFieldID }

func fieldID(s refbook.FieldSnapshot) string { return s.FieldID }

func dictionaryID(s refbook.DictionarySnapshot) string { return s.DictionaryID }

// RuleSetsByGroup 分组变化：分组 → 字典 → 元字段，刷新规则集两端的元字段快照
func RuleSetsByGroup(repos Repositories) *Actualizer[*refbook.Group, *refbook.RuleSet, refbook.MetaFieldSnapshot] {
	return &Actualizer[*refbook.Group, *refbook.RuleSet, refbook.MetaFieldSnapshot]{
		Name: "rule-sets-by-group",
		Extract: func(ctx context.Context, groups []*refbook.Group) (map[string]refbook.MetaFieldSnapshot, error) {
			l := newLookup(repos)
			l.primeGroups(groups)
			out := make(map[string]refbook.MetaFieldSnapshot)
			for _, g := range groups {
				dictionaries, err := activeChildren(ctx, repos.Dictionaries, g.ID)
				if err != nil {
					return nil, err
				}
				l.primeDictionaries(dictionaries)
				if err := collectMetaFields(ctx, l, dictionaries, out); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
		ID:        metaFieldID,
		Endpoints: ruleSetEndpoints(),
	}
}

// RuleSetsByDictionary 字典变化：字典 → 元字段
func RuleSetsByDictionary(repos Repositories) *Actualizer[*refbook.Dictionary, *refbook.RuleSet, refbook.MetaFieldSnapshot] {
	return &Actualizer[*refbook.Dictionary, *refbook.RuleSet, refbook.MetaFieldSnapshot]{
		Name: "rule-sets-by-dictionary",
		Extract: func(ctx context.Context, dictionaries []*refbook.Dictionary) (map[string]refbook.MetaFieldSnapshot, error) {
			l := newLookup(repos)
			l.primeDictionaries(dictionaries)
			out := make(map[string]refbook.MetaFieldSnapshot)
			if err := collectMetaFields(ctx, l, dictionaries, out); err != nil {
				return nil, err
			}
			return out, nil
		},
		ID:        metaFieldID,
		Endpoints: ruleSetEndpoints(),
	}
}

// RuleSetsByMetaField 元字段变化：恒等映射
func RuleSetsByMetaField(repos Repositories) *Actualizer[*refbook.MetaField, *refbook.RuleSet, refbook.MetaFieldSnapshot] {
	return &Actualizer[*refbook.MetaField, *refbook.RuleSet, refbook.MetaFieldSnapshot]{
		Name: "rule-sets-by-meta-field",
		Extract: func(ctx context.Context, metaFields []*refbook.MetaField) (map[string]refbook.MetaFieldSnapshot, error) {
			l := newLookup(repos)
			out := make(map[string]refbook.MetaFieldSnapshot, len(metaFields))
			for _, m := range metaFields {
				snap, err := l.metaFieldSnapshot(ctx, m)
				if err != nil {
					return nil, err
				}
				out[m.ID] = snap
			}
			return out, nil
		},
		ID:        metaFieldID,
		Endpoints: ruleSetEndpoints(),
	}
}

func collectMetaFields(ctx context.Context, l *lookup, dictionaries []*refbook.Dictionary, out map[string]refbook.MetaFieldSnapshot) error {
	for _, d := range dictionaries {
		metaFields, err := activeChildren(ctx, l.repos.MetaFields, d.ID)
		if err != nil {
			return err
		}
		for _, m := range metaFields {
			snap, err := l.metaFieldSnapshot(ctx, m)
			if err != nil {
				return err
			}
			out[m.ID] = snap
		}
	}
	return nil
}

func fieldSnapshots(ctx context.Context, fields []*refbook.Field) (map[string]refbook.FieldSnapshot, error) {
	out := make(map[string]refbook.FieldSnapshot, len(fields))
	for _, f := range fields {
		out[f.ID] = f.Snapshot()
	}
	return out, nil
}

// RulesByField 字段变化：刷新规则两端的字段快照
func RulesByField() *Actualizer[*refbook.Field, *refbook.Rule, refbook.FieldSnapshot] {
	return &Actualizer[*refbook.Field, *refbook.Rule, refbook.FieldSnapshot]{
		Name:    "rules-by-field",
		Extract: fieldSnapshots,
		ID:      fieldID,
		Endpoints: []Accessor[*refbook.Rule, refbook.FieldSnapshot]{
			{Name: "from", Get: func(r *refbook.Rule) *refbook.FieldSnapshot { return &r.From }},
			{Name: "to", Get: func(r *refbook.Rule) *refbook.FieldSnapshot { return &r.To }},
		},
	}
}

// RuleSetDefaultsByField 字段变化：刷新规则集的默认目标值
func RuleSetDefaultsByField() *Actualizer[*refbook.Field, *refbook.RuleSet, refbook.FieldSnapshot] {
	return &Actualizer[*refbook.Field, *refbook.RuleSet, refbook.FieldSnapshot]{
		Name:    "rule-set-defaults-by-field",
		Extract: fieldSnapshots,
		ID:      fieldID,
		Endpoints: []Accessor[*refbook.RuleSet, refbook.FieldSnapshot]{
			{Name: "default", Get: func(rs *refbook.RuleSet) *refbook.FieldSnapshot { return rs.Default }},
		},
	}
}

func syncTaskEndpoints() []Accessor[*refbook.SyncTask, refbook.DictionarySnapshot] {
	return []Accessor[*refbook.SyncTask, refbook.DictionarySnapshot]{
		{Name: "dictionary", Get: func(t *refbook.SyncTask) *refbook.DictionarySnapshot { return &t.Dictionary }},
	}
}

// SyncTasksByDictionary 字典变化：刷新同步任务中的字典快照
func SyncTasksByDictionary(repos Repositories) *Actualizer[*refbook.Dictionary, *refbook.SyncTask, refbook.DictionarySnapshot] {
	return &Actualizer[*refbook.Dictionary, *refbook.SyncTask, refbook.DictionarySnapshot]{
		Name: "sync-tasks-by-dictionary",
		Extract: func(ctx context.Context, dictionaries []*refbook.Dictionary) (map[string]refbook.DictionarySnapshot, error) {
			l := newLookup(repos)
			out := make(map[string]refbook.DictionarySnapshot, len(dictionaries))
			for _, d := range dictionaries {
				snap, err := l.dictionarySnapshot(ctx, d)
				if err != nil {
					return nil, err
				}
				out[d.ID] = snap
			}
			return out, nil
		},
		ID:        dictionaryID,
		Endpoints: syncTaskEndpoints(),
	}
}

// SyncTasksByGroup 分组变化：分组 → 字典
func SyncTasksByGroup(repos Repositories) *Actualizer[*refbook.Group, *refbook.SyncTask, refbook.DictionarySnapshot] {
	return &Actualizer[*refbook.Group, *refbook.SyncTask, refbook.DictionarySnapshot]{
		Name: "sync-tasks-by-group",
		Extract: func(ctx context.Context, groups []*refbook.Group) (map[string]refbook.DictionarySnapshot, error) {
			l := newLookup(repos)
			l.primeGroups(groups)
			out := make(map[string]refbook.DictionarySnapshot)
			for _, g := range groups {
				dictionaries, err := activeChildren(ctx, repos.Dictionaries, g.ID)
				if err != nil {
					return nil, err
				}
				for _, d := range dictionaries {
					snap, err := l.dictionarySnapshot(ctx, d)
					if err != nil {
						return nil, err
					}
					out[d.ID] = snap
				}
			}
			return out, nil
		},
		ID:        dictionaryID,
		Endpoints: syncTaskEndpoints(),
	}
}
