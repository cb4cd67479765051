package actualize

import (
	"context"
	"maps"
	"slices"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/history"
	"refsync/logging"
	"refsync/store"
)

// Plan 一次级联对账的输入：Existing 为已存储的版本，Incoming 为目标状态。
// 出现在 Existing 而不在 Incoming 中的实体会被关闭。
type Plan[T any] struct {
	Existing map[string]T
	Incoming map[string]T
}

func newPlan[T any]() Plan[T] {
	return Plan[T]{Existing: make(map[string]T), Incoming: make(map[string]T)}
}

// Empty 计划不涉及任何实体
func (p Plan[T]) Empty() bool { return len(p.Existing) == 0 && len(p.Incoming) == 0 }

type conflictKey struct {
	ruleSetID string
	from      string
}

// ConflictResolver 规则专用的冲突策略：关闭歧义与悬空规则，按已有映射补全新规则
type ConflictResolver struct {
	rules  store.IRepository[*refbook.Rule]
	logger logging.Logger
}

// NewConflictResolver 创建冲突解决器
func NewConflictResolver(rules store.IRepository[*refbook.Rule], logger logging.Logger) *ConflictResolver {
	if logger == nil {
		logger = logging.Component("actualize.conflict")
	}
	return &ConflictResolver{rules: rules, logger: logger}
}

// Resolve 处理刚被刷新的规则。
//
// 按 (规则集, 折叠后的源值) 分组；含有刷新规则、成员多于一个且目标值不一致的组整体关闭，
// 其余刷新规则更新。歧义按引用冲突记录 WARN 日志，不作为错误返回。
func (c *ConflictResolver) Resolve(ctx context.Context, refreshed []*refbook.Rule) (Plan[*refbook.Rule], error) {
	plan := newPlan[*refbook.Rule]()
	if len(refreshed) == 0 {
		return plan, nil
	}
	byID := make(map[string]*refbook.Rule, len(refreshed))
	setIDs := make(map[string]struct{})
	for _, r := range refreshed {
		byID[r.ID] = r
		setIDs[r.RuleSetID] = struct{}{}
	}

	stored, err := c.rules.FindByCriteria(ctx, store.AnyOf(store.Where("ruleSetId", slices.Sorted(maps.Keys(setIDs))...)))
	if err != nil {
		return plan, err
	}
	storedByID := make(map[string]*refbook.Rule, len(stored))
	groups := make(map[conflictKey][]*refbook.Rule)
	for _, s := range stored {
		storedByID[s.ID] = s
		current := s
		if r, ok := byID[s.ID]; ok {
			current = r
		}
		key := conflictKey{current.RuleSetID, history.FoldKey(current.From.Value)}
		groups[key] = append(groups[key], current)
	}

	ambiguous := make(map[string]struct{})
	for _, key := range sortedKeys(groups) {
		members := groups[key]
		if len(members) < 2 || !containsAny(members, byID) || !disagree(members) {
			continue
		}
		ids := domain.IDs(members)
		c.logger.Warn(ctx, "规则映射歧义，整组关闭",
			logging.String("rule_set", key.ruleSetID),
			logging.String("from", key.from),
			logging.Strings("rules", ids))
		for _, id := range ids {
			ambiguous[id] = struct{}{}
		}
	}

	for id := range ambiguous {
		plan.Existing[id] = storedByID[id]
	}
	for id, r := range byID {
		old, ok := storedByID[id]
		if !ok {
			// 已关闭或已删除的规则不再刷新
			continue
		}
		plan.Existing[id] = old
		if _, closed := ambiguous[id]; !closed {
			plan.Incoming[id] = r
		}
	}
	return plan, nil
}

// Dangling 源或目标字段已关闭的有效规则全部关闭
func (c *ConflictResolver) Dangling(ctx context.Context, closedFieldIDs []string) (Plan[*refbook.Rule], error) {
	plan := newPlan[*refbook.Rule]()
	if len(closedFieldIDs) == 0 {
		return plan, nil
	}
	rules, err := c.rules.FindByCriteria(ctx, store.AnyOf(
		store.Where("from.fieldId", closedFieldIDs...),
		store.Where("to.fieldId", closedFieldIDs...),
	))
	if err != nil {
		return plan, err
	}
	for _, r := range rules {
		plan.Existing[r.ID] = r
	}
	if len(rules) > 0 {
		c.logger.Info(ctx, "关闭悬空规则", logging.Strings("rules", domain.IDs(rules)))
	}
	return plan, nil
}

// Synthesize 为新字段补全规则：规则集以该字段的元字段为源，且集合中已有规则把相同的值
// 映射到唯一目标时，复制该目标生成新规则。已有多个不同目标时不猜测，仅记录日志。
func (c *ConflictResolver) Synthesize(ctx context.Context, created []*refbook.Field, ruleSets []*refbook.RuleSet) (Plan[*refbook.Rule], error) {
	plan := newPlan[*refbook.Rule]()
	for _, rs := range ruleSets {
		var sources []*refbook.Field
		for _, f := range created {
			if f.MetaFieldID == rs.From.MetaFieldID {
				sources = append(sources, f)
			}
		}
		if len(sources) == 0 {
			continue
		}
		rules, err := c.rules.FindByCriteria(ctx, store.AnyOf(store.Where("ruleSetId", rs.ID)))
		if err != nil {
			return plan, err
		}
		for _, f := range sources {
			to, ok := c.destination(ctx, rs, f, rules)
			if !ok {
				continue
			}
			rule := &refbook.Rule{RuleSetID: rs.ID, From: f.Snapshot(), To: to}
			plan.Incoming[rs.ID+"/"+f.ID] = rule
		}
	}
	return plan, nil
}

func (c *ConflictResolver) destination(ctx context.Context, rs *refbook.RuleSet, f *refbook.Field, rules []*refbook.Rule) (refbook.FieldSnapshot, bool) {
	value := history.FoldKey(f.Value)
	var (
		targets []refbook.FieldSnapshot
		seen    = make(map[string]struct{})
	)
	for _, r := range rules {
		if r.From.FieldID == f.ID {
			return refbook.FieldSnapshot{}, false
		}
		if history.FoldKey(r.From.Value) != value {
			continue
		}
		if _, dup := seen[r.To.FieldID]; dup {
			continue
		}
		seen[r.To.FieldID] = struct{}{}
		targets = append(targets, r.To)
	}
	switch len(targets) {
	case 0:
		return refbook.FieldSnapshot{}, false
	case 1:
		if targets[0].FieldID == f.ID {
			return refbook.FieldSnapshot{}, false
		}
		return targets[0], true
	default:
		c.logger.Warn(ctx, "已有映射目标不唯一，跳过规则补全",
			logging.String("rule_set", rs.ID), logging.String("field", f.ID), logging.Int("targets", len(targets)))
		return refbook.FieldSnapshot{}, false
	}
}

// CheckMappings 同一规则集内折叠后源值相同的有效规则必须指向相同的目标值
func CheckMappings(rules []*refbook.Rule) error {
	groups := make(map[conflictKey][]*refbook.Rule)
	for _, r := range rules {
		if r.IsClosed() {
			continue
		}
		key := conflictKey{r.RuleSetID, history.FoldKey(r.From.Value)}
		groups[key] = append(groups[key], r)
	}
	for _, key := range sortedKeys(groups) {
		if members := groups[key]; len(members) > 1 && disagree(members) {
			targets := make([]string, 0, len(members))
			for _, m := range members {
				targets = append(targets, m.To.Value)
			}
			return errors.Errorf(errors.ErrCodeValidation, "规则集 %s 中源值 %q 映射到不同的目标值 %q", key.ruleSetID, key.from, targets).
				WithContext("rule_set_id", key.ruleSetID)
		}
	}
	return nil
}

func containsAny(members []*refbook.Rule, ids map[string]*refbook.Rule) bool {
	for _, m := range members {
		if _, ok := ids[m.ID]; ok {
			return true
		}
	}
	return false
}

func disagree(members []*refbook.Rule) bool {
	first := history.FoldKey(members[0].To.Value)
	for _, m := range members[1:] {
		if history.FoldKey(m.To.Value) != first {
			return true
		}
	}
	return false
}

func sortedKeys(groups map[conflictKey][]*refbook.Rule) []conflictKey {
	keys := slices.Collect(maps.Keys(groups))
	slices.SortFunc(keys, func(a, b conflictKey) int {
		if a.ruleSetID != b.ruleSetID {
			if a.ruleSetID < b.ruleSetID {
				return -1
			}
			return 1
		}
		if a.from < b.from {
			return -1
		}
		if a.from > b.from {
			return 1
		}
		return 0
	})
	return keys
}
