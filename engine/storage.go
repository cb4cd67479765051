package engine

import (
	"context"

	"refsync/actualize"
	core "refsync/data/db"
	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/store"
	"refsync/store/memory"
	"refsync/store/sqlstore"
	"refsync/uow"
)

// Storage 引擎使用的仓储、历史存储与工作单元参与者
type Storage struct {
	Repositories actualize.Repositories
	Events       store.IHistoryStore
	Participants []uow.IParticipant

	close func() error
}

// Close 释放存储持有的连接
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewMemoryStorage 进程内存储；每个仓储都参与工作单元回滚
func NewMemoryStorage() *Storage {
	groups := memory.NewRepository[*refbook.Group](domain.KindGroup)
	dictionaries := memory.NewRepository[*refbook.Dictionary](domain.KindDictionary)
	metaFields := memory.NewRepository[*refbook.MetaField](domain.KindMetaField)
	fields := memory.NewRepository[*refbook.Field](domain.KindField)
	ruleSets := memory.NewRepository[*refbook.RuleSet](domain.KindRuleSet)
	rules := memory.NewRepository[*refbook.Rule](domain.KindRule)
	tasks := memory.NewRepository[*refbook.SyncTask](domain.KindSyncTask)
	events := memory.NewHistoryStore()

	return &Storage{
		Repositories: actualize.Repositories{
			Groups: groups, Dictionaries: dictionaries, MetaFields: metaFields, Fields: fields,
			RuleSets: ruleSets, Rules: rules, SyncTasks: tasks,
		},
		Events:       events,
		Participants: []uow.IParticipant{groups, dictionaries, metaFields, fields, ruleSets, rules, tasks, events},
	}
}

// NewSQLStorage 基于数据库的存储，建表后所有读写都走工作单元中的事务
func NewSQLStorage(ctx context.Context, db core.IDatabase) (*Storage, error) {
	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Storage{
		Repositories: actualize.Repositories{
			Groups:       sqlstore.NewRepository(db, domain.KindGroup, func() *refbook.Group { return &refbook.Group{} }),
			Dictionaries: sqlstore.NewRepository(db, domain.KindDictionary, func() *refbook.Dictionary { return &refbook.Dictionary{} }),
			MetaFields:   sqlstore.NewRepository(db, domain.KindMetaField, func() *refbook.MetaField { return &refbook.MetaField{} }),
			Fields:       sqlstore.NewRepository(db, domain.KindField, func() *refbook.Field { return &refbook.Field{} }),
			RuleSets:     sqlstore.NewRepository(db, domain.KindRuleSet, func() *refbook.RuleSet { return &refbook.RuleSet{} }),
			Rules:        sqlstore.NewRepository(db, domain.KindRule, func() *refbook.Rule { return &refbook.Rule{} }),
			SyncTasks:    sqlstore.NewRepository(db, domain.KindSyncTask, func() *refbook.SyncTask { return &refbook.SyncTask{} }),
		},
		Events:       sqlstore.NewHistoryStore(db),
		Participants: []uow.IParticipant{uow.NewSQLParticipant(db)},
		close:        db.Close,
	}, nil
}
