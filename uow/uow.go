// Package uow 提供跨存储参与者的工作单元：一次对账及其所有级联实际化要么全部提交，要么全部回滚
package uow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	core "refsync/data/db"
	"refsync/errors"
	"refsync/logging"
)

// IParticipant 工作单元参与者。Begin 可返回携带自身状态的新 context（例如 SQL 事务）。
type IParticipant interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type unitKey struct{}

// ID 当前工作单元 ID，不在工作单元内时为空串
func ID(ctx context.Context) string {
	id, _ := ctx.Value(unitKey{}).(string)
	return id
}

// Manager 工作单元管理器
type Manager struct {
	participants []IParticipant
	logger       logging.Logger
}

// NewManager 创建管理器；参与者按注册顺序开始与提交，逆序回滚
func NewManager(logger logging.Logger, participants ...IParticipant) *Manager {
	if logger == nil {
		logger = logging.Component("uow")
	}
	return &Manager{participants: participants, logger: logger}
}

// Add 追加参与者
func (m *Manager) Add(p IParticipant) { m.participants = append(m.participants, p) }

// Do 在工作单元内执行 fn。context 中已有工作单元时直接加入，由最外层负责提交或回滚。
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ID(ctx) != "" {
		return fn(ctx)
	}

	id := uuid.NewString()
	ctx = context.WithValue(ctx, unitKey{}, id)

	begun := make([]IParticipant, 0, len(m.participants))
	for _, p := range m.participants {
		next, beginErr := p.Begin(ctx)
		if beginErr != nil {
			m.rollback(ctx, begun)
			return errors.WrapError(beginErr, errors.ErrCodeDatabase, "开始工作单元失败")
		}
		ctx = next
		begun = append(begun, p)
	}

	defer func() {
		if r := recover(); r != nil {
			m.rollback(ctx, begun)
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		m.logger.Warn(ctx, "工作单元回滚", logging.Error(err))
		m.rollback(ctx, begun)
		return err
	}

	for i, p := range begun {
		if commitErr := p.Commit(ctx); commitErr != nil {
			m.rollback(ctx, begun[i+1:])
			return errors.WrapError(commitErr, errors.ErrCodeDatabase, "提交工作单元失败")
		}
	}
	m.logger.Debug(ctx, "工作单元已提交", logging.Int("participants", len(begun)))
	return nil
}

func (m *Manager) rollback(ctx context.Context, begun []IParticipant) {
	for i := len(begun) - 1; i >= 0; i-- {
		if err := begun[i].Rollback(ctx); err != nil {
			m.logger.Error(ctx, "参与者回滚失败", logging.String("participant", fmt.Sprintf("%T", begun[i])), logging.Error(err))
		}
	}
}

// SQLParticipant 在 context 中开启 SQL 事务，同一工作单元内的 SQL 仓储共享该事务
type SQLParticipant struct {
	db core.IDatabase
}

func NewSQLParticipant(db core.IDatabase) *SQLParticipant { return &SQLParticipant{db: db} }

func (p *SQLParticipant) Begin(ctx context.Context) (context.Context, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return ctx, err
	}
	return core.WithTx(ctx, tx), nil
}

func (p *SQLParticipant) Commit(ctx context.Context) error {
	tx, ok := core.TxFrom(ctx)
	if !ok {
		return errors.NewError(errors.ErrCodeProgramming, "context 中没有事务")
	}
	return tx.Commit()
}

func (p *SQLParticipant) Rollback(ctx context.Context) error {
	tx, ok := core.TxFrom(ctx)
	if !ok {
		return nil
	}
	return tx.Rollback()
}

func init() {
	logging.RegisterContextFields(func(ctx context.Context) []logging.Field {
		if id := ID(ctx); id != "" {
			return []logging.Field{logging.String("uow", id)}
		}
		return nil
	})
}
