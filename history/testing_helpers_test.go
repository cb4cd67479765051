package history

import (
	"time"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/logging"
)

var testDate = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler() *Reconciler {
	r, err := NewReconciler(Config{Identity: &SequentialIdentity{Prefix: "new"}, Logger: logging.NewNoopLogger()})
	if err != nil {
		panic(err)
	}
	return r
}

func group(id, name string) *refbook.Group {
	g := &refbook.Group{Name: name}
	g.ID = id
	return g
}

func withEvent[T domain.IHistorical](e T, id int64, t domain.EventType) T {
	e.SetHistory(id, &domain.HistoryEvent{ID: id, TargetID: e.GetID(), TargetKind: e.Kind(), EventType: t, EventDate: testDate})
	return e
}

func closedGroup(id, name string) *refbook.Group {
	return withEvent(group(id, name), 90, domain.EventClose)
}

func openGroup(id, name string) *refbook.Group {
	return withEvent(group(id, name), 10, domain.EventCreate)
}
