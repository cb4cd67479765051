package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityKind(t *testing.T) {
	t.Run("优先级随依赖拓扑递增", func(t *testing.T) {
		kinds := Kinds()
		for i := 1; i < len(kinds); i++ {
			assert.Less(t, kinds[i-1].Priority(), kinds[i].Priority())
		}
	})

	t.Run("解析不区分大小写", func(t *testing.T) {
		k, err := ParseKind(" meta_field ")
		require.NoError(t, err)
		assert.Equal(t, KindMetaField, k)

		_, err = ParseKind("TABLE")
		assert.Error(t, err)
	})

	t.Run("文本编解码", func(t *testing.T) {
		text, err := KindRuleSet.MarshalText()
		require.NoError(t, err)
		var k EntityKind
		require.NoError(t, k.UnmarshalText(text))
		assert.Equal(t, KindRuleSet, k)
		assert.False(t, EntityKind(42).Valid())
		assert.Equal(t, "KIND(42)", EntityKind(42).String())
	})
}

func TestChangeType(t *testing.T) {
	tests := []struct {
		change     ChangeType
		actionable bool
		actual     bool
		event      EventType
	}{
		{ChangeIgnore, false, false, ""},
		{ChangeSkip, false, true, ""},
		{ChangeCreate, true, true, EventCreate},
		{ChangeUpdate, true, true, EventUpdate},
		{ChangeRestore, true, true, EventRestore},
		{ChangeClose, true, false, EventClose},
	}
	for _, tt := range tests {
		t.Run(tt.change.String(), func(t *testing.T) {
			assert.Equal(t, tt.actionable, tt.change.Actionable())
			assert.Equal(t, tt.actual, tt.change.Actual())
			assert.Equal(t, tt.event, tt.change.EventType())
		})
	}

	var ct ChangeType
	assert.Error(t, ct.UnmarshalText([]byte("DELETE")))
}

func TestHistorical(t *testing.T) {
	var h Historical
	assert.False(t, h.IsClosed())
	assert.True(t, h.ChangeDate().IsZero())

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	h.AttachHistory(&HistoryEvent{ID: 7, EventType: EventClose, EventDate: date})
	assert.Equal(t, int64(7), h.GetHistoryID())
	assert.True(t, h.IsClosed())
	assert.Equal(t, EventClose, h.ChangeType())
	assert.Equal(t, date, h.ChangeDate())

	h.AttachHistory(nil)
	assert.Equal(t, int64(7), h.GetHistoryID())
}

func TestHistoryEvent_DiffFor(t *testing.T) {
	ev := &HistoryEvent{
		ID: 3, TargetID: "f-1", TargetKind: KindField, EventType: EventUpdate, Author: "alice",
		Diffs: []Diff{{FieldType: "STRING", FieldName: "value", From: "A", To: "B"}},
	}
	d, ok := ev.DiffFor("value")
	require.True(t, ok)
	assert.Equal(t, "B", d.To)
	_, ok = ev.DiffFor("recordId")
	assert.False(t, ok)
	assert.Equal(t, `UPDATE FIELD[f-1] #3 by alice (value)`, ev.String())
}

func TestPermission(t *testing.T) {
	assert.True(t, PermAll.Has(PermRead|PermClose))
	assert.False(t, PermRead.Has(PermWrite))
	assert.True(t, PermNone.Has(PermNone))
}
