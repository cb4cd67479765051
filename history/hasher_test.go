package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/domain"
	"refsync/domain/refbook"
)

func TestFingerprint_IgnoresIdentityAndHistory(t *testing.T) {
	h := DefaultHasher()
	a := openGroup("g1", "Sales")
	b := group("other", "Sales")
	b.Permissions = domain.PermAll

	assert.Equal(t, h.Fingerprint(a), h.Fingerprint(b))
}

func TestFingerprint_SetOrderInsensitive(t *testing.T) {
	h := DefaultHasher()
	a := &refbook.Group{Name: "Sales", Tags: []string{"b", "a"}}
	b := &refbook.Group{Name: "Sales", Tags: []string{"a", "b"}}
	assert.Equal(t, h.Fingerprint(a), h.Fingerprint(b))
}

func TestFingerprint_MapKeyOrderStable(t *testing.T) {
	h := DefaultHasher()
	attrs := map[string]string{}
	for _, k := range []string{"z", "a", "m", "c", "q"} {
		attrs[k] = k + "-v"
	}
	d := &refbook.Dictionary{GroupID: "g1", Name: "Currencies", Attributes: attrs}

	first := h.Fingerprint(d)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, h.Fingerprint(d.Clone()))
	}
}

func TestFingerprint_EnumByName(t *testing.T) {
	h := DefaultHasher()
	m := &refbook.MetaField{DictionaryID: "d1", Name: "Code", Type: refbook.TypeDecimal}
	values := h.Canonical(m)

	var typeValue CanonicalValue
	for _, v := range values {
		if v.Name == "type" {
			typeValue = v
		}
	}
	assert.Equal(t, "DECIMAL", typeValue.Key)
}

func TestDiff_UsesSameFieldsAsFingerprint(t *testing.T) {
	h := DefaultHasher()
	old := &refbook.Dictionary{GroupID: "g1", Name: "Currencies", Attributes: map[string]string{"iso": "4217"}}
	upd := old.Clone()
	upd.Name = "CURRENCIES"

	assert.Equal(t, h.Fingerprint(old), h.Fingerprint(upd))
	assert.Empty(t, h.Diff(old, upd), "folded-equal names must not produce a diff")

	upd.Attributes["iso"] = "3166"
	diffs := h.Diff(old, upd)
	require.Len(t, diffs, 1)
	assert.Equal(t, "attributes", diffs[0].FieldName)
	assert.Equal(t, "MAP", diffs[0].FieldType)
	assert.Contains(t, diffs[0].From, "4217")
	assert.Contains(t, diffs[0].To, "3166")
	assert.NotEqual(t, h.Fingerprint(old), h.Fingerprint(upd))
}

func TestDiff_FromAbsent(t *testing.T) {
	h := DefaultHasher()
	g := &refbook.Group{Code: "S", Name: "Sales"}

	diffs := h.Diff(nil, g)
	names := make([]string, 0, len(diffs))
	for _, d := range diffs {
		assert.Empty(t, d.From)
		names = append(names, d.FieldName)
	}
	assert.Equal(t, []string{"code", "name"}, names)
}

func TestSnapshot_CoversEveryContentField(t *testing.T) {
	h := DefaultHasher()
	g := &refbook.Group{Code: "S", Name: "Sales"}

	diffs := h.Snapshot(g, g)
	require.Len(t, diffs, len(refbook.Registry()[domain.KindGroup]))
	for _, d := range diffs {
		assert.Equal(t, d.From, d.To)
	}
}

func TestSnapshotFields_RenderStructure(t *testing.T) {
	h := DefaultHasher()
	rs := &refbook.RuleSet{
		Name: "recode",
		From: refbook.MetaFieldSnapshot{MetaFieldID: "m1", MetaFieldName: "Code"},
		To:   refbook.MetaFieldSnapshot{MetaFieldID: "m2"},
	}
	before := h.Fingerprint(rs)

	renamed := rs.Clone()
	renamed.From.MetaFieldName = "Iso code"
	diffs := h.Diff(rs, renamed)
	require.Len(t, diffs, 1)
	assert.Equal(t, "from", diffs[0].FieldName)
	assert.Contains(t, diffs[0].To, "Iso code")
	assert.NotEqual(t, before, h.Fingerprint(renamed))
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, FoldKey("  Sales "), FoldKey("SALES"))
	assert.Equal(t, "sales", FoldKey("Sales"))
}
