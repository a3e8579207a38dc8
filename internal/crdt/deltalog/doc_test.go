package deltalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okteva/conclave/internal/domain"
)

func TestApplyOrderDoesNotChangeState(t *testing.T) {
	e := New()
	u1 := []byte("delta: insert 'hello' at 0")
	u2 := []byte("delta: insert 'world' at 5")

	a := e.NewDoc(domain.DocTypeText)
	require.NoError(t, a.ApplyUpdate(u1))
	require.NoError(t, a.ApplyUpdate(u2))

	b := e.NewDoc(domain.DocTypeText)
	require.NoError(t, b.ApplyUpdate(u2))
	require.NoError(t, b.ApplyUpdate(u1))

	sa, err := a.EncodeState()
	require.NoError(t, err)
	sb, err := b.EncodeState()
	require.NoError(t, err)
	require.Equal(t, sa, sb)
}

func TestDuplicateUpdateIsIdempotent(t *testing.T) {
	d := New().NewDoc(domain.DocTypeChat).(*Doc)
	u := []byte("delta: message 'hi'")
	require.NoError(t, d.ApplyUpdate(u))
	n := d.Len()
	require.NoError(t, d.ApplyUpdate(u))
	require.Equal(t, n, d.Len())
}

func TestSnapshotMergesAsUnion(t *testing.T) {
	e := New()
	a := e.NewDoc(domain.DocTypeWhiteboard)
	require.NoError(t, a.ApplyUpdate([]byte("delta: path 1")))
	require.NoError(t, a.ApplyUpdate([]byte("delta: path 2")))
	state, err := a.EncodeState()
	require.NoError(t, err)

	// A fresh replica fed the snapshot plus one overlapping delta converges
	// on the same encoded state.
	b := e.NewDoc(domain.DocTypeWhiteboard)
	require.NoError(t, b.ApplyUpdate([]byte("delta: path 2")))
	require.NoError(t, b.ApplyUpdate(state))

	got, err := b.EncodeState()
	require.NoError(t, err)
	require.Equal(t, state, got)
}

func TestDocsSeededByType(t *testing.T) {
	e := New()
	for _, typ := range []domain.DocumentType{domain.DocTypeText, domain.DocTypeWhiteboard, domain.DocTypeChat} {
		d := e.NewDoc(typ).(*Doc)
		require.Equal(t, 1, d.Len(), "type %s", typ)
	}

	text, err := e.NewDoc(domain.DocTypeText).EncodeState()
	require.NoError(t, err)
	chat, err := e.NewDoc(domain.DocTypeChat).EncodeState()
	require.NoError(t, err)
	require.NotEqual(t, text, chat)
}

func TestEmptyUpdateRejected(t *testing.T) {
	d := New().NewDoc(domain.DocTypeText)
	require.ErrorIs(t, d.ApplyUpdate(nil), ErrEmptyUpdate)
}
