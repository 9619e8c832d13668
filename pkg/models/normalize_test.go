package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTurn_AlternateKeys(t *testing.T) {
	turn := ParseTurn(map[string]any{
		"rol":     "usuario",
		"mensaje": "quiero retirar una asignatura",
	})
	assert.Equal(t, RoleUser, turn.Role)
	assert.Equal(t, "quiero retirar una asignatura", turn.Text)
}

func TestParseTurn_StringFlagsAndMeta(t *testing.T) {
	turn := ParseTurn(map[string]any{
		"role":               "assistant",
		"content":            "¿Te refieres a: retiro de asignatura?",
		"needs_confirmation": "true",
		"meta": map[string]any{
			"intent_slots":  map[string]any{"intent_short": "retiro de asignatura"},
			"related_codes": []any{"SOL-2026-0009"},
		},
	})
	assert.Equal(t, RoleBot, turn.Role)
	v, ok := turn.Flag(func(f StageFlags) *bool { return f.NeedsConfirmation })
	assert.True(t, ok)
	assert.True(t, v)
	require.NotNil(t, turn.PendingSlots())
	assert.Equal(t, "retiro de asignatura", turn.PendingSlots().IntentShort)
	assert.Equal(t, []string{"SOL-2026-0009"}, turn.RelatedCodes())
}

func TestParseTurn_MalformedDegradesToUserTurn(t *testing.T) {
	turn := ParseTurn(map[string]any{"role": 42})
	assert.Equal(t, RoleUser, turn.Role)
	assert.Empty(t, turn.Text)
}

func TestTurnFlag_TopLevelWinsOverMeta(t *testing.T) {
	turn := Turn{
		Role:  RoleBot,
		Flags: StageFlags{NeedsConfirmation: Bool(false)},
		Meta:  &TurnMeta{Flags: StageFlags{NeedsConfirmation: Bool(true)}},
	}
	v, ok := turn.Flag(func(f StageFlags) *bool { return f.NeedsConfirmation })
	assert.True(t, ok)
	assert.False(t, v)
}

func TestGroupCitations(t *testing.T) {
	groups := GroupCitations([]Passage{
		{SourceDocument: "reglamento.pdf", Page: 12},
		{SourceDocument: "calendario.pdf", Page: 1},
		{SourceDocument: "reglamento.pdf", Page: 12},
		{SourceDocument: "reglamento.pdf", Page: 14},
		{SourceDocument: "", Page: 3},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "reglamento.pdf", groups[0].Document)
	assert.Equal(t, []int{12, 14}, groups[0].Pages)
	assert.Equal(t, "calendario.pdf", groups[1].Document)
	assert.Equal(t, []int{1}, groups[1].Pages)
}
