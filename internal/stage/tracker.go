// Package stage derives the current dialogue stage from conversation history.
// The tracker is pure: identical history always yields an identical result,
// and nothing here calls out to any service.
package stage

import (
	"github.com/deskcore/pkg/models"
)

// Result is the derived dialogue state for the incoming turn.
type Result struct {
	Stage          models.DialogueStage
	PendingSlots   *models.IntentSlots
	HandoffChannel string
	RelatedCodes   []string

	// NeedsReinterpret is set when a bot turn asked for confirmation without
	// attaching a slot payload; the orchestrator recovers the slots by
	// re-interpreting ReinterpretText (the user turn preceding that bot turn).
	NeedsReinterpret bool
	ReinterpretText  string
}

// Track scans history in reverse; the first bot turn found determines the
// stage via its flags. Flags are read at the top level first, then inside the
// metadata block. No matching bot turn means a fresh conversation.
func Track(history []models.Turn) Result {
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != models.RoleBot {
			continue
		}
		return resolve(history, i, turn)
	}
	return Result{Stage: models.StageReady}
}

func resolve(history []models.Turn, i int, turn models.Turn) Result {
	// The loop already closed: whatever came before is settled.
	if v, ok := turn.Flag(func(f models.StageFlags) *bool { return f.HandoffSent }); ok && v {
		return Result{Stage: models.StageReady}
	}

	if v, ok := turn.Flag(func(f models.StageFlags) *bool { return f.NeedsHandoffDetails }); ok && v {
		return Result{
			Stage:          models.StageAwaitHandoffDetails,
			PendingSlots:   turn.PendingSlots(),
			HandoffChannel: turn.Channel(),
		}
	}

	// An explicit confirmed=false means the user rejected the reading of their
	// request; the conversation starts over.
	if v, ok := turn.Flag(func(f models.StageFlags) *bool { return f.Confirmed }); ok && !v {
		return Result{Stage: models.StageReady}
	}

	if v, ok := turn.Flag(func(f models.StageFlags) *bool { return f.NeedsRelatedSelection }); ok && v {
		return Result{
			Stage:        models.StageAwaitRelatedRequest,
			PendingSlots: turn.PendingSlots(),
			RelatedCodes: turn.RelatedCodes(),
		}
	}

	if v, ok := turn.Flag(func(f models.StageFlags) *bool { return f.NeedsConfirmation }); ok && v {
		if slots := turn.PendingSlots(); slots != nil {
			return Result{Stage: models.StageAwaitConfirm, PendingSlots: slots}
		}
		// Confirmation was asked but the slot payload was not persisted with
		// the turn (older clients). Recover from the preceding user message.
		return Result{
			Stage:            models.StageAwaitConfirm,
			NeedsReinterpret: true,
			ReinterpretText:  models.LastUserBefore(history, i),
		}
	}

	return Result{Stage: models.StageReady}
}
