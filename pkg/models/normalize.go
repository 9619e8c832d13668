package models

import (
	"strings"
)

// Alternate key names seen in histories produced by older clients. The
// canonicalization pass maps them all onto the tagged Turn shape once, so the
// rest of the pipeline never does "get this or that key" lookups.
var (
	roleKeys = []string{"role", "rol", "sender", "author", "type"}
	textKeys = []string{"text", "content", "message", "mensaje", "body"}

	userRoles = map[string]bool{"user": true, "usuario": true, "human": true, "estudiante": true}
	botRoles  = map[string]bool{"bot": true, "assistant": true, "ai": true, "asistente": true, "system": true}
)

// ParseTurn canonicalizes one loosely-typed history entry. Malformed entries
// (missing role or text) degrade to a user turn with whatever text was found;
// they never produce an error.
func ParseTurn(raw map[string]any) Turn {
	t := Turn{Role: RoleUser}

	for _, k := range roleKeys {
		if v, ok := raw[k].(string); ok && v != "" {
			switch {
			case userRoles[strings.ToLower(v)]:
				t.Role = RoleUser
			case botRoles[strings.ToLower(v)]:
				t.Role = RoleBot
			}
			break
		}
	}

	for _, k := range textKeys {
		if v, ok := raw[k].(string); ok && v != "" {
			t.Text = v
			break
		}
	}

	t.Flags = parseFlags(raw)
	if ch, ok := raw["handoff_channel"].(string); ok {
		t.HandoffChannel = ch
	}
	if slots, ok := raw["intent_slots"].(map[string]any); ok {
		t.Slots = parseSlots(slots)
	}

	if meta, ok := raw["meta"].(map[string]any); ok {
		m := &TurnMeta{Flags: parseFlags(meta)}
		if ch, ok := meta["handoff_channel"].(string); ok {
			m.HandoffChannel = ch
		}
		if slots, ok := meta["intent_slots"].(map[string]any); ok {
			m.Slots = parseSlots(slots)
		}
		if codes, ok := meta["related_codes"].([]any); ok {
			for _, c := range codes {
				if s, ok := c.(string); ok {
					m.RelatedCodes = append(m.RelatedCodes, s)
				}
			}
		}
		t.Meta = m
	}

	return t
}

// NormalizeHistory canonicalizes a whole raw history in order.
func NormalizeHistory(raw []map[string]any) []Turn {
	turns := make([]Turn, 0, len(raw))
	for _, entry := range raw {
		turns = append(turns, ParseTurn(entry))
	}
	return turns
}

func parseFlags(raw map[string]any) StageFlags {
	return StageFlags{
		NeedsConfirmation:     lookupBool(raw, "needs_confirmation"),
		Confirmed:             lookupBool(raw, "confirmed"),
		NeedsRelatedSelection: lookupBool(raw, "needs_related_request_selection"),
		NeedsHandoffDetails:   lookupBool(raw, "needs_handoff_details"),
		NeedsHandoffFile:      lookupBool(raw, "needs_handoff_file"),
		HandoffSent:           lookupBool(raw, "handoff_sent"),
	}
}

func lookupBool(raw map[string]any, key string) *bool {
	switch v := raw[key].(type) {
	case bool:
		return Bool(v)
	case string:
		// Older clients serialized flags as "true"/"false" strings.
		switch strings.ToLower(v) {
		case "true", "si", "sí", "1":
			return Bool(true)
		case "false", "0":
			return Bool(false)
		}
	}
	return nil
}

func parseSlots(raw map[string]any) *IntentSlots {
	get := func(key string) string {
		if v, ok := raw[key].(string); ok {
			return v
		}
		return ""
	}
	return &IntentSlots{
		IntentShort:         get("intent_short"),
		Accion:              get("accion"),
		Objeto:              get("objeto"),
		Asignatura:          get("asignatura"),
		UnidadOActividad:    get("unidad_o_actividad"),
		Periodo:             get("periodo"),
		Carrera:             get("carrera"),
		Facultad:            get("facultad"),
		Modalidad:           get("modalidad"),
		Sistema:             get("sistema"),
		Problema:            get("problema"),
		DetalleLibre:        get("detalle_libre"),
		OriginalUserMessage: get("original_user_message"),
	}
}

// LastUserBefore returns the text of the user turn immediately preceding
// index i in history, or empty when there is none.
func LastUserBefore(history []Turn, i int) string {
	for j := i - 1; j >= 0; j-- {
		if history[j].Role == RoleUser {
			return history[j].Text
		}
	}
	return ""
}
