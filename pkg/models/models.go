package models

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// DialogueStage is the phase of a multi-turn conversation. It is derived from
// history on every turn, never stored on its own.
type DialogueStage string

const (
	StageReady               DialogueStage = "ready"
	StageAwaitConfirm        DialogueStage = "await_confirm"
	StageAwaitRelatedRequest DialogueStage = "await_related_request"
	StageAwaitHandoffDetails DialogueStage = "await_handoff_details"
)

// StageFlags are the per-turn dialogue markers a bot turn may carry. Pointer
// fields distinguish "absent" from an explicit false, which matters for the
// stage tracker's top-level-before-metadata precedence.
type StageFlags struct {
	NeedsConfirmation     *bool `json:"needs_confirmation,omitempty"`
	Confirmed             *bool `json:"confirmed,omitempty"`
	NeedsRelatedSelection *bool `json:"needs_related_request_selection,omitempty"`
	NeedsHandoffDetails   *bool `json:"needs_handoff_details,omitempty"`
	NeedsHandoffFile      *bool `json:"needs_handoff_file,omitempty"`
	HandoffSent           *bool `json:"handoff_sent,omitempty"`
}

// TurnMeta is the optional structured metadata block attached to a bot turn.
type TurnMeta struct {
	Flags          StageFlags       `json:"flags,omitempty"`
	Slots          *IntentSlots     `json:"intent_slots,omitempty"`
	HandoffChannel string           `json:"handoff_channel,omitempty"`
	Handoff        *HandoffDecision `json:"handoff,omitempty"`
	Citations      []CitationGroup  `json:"citations,omitempty"`
	RelatedCodes   []string         `json:"related_codes,omitempty"`
}

// Turn is one immutable entry in a conversation history. Flags may appear both
// at the top level and inside Meta; the top-level value wins when present.
type Turn struct {
	Role           Role         `json:"role"`
	Text           string       `json:"text"`
	Flags          StageFlags   `json:"flags,omitempty"`
	Slots          *IntentSlots `json:"intent_slots,omitempty"`
	HandoffChannel string       `json:"handoff_channel,omitempty"`
	Meta           *TurnMeta    `json:"meta,omitempty"`
}

// Flag resolves a stage flag for the turn: the top-level value if set,
// otherwise the metadata value. The second return reports whether the flag was
// present at all.
func (t Turn) Flag(pick func(StageFlags) *bool) (bool, bool) {
	if v := pick(t.Flags); v != nil {
		return *v, true
	}
	if t.Meta != nil {
		if v := pick(t.Meta.Flags); v != nil {
			return *v, true
		}
	}
	return false, false
}

// PendingSlots returns the intent slots attached to the turn, preferring the
// top-level payload over the metadata block.
func (t Turn) PendingSlots() *IntentSlots {
	if t.Slots != nil {
		return t.Slots
	}
	if t.Meta != nil {
		return t.Meta.Slots
	}
	return nil
}

// Channel returns the handoff channel carried by the turn, if any.
func (t Turn) Channel() string {
	if t.HandoffChannel != "" {
		return t.HandoffChannel
	}
	if t.Meta != nil {
		return t.Meta.HandoffChannel
	}
	return ""
}

// RelatedCodes returns the ticket codes offered in a disambiguation list, if
// the turn carried one.
func (t Turn) RelatedCodes() []string {
	if t.Meta != nil {
		return t.Meta.RelatedCodes
	}
	return nil
}

// IntentSlots is the fixed structured record extracted from a free-text
// request. Every field is always a string; missing values are empty strings,
// never absent. Field names follow the institutional intake form.
type IntentSlots struct {
	IntentShort         string `json:"intent_short"`
	Accion              string `json:"accion"`
	Objeto              string `json:"objeto"`
	Asignatura          string `json:"asignatura"`
	UnidadOActividad    string `json:"unidad_o_actividad"`
	Periodo             string `json:"periodo"`
	Carrera             string `json:"carrera"`
	Facultad            string `json:"facultad"`
	Modalidad           string `json:"modalidad"`
	Sistema             string `json:"sistema"`
	Problema            string `json:"problema"`
	DetalleLibre        string `json:"detalle_libre"`
	OriginalUserMessage string `json:"original_user_message"`
}

// AnswerType distinguishes purely informational answers from ones that imply
// an operational action on institutional systems.
type AnswerType string

const (
	AnswerInformativo AnswerType = "informativo"
	AnswerOperativo   AnswerType = "operativo"
)

// Verdict buckets an answerability confidence score.
type Verdict string

const (
	VerdictHigh       Verdict = "high"
	VerdictBorderline Verdict = "borderline"
	VerdictMedium     Verdict = "medium"
	VerdictLow        Verdict = "low"
)

// AnswerabilityResult is the per-attempt confidence verdict produced from
// retrieved passages. Ephemeral; recomputed for every answer attempt.
type AnswerabilityResult struct {
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features"`
	Verdict    Verdict            `json:"verdict"`
	JudgeUsed  bool               `json:"judge_used,omitempty"`
}

// HandoffDecision is the outcome of the escalation rule engine for one turn.
type HandoffDecision struct {
	Handoff    bool       `json:"handoff"`
	Reasons    []string   `json:"reasons,omitempty"`
	Channel    string     `json:"channel,omitempty"`
	Department string     `json:"department,omitempty"`
	AnswerType AnswerType `json:"answer_type,omitempty"`
}

// RequestRecord is a previously filed support ticket. Owned by the ticket
// store; read-only to this core.
type RequestRecord struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Type        string    `json:"type"`
	Service     string    `json:"service,omitempty"`
	History     []string  `json:"history,omitempty"`
}

// CandidateSet is the hierarchical router's output: the folders and files the
// retriever should restrict itself to. Passed opaquely as a scope filter.
type CandidateSet struct {
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

// Passage is one ranked retrieval hit.
type Passage struct {
	Content        string  `json:"content"`
	SourceDocument string  `json:"source_document"`
	Page           int     `json:"page"`
	Relevance      float64 `json:"relevance_score"`
}

// CitationGroup groups cited pages by source document for the response
// envelope.
type CitationGroup struct {
	Document string `json:"document"`
	Pages    []int  `json:"pages"`
}

// GroupCitations collapses passages into per-document page lists, preserving
// first-seen document order and deduplicating pages.
func GroupCitations(passages []Passage) []CitationGroup {
	var groups []CitationGroup
	index := map[string]int{}
	for _, p := range passages {
		if p.SourceDocument == "" {
			continue
		}
		i, ok := index[p.SourceDocument]
		if !ok {
			index[p.SourceDocument] = len(groups)
			groups = append(groups, CitationGroup{Document: p.SourceDocument})
			i = len(groups) - 1
		}
		seen := false
		for _, pg := range groups[i].Pages {
			if pg == p.Page {
				seen = true
				break
			}
		}
		if !seen {
			groups[i].Pages = append(groups[i].Pages, p.Page)
		}
	}
	return groups
}

// RequesterProfile is the optional caller identity attached to a turn request.
type RequesterProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Career  string `json:"career,omitempty"`
	Faculty string `json:"faculty,omitempty"`
}

// TurnRequest is the turn-processing request envelope.
type TurnRequest struct {
	Message     string            `json:"message"`
	History     []Turn            `json:"history,omitempty"`
	RawHistory  []map[string]any  `json:"raw_history,omitempty"`
	Category    string            `json:"category,omitempty"`
	Subcategory string            `json:"subcategory,omitempty"`
	HasEvidence bool              `json:"has_evidence_file,omitempty"`
	Requester   *RequesterProfile `json:"requester,omitempty"`
}

// TurnResponse is the envelope returned for one processed turn. The caller
// appends it (as a bot Turn) to its session history.
type TurnResponse struct {
	ID             string           `json:"id"`
	Response       string           `json:"response"`
	Flags          StageFlags       `json:"flags"`
	Slots          *IntentSlots     `json:"intent_slots,omitempty"`
	Handoff        *HandoffDecision `json:"handoff,omitempty"`
	HandoffChannel string           `json:"handoff_channel,omitempty"`
	Citations      []CitationGroup  `json:"citations,omitempty"`
	RelatedCodes   []string         `json:"related_codes,omitempty"`
	HasInformation bool             `json:"has_information"`
	Thinking       string           `json:"thinking,omitempty"`
}

// BotTurn converts a response envelope into the bot Turn the caller should
// append to history so the next Track call sees the right flags.
func (r TurnResponse) BotTurn() Turn {
	return Turn{
		Role:           RoleBot,
		Text:           r.Response,
		Flags:          r.Flags,
		Slots:          r.Slots,
		HandoffChannel: r.HandoffChannel,
		Meta: &TurnMeta{
			Handoff:      r.Handoff,
			Citations:    r.Citations,
			RelatedCodes: r.RelatedCodes,
		},
	}
}

// Bool returns a pointer to b, for building StageFlags literals.
func Bool(b bool) *bool { return &b }
