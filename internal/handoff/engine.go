package handoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/llm"
	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

// Input is everything the decision rules look at for one turn.
type Input struct {
	Confidence  float64
	Slots       models.IntentSlots
	Category    string
	Subcategory string
	Utterance   string
	History     []models.Turn
	// AnswerType may be pre-computed by the caller; empty means the engine
	// estimates it.
	AnswerType models.AnswerType
}

// Engine evaluates the escalation rules and resolves the target department.
type Engine struct {
	client            *llm.ResilientClient
	tauMin            float64
	tauNorma          float64
	defaultDepartment string
}

// NewEngine builds the decision engine. client may be nil; department and
// answer-type classification then skip the model entirely.
func NewEngine(client *llm.ResilientClient, tauMin, tauNorma float64, defaultDepartment string) *Engine {
	if tauMin <= 0 {
		tauMin = 0.50
	}
	if tauNorma <= tauMin {
		tauNorma = 0.72
	}
	if defaultDepartment == "" {
		defaultDepartment = "Secretaría Académica"
	}
	return &Engine{client: client, tauMin: tauMin, tauNorma: tauNorma, defaultDepartment: defaultDepartment}
}

// Decide runs every rule independently and accumulates reasons. Handoff is
// true exactly when at least one reason fired.
func (e *Engine) Decide(ctx context.Context, in Input) models.HandoffDecision {
	answerType := in.AnswerType
	if answerType == "" {
		answerType = EstimateAnswerType(in.Slots)
	}

	intentText := foldedIntent(in.Slots)
	critical := isCritical(intentText)

	// Policy-exception overlay: runs before rule E so disallowed operative
	// requests are answered with the applicable rule instead of escalated.
	if isPolicyException(in.Slots, in.Utterance) {
		answerType = models.AnswerInformativo
	} else if answerType == models.AnswerOperativo && (in.Confidence < e.tauNorma || critical) {
		answerType = e.classifyAnswerType(ctx, in, answerType)
	}

	var reasons []string
	if in.Confidence < e.tauMin {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if in.Confidence >= e.tauMin && in.Confidence < e.tauNorma && critical {
		reasons = append(reasons, ReasonMediumCritical)
	}
	if missing := missingSlots(intentText, in.Slots); len(missing) > 0 {
		reasons = append(reasons, ReasonMissingDocsPrefix+strings.Join(missing, ","))
	}
	if n := followupCount(in.History); n >= 2 && in.Confidence < e.tauNorma {
		reasons = append(reasons, fmt.Sprintf("%s%d", ReasonFollowupsPrefix, n))
	}
	sensitive := isSensitive(in.Category, in.Subcategory)
	if sensitive && in.Confidence < e.tauNorma {
		reasons = append(reasons, ReasonSensitiveLowConf)
	}
	if answerType == models.AnswerOperativo && (in.Confidence < e.tauNorma || critical) {
		reasons = append(reasons, ReasonOperativeValidation)
	}

	decision := models.HandoffDecision{
		Handoff:    len(reasons) > 0,
		Reasons:    reasons,
		AnswerType: answerType,
	}
	if decision.Handoff {
		decision.Department = e.resolveDepartment(ctx, in, reasons)
		decision.Channel = ChannelTicket
		if sensitive {
			decision.Channel = ChannelCorreo
		}
		log.Info().
			Strs("reasons", reasons).
			Str("department", decision.Department).
			Float64("confidence", in.Confidence).
			Msg("handoff decided")
	}
	return decision
}

// EstimateAnswerType is the cheap classification used before any model call:
// critical intents are operative, then the action verb decides, defaulting to
// informative.
func EstimateAnswerType(slots models.IntentSlots) models.AnswerType {
	if isCritical(foldedIntent(slots)) {
		return models.AnswerOperativo
	}
	for _, token := range shared.Tokens(slots.Accion) {
		if operativeActions[token] {
			return models.AnswerOperativo
		}
		if informativeActions[token] {
			return models.AnswerInformativo
		}
	}
	return models.AnswerInformativo
}

type answerTypeResponse struct {
	AnswerType string `json:"answer_type"`
}

// classifyAnswerType asks the model to confirm a hard-trigger operative
// classification. Any failure keeps the cheap estimate.
func (e *Engine) classifyAnswerType(ctx context.Context, in Input, estimate models.AnswerType) models.AnswerType {
	if e.client == nil {
		return estimate
	}
	prompt := fmt.Sprintf(
		"Clasifica la siguiente solicitud estudiantil. Responde únicamente con JSON {\"answer_type\": \"informativo\"|\"operativo\"}.\n\"informativo\" = solo pide información; \"operativo\" = requiere que un departamento ejecute una acción.\n\nSolicitud: %s\nAcción: %s\nObjeto: %s\n",
		in.Utterance, in.Slots.Accion, in.Slots.Objeto,
	)
	response, ok := e.client.TryComplete(ctx, prompt)
	if !ok {
		return estimate
	}
	var parsed answerTypeResponse
	if !llm.ParseInto(response, &parsed) {
		return estimate
	}
	switch shared.Fold(parsed.AnswerType) {
	case "informativo":
		return models.AnswerInformativo
	case "operativo":
		return models.AnswerOperativo
	}
	return estimate
}

type departmentResponse struct {
	Department string `json:"department"`
}

// resolveDepartment walks the priority chain: validated model classification
// for hard triggers, then category map, then keyword map, then the default.
func (e *Engine) resolveDepartment(ctx context.Context, in Input, reasons []string) string {
	if hasHardTrigger(reasons) && e.client != nil {
		if dept := e.classifyDepartment(ctx, in); dept != "" {
			return dept
		}
	}

	for _, hint := range []string{in.Category, in.Subcategory} {
		folded := shared.FoldStrip(hint)
		if folded == "" {
			continue
		}
		for _, entry := range departmentsByCategory {
			if strings.Contains(folded, entry.keyword) {
				return entry.department
			}
		}
	}

	haystack := shared.FoldStrip(in.Utterance + " " + in.Slots.IntentShort + " " + in.Slots.Objeto + " " + in.Slots.DetalleLibre)
	for _, entry := range departmentKeywords {
		if strings.Contains(haystack, entry.keyword) {
			return entry.department
		}
	}
	return e.defaultDepartment
}

func (e *Engine) classifyDepartment(ctx context.Context, in Input) string {
	prompt := fmt.Sprintf(
		"Elige el departamento responsable de atender esta solicitud. Responde únicamente con JSON {\"department\": \"...\"} usando exactamente uno de estos nombres:\n- %s\n\nSolicitud: %s\n",
		strings.Join(canonicalDepartments, "\n- "), in.Utterance,
	)
	response, ok := e.client.TryComplete(ctx, prompt)
	if !ok {
		return ""
	}
	var parsed departmentResponse
	if !llm.ParseInto(response, &parsed) {
		return ""
	}
	suggested := shared.Fold(strings.TrimSpace(parsed.Department))
	for _, canonical := range canonicalDepartments {
		if shared.Fold(canonical) == suggested {
			return canonical
		}
	}
	log.Debug().Str("suggested", parsed.Department).Msg("model department not in canonical list, discarded")
	return ""
}

// hasHardTrigger reports whether a rule fired that demands certainty about
// the receiving department. Plain low confidence is not one.
func hasHardTrigger(reasons []string) bool {
	for _, reason := range reasons {
		switch {
		case reason == ReasonMediumCritical,
			reason == ReasonSensitiveLowConf,
			reason == ReasonOperativeValidation,
			strings.HasPrefix(reason, ReasonMissingDocsPrefix):
			return true
		}
	}
	return false
}

func foldedIntent(slots models.IntentSlots) string {
	return shared.FoldStrip(slots.IntentShort + " " + slots.Accion + " " + slots.Objeto)
}

func isCritical(intentText string) bool {
	for _, phrase := range criticalIntents {
		if strings.Contains(intentText, phrase) {
			return true
		}
	}
	return false
}

// missingSlots collects, in table order, the required keys whose slot value
// is empty for the matched intent requirements.
func missingSlots(intentText string, slots models.IntentSlots) []string {
	var missing []string
	seen := map[string]bool{}
	for _, req := range slotRequirements {
		if !strings.Contains(intentText, req.trigger) {
			continue
		}
		for _, key := range req.keys {
			if seen[key] {
				continue
			}
			if field, ok := slotField[key]; ok && strings.TrimSpace(field(slots)) == "" {
				seen[key] = true
				missing = append(missing, key)
			}
		}
	}
	return missing
}

// followupCount counts the user turns since the last bot turn that actually
// answered. The original request is the first of them and the current message
// does not add another, so the plain request-confirm-yes flow stays at one;
// only a genuine re-ask reaches two. Confirmation and selection prompts do
// not reset the count.
func followupCount(history []models.Turn) int {
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role == models.RoleUser {
			count++
			continue
		}
		if turn.Role == models.RoleBot && !isPendingPrompt(turn) {
			break
		}
	}
	return count
}

func isPendingPrompt(turn models.Turn) bool {
	for _, pick := range []func(models.StageFlags) *bool{
		func(f models.StageFlags) *bool { return f.NeedsConfirmation },
		func(f models.StageFlags) *bool { return f.NeedsRelatedSelection },
		func(f models.StageFlags) *bool { return f.NeedsHandoffDetails },
	} {
		if v, ok := turn.Flag(pick); ok && v {
			return true
		}
	}
	return false
}

func isSensitive(category, subcategory string) bool {
	haystack := shared.FoldStrip(category + " " + subcategory)
	if haystack == "" {
		return false
	}
	for _, topic := range sensitiveTopics {
		if strings.Contains(haystack, topic) {
			return true
		}
	}
	return false
}

func isPolicyException(slots models.IntentSlots, utterance string) bool {
	haystack := shared.FoldStrip(utterance + " " + slots.IntentShort + " " + slots.Accion + " " + slots.Objeto + " " + slots.DetalleLibre)
	for _, phrase := range policyExceptionPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return policyExceptionRe.MatchString(haystack)
}
