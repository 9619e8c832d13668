// Package orchestrator runs one conversational turn end to end: derive the
// dialogue stage, branch on it, and produce the bot turn the caller appends
// to history. One turn is one synchronous pass; history is never mutated.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/enrich"
	"github.com/deskcore/internal/handoff"
	"github.com/deskcore/internal/intent"
	"github.com/deskcore/internal/llm"
	"github.com/deskcore/internal/related"
	"github.com/deskcore/internal/retrieval"
	"github.com/deskcore/internal/router"
	"github.com/deskcore/internal/stage"
	"github.com/deskcore/internal/tickets"
	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

// Only ranked matches at least this similar get offered as related tickets;
// the degraded recency-only list is never offered.
const minOfferSimilarity = 0.60

const (
	msgRateLimited  = "El servicio está muy solicitado en este momento. Por favor, intenta de nuevo en unos minutos."
	msgInternal     = "Lo siento, tuve un problema al procesar tu consulta. ¿Puedes intentarlo otra vez?"
	msgRejected     = "Entiendo, no era eso. Cuéntame de nuevo, con tus palabras, qué necesitas."
	msgHandoffAsk   = "No puedo resolver esto con seguridad desde la documentación, así que lo derivaré a %s. ¿Puedes darme algún detalle adicional antes de enviarlo?"
	msgHandoffDocs  = "Para derivar tu solicitud a %s necesito algunos datos que faltan. ¿Puedes indicármelos o adjuntar el documento correspondiente?"
	msgHandoffSent  = "Listo, registré los detalles y envié tu solicitud a %s. Te contactarán por ese medio."
	msgTicketStatus = "Tu consulta quedó asociada a la solicitud %s (%s, del %s). El departamento responsable la tiene en revisión."
)

// Orchestrator wires the pipeline components into the turn state machine.
type Orchestrator struct {
	interpreter *intent.Interpreter
	detector    *enrich.Detector
	router      *router.Router
	scorer      Scorer
	matcher     *related.Matcher
	engine      *handoff.Engine
	retriever   retrieval.Retriever
	store       tickets.Store
	answerer    Answerer
}

// Scorer is the answerability contract the orchestrator consumes.
type Scorer interface {
	Score(ctx context.Context, query string, passages []models.Passage) models.AnswerabilityResult
}

// Params collects the orchestrator's collaborators. Retriever, store and
// matcher are optional; missing ones disable their feature rather than fail.
type Params struct {
	Interpreter *intent.Interpreter
	Detector    *enrich.Detector
	Router      *router.Router
	Scorer      Scorer
	Matcher     *related.Matcher
	Engine      *handoff.Engine
	Retriever   retrieval.Retriever
	Store       tickets.Store
	Answerer    Answerer
}

// New builds the orchestrator.
func New(p Params) *Orchestrator {
	return &Orchestrator{
		interpreter: p.Interpreter,
		detector:    p.Detector,
		router:      p.Router,
		scorer:      p.Scorer,
		matcher:     p.Matcher,
		engine:      p.Engine,
		retriever:   p.Retriever,
		store:       p.Store,
		answerer:    p.Answerer,
	}
}

// Process handles one turn. It never returns an error: every failure mode
// maps to a well-formed response so the dialogue stage stays defined.
func (o *Orchestrator) Process(ctx context.Context, req models.TurnRequest) models.TurnResponse {
	history := req.History
	if len(history) == 0 && len(req.RawHistory) > 0 {
		history = models.NormalizeHistory(req.RawHistory)
	}

	tracked := stage.Track(history)
	log.Debug().Str("stage", string(tracked.Stage)).Int("history", len(history)).Msg("turn started")

	var response models.TurnResponse
	switch tracked.Stage {
	case models.StageAwaitConfirm:
		response = o.handleConfirmation(ctx, req, history, tracked)
	case models.StageAwaitRelatedRequest:
		response = o.handleRelatedSelection(ctx, req, history, tracked)
	case models.StageAwaitHandoffDetails:
		response = o.handleHandoffDetails(ctx, req, tracked)
	default:
		response = o.handleFresh(ctx, req, history)
	}

	response.ID = uuid.NewString()
	return response
}

// handleFresh interprets a new request and asks for confirmation before
// committing to an answer.
func (o *Orchestrator) handleFresh(ctx context.Context, req models.TurnRequest, history []models.Turn) models.TurnResponse {
	text := req.Message
	decision := o.detector.Detect(ctx, text, history)
	if decision.NeedsContext {
		text = o.detector.Enrich(ctx, text, history)
	}

	slots := o.interpreter.Interpret(ctx, text)
	question := o.interpreter.ComposeConfirmation(ctx, slots)

	return models.TurnResponse{
		Response: question,
		Flags:    models.StageFlags{NeedsConfirmation: models.Bool(true)},
		Slots:    &slots,
		Thinking: "confirmando la solicitud",
	}
}

// handleConfirmation resolves the user's reply to a confirmation question. A
// confirmed intent proceeds straight to answering; it is never re-interpreted.
func (o *Orchestrator) handleConfirmation(ctx context.Context, req models.TurnRequest, history []models.Turn, tracked stage.Result) models.TurnResponse {
	switch intent.DetectConfirmation(req.Message) {
	case intent.ConfirmNo:
		return models.TurnResponse{
			Response: msgRejected,
			Flags:    models.StageFlags{Confirmed: models.Bool(false)},
			Thinking: "solicitud descartada",
		}
	case intent.ConfirmYes:
		slots := o.confirmedSlots(ctx, tracked)
		if offer := o.offerRelated(ctx, req, slots); offer != nil {
			return *offer
		}
		return o.answerWith(ctx, req, history, slots)
	default:
		// Not a yes or no: treat the reply as a fresh request.
		return o.handleFresh(ctx, req, history)
	}
}

func (o *Orchestrator) confirmedSlots(ctx context.Context, tracked stage.Result) models.IntentSlots {
	if tracked.PendingSlots != nil {
		return *tracked.PendingSlots
	}
	if tracked.NeedsReinterpret && tracked.ReinterpretText != "" {
		return o.interpreter.Interpret(ctx, tracked.ReinterpretText)
	}
	return models.IntentSlots{}
}

// offerRelated checks the requester's prior tickets and, when a close match
// exists, asks which one the query refers to instead of answering directly.
func (o *Orchestrator) offerRelated(ctx context.Context, req models.TurnRequest, slots models.IntentSlots) *models.TurnResponse {
	if o.matcher == nil || o.store == nil || req.Requester == nil || req.Requester.ID == "" {
		return nil
	}
	records, err := o.store.List(ctx, req.Requester.ID)
	if err != nil {
		log.Warn().Err(err).Msg("ticket store unavailable, skipping related offer")
		return nil
	}

	matches := o.matcher.FindRelated(ctx, queryFor(slots, req.Message), records)
	var offered []related.Match
	for _, match := range matches {
		if match.Ranked && match.Similarity >= minOfferSimilarity {
			offered = append(offered, match)
		}
	}
	if len(offered) == 0 {
		return nil
	}

	return &models.TurnResponse{
		Response:     o.matcher.RenderDisambiguation(offered),
		Flags:        models.StageFlags{NeedsRelatedSelection: models.Bool(true)},
		Slots:        &slots,
		RelatedCodes: o.matcher.Codes(offered),
		Thinking:     "buscando solicitudes relacionadas",
	}
}

// handleRelatedSelection resolves the user's pick from the offered ticket
// list. A refusal falls through to the normal answer path.
func (o *Orchestrator) handleRelatedSelection(ctx context.Context, req models.TurnRequest, history []models.Turn, tracked stage.Result) models.TurnResponse {
	slots := models.IntentSlots{}
	if tracked.PendingSlots != nil {
		slots = *tracked.PendingSlots
	}

	if record, ok := o.selectedTicket(ctx, req, tracked.RelatedCodes); ok {
		return models.TurnResponse{
			Response: fmt.Sprintf(msgTicketStatus, record.Code, record.Status, record.CreatedAt.Format("02-01-2006")),
			Thinking: "solicitud vinculada",
		}
	}
	return o.answerWith(ctx, req, history, slots)
}

func (o *Orchestrator) selectedTicket(ctx context.Context, req models.TurnRequest, codes []string) (models.RequestRecord, bool) {
	if o.store == nil || req.Requester == nil || len(codes) == 0 {
		return models.RequestRecord{}, false
	}
	folded := " " + shared.FoldStrip(req.Message) + " "
	var code string
	for _, c := range codes {
		if fc := shared.FoldStrip(c); fc != "" && strings.Contains(folded, " "+fc+" ") {
			code = c
			break
		}
	}
	if code == "" {
		if i := ordinalIndex(folded); i >= 0 && i < len(codes) {
			code = codes[i]
		}
	}
	if code == "" {
		return models.RequestRecord{}, false
	}

	records, err := o.store.List(ctx, req.Requester.ID)
	if err != nil {
		return models.RequestRecord{}, false
	}
	for _, record := range records {
		if record.Code == code {
			return record, true
		}
	}
	return models.RequestRecord{}, false
}

// ordinalIndex maps an ordinal reply ("la primera", "2") to a shortlist
// position. Input is the fold-stripped message padded with spaces.
func ordinalIndex(folded string) int {
	ordinals := []struct {
		words []string
		index int
	}{
		{[]string{"1", "primera", "primero"}, 0},
		{[]string{"2", "segunda", "segundo"}, 1},
		{[]string{"3", "tercera", "tercero"}, 2},
	}
	for _, ordinal := range ordinals {
		for _, word := range ordinal.words {
			if strings.Contains(folded, " "+word+" ") {
				return ordinal.index
			}
		}
	}
	return -1
}

// handleHandoffDetails closes the escalation loop: the user supplied the
// details the previous turn asked for, so the handoff goes out.
func (o *Orchestrator) handleHandoffDetails(ctx context.Context, req models.TurnRequest, tracked stage.Result) models.TurnResponse {
	department := "el departamento correspondiente"
	decision := &models.HandoffDecision{Handoff: true, Channel: tracked.HandoffChannel}
	if tracked.PendingSlots != nil {
		decision.AnswerType = handoff.EstimateAnswerType(*tracked.PendingSlots)
	}

	return models.TurnResponse{
		Response:       fmt.Sprintf(msgHandoffSent, department),
		Flags:          models.StageFlags{HandoffSent: models.Bool(true)},
		Handoff:        decision,
		HandoffChannel: tracked.HandoffChannel,
		Thinking:       "derivacion enviada",
	}
}

// answerWith runs the answer pipeline for confirmed slots: route, retrieve,
// score, then answer or escalate.
func (o *Orchestrator) answerWith(ctx context.Context, req models.TurnRequest, history []models.Turn, slots models.IntentSlots) models.TurnResponse {
	query := queryFor(slots, req.Message)

	scope := o.router.Route(query, nil, entityStrings(slots))
	passages := retrieval.SafeSearch(ctx, o.retriever, query, scope)
	result := o.scorer.Score(ctx, query, passages)

	decision := o.engine.Decide(ctx, handoff.Input{
		Confidence:  result.Confidence,
		Slots:       slots,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Utterance:   query,
		History:     history,
	})

	if decision.Handoff {
		return o.escalate(req, slots, decision, passages)
	}

	answer, err := o.answerer.Answer(ctx, query, passages)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			return models.TurnResponse{Response: msgRateLimited, Thinking: "servicio saturado"}
		}
		log.Error().Err(err).Msg("answer generation failed")
		return models.TurnResponse{Response: msgInternal, Thinking: "error interno"}
	}

	return models.TurnResponse{
		Response:       answer,
		Slots:          &slots,
		Citations:      models.GroupCitations(passages),
		HasInformation: len(passages) > 0,
		Thinking:       "respuesta documentada",
	}
}

// escalate produces the handoff turn: ask for the missing details (or the
// missing document) before sending.
func (o *Orchestrator) escalate(req models.TurnRequest, slots models.IntentSlots, decision models.HandoffDecision, passages []models.Passage) models.TurnResponse {
	flags := models.StageFlags{NeedsHandoffDetails: models.Bool(true)}
	message := fmt.Sprintf(msgHandoffAsk, decision.Department)

	if missingDocs(decision.Reasons) && !req.HasEvidence {
		flags.NeedsHandoffFile = models.Bool(true)
		message = fmt.Sprintf(msgHandoffDocs, decision.Department)
	}

	return models.TurnResponse{
		Response:       message,
		Flags:          flags,
		Slots:          &slots,
		Handoff:        &decision,
		HandoffChannel: decision.Channel,
		Citations:      models.GroupCitations(passages),
		HasInformation: len(passages) > 0,
		Thinking:       "derivando a un departamento",
	}
}

func missingDocs(reasons []string) bool {
	for _, reason := range reasons {
		if strings.HasPrefix(reason, handoff.ReasonMissingDocsPrefix) {
			return true
		}
	}
	return false
}

// queryFor prefers the message the slots were extracted from over the current
// reply, which is usually just "sí".
func queryFor(slots models.IntentSlots, fallback string) string {
	if strings.TrimSpace(slots.OriginalUserMessage) != "" {
		return slots.OriginalUserMessage
	}
	if strings.TrimSpace(slots.IntentShort) != "" {
		return slots.IntentShort
	}
	return fallback
}

func entityStrings(slots models.IntentSlots) []string {
	var out []string
	for _, v := range []string{
		slots.Asignatura, slots.UnidadOActividad, slots.Carrera,
		slots.Facultad, slots.Sistema, slots.Objeto,
	} {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
