// Package intent extracts structured slots from free-text requests and
// phrases confirmation questions. Extraction delegates to the language model;
// every failure path degrades to a deterministic fallback, never an error.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/llm"
	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

const (
	fallbackIntentRunes  = 80
	fallbackDetalleRunes = 160
)

// Interpreter turns user text into IntentSlots via the structured-extraction
// service.
type Interpreter struct {
	client llm.Client
}

func NewInterpreter(client llm.Client) *Interpreter {
	return &Interpreter{client: client}
}

// slotSchema mirrors IntentSlots for the model response; a separate type so
// the wire contract can drift from the domain type without breaking callers.
type slotSchema struct {
	IntentShort      string `json:"intent_short"`
	Accion           string `json:"accion"`
	Objeto           string `json:"objeto"`
	Asignatura       string `json:"asignatura"`
	UnidadOActividad string `json:"unidad_o_actividad"`
	Periodo          string `json:"periodo"`
	Carrera          string `json:"carrera"`
	Facultad         string `json:"facultad"`
	Modalidad        string `json:"modalidad"`
	Sistema          string `json:"sistema"`
	Problema         string `json:"problema"`
	DetalleLibre     string `json:"detalle_libre"`
}

// Interpret extracts slots from text. On any failure it returns the
// truncation fallback: intent_short from the first 80 runes, detalle_libre
// from the first 160, everything else empty. All fields are always strings.
func (it *Interpreter) Interpret(ctx context.Context, text string) models.IntentSlots {
	raw, err := it.client.Complete(ctx, buildExtractionPrompt(text))
	if err != nil {
		log.Warn().Err(err).Msg("intent extraction call failed, using truncation fallback")
		return fallbackSlots(text)
	}

	var schema slotSchema
	if !llm.ParseInto(raw, &schema) {
		log.Warn().Msg("intent extraction returned unparseable output, using truncation fallback")
		return fallbackSlots(text)
	}

	slots := models.IntentSlots{
		IntentShort:         strings.TrimSpace(schema.IntentShort),
		Accion:              strings.TrimSpace(schema.Accion),
		Objeto:              strings.TrimSpace(schema.Objeto),
		Asignatura:          strings.TrimSpace(schema.Asignatura),
		UnidadOActividad:    strings.TrimSpace(schema.UnidadOActividad),
		Periodo:             strings.TrimSpace(schema.Periodo),
		Carrera:             strings.TrimSpace(schema.Carrera),
		Facultad:            strings.TrimSpace(schema.Facultad),
		Modalidad:           strings.TrimSpace(schema.Modalidad),
		Sistema:             strings.TrimSpace(schema.Sistema),
		Problema:            strings.TrimSpace(schema.Problema),
		DetalleLibre:        strings.TrimSpace(schema.DetalleLibre),
		OriginalUserMessage: text,
	}
	if slots.IntentShort == "" {
		slots.IntentShort = shared.TruncateRunes(strings.TrimSpace(text), fallbackIntentRunes)
	}
	return slots
}

func fallbackSlots(text string) models.IntentSlots {
	trimmed := strings.TrimSpace(text)
	return models.IntentSlots{
		IntentShort:         shared.TruncateRunes(trimmed, fallbackIntentRunes),
		DetalleLibre:        shared.TruncateRunes(trimmed, fallbackDetalleRunes),
		OriginalUserMessage: text,
	}
}

// ComposeConfirmation asks the model to phrase a natural confirmation
// question for the extracted slots; the template fallback keeps the dialogue
// moving when the call fails.
func (it *Interpreter) ComposeConfirmation(ctx context.Context, slots models.IntentSlots) string {
	raw, err := it.client.Complete(ctx, buildConfirmationPrompt(slots))
	if err == nil {
		var out struct {
			Question string `json:"question"`
		}
		if llm.ParseInto(raw, &out) && strings.TrimSpace(out.Question) != "" {
			return strings.TrimSpace(out.Question)
		}
		// Some models answer in plain text despite the schema instruction.
		if q := strings.TrimSpace(raw); q != "" && !strings.Contains(q, "{") {
			return q
		}
	} else {
		log.Warn().Err(err).Msg("confirmation composition failed, using template")
	}
	return fmt.Sprintf("¿Te refieres a: %s?", slots.IntentShort)
}

func buildExtractionPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Eres un asistente de mesa de ayuda universitaria. Extrae los campos ")
	b.WriteString("estructurados de la solicitud del estudiante.\n\n")
	b.WriteString("Responde SOLO con un objeto JSON con exactamente estas claves, todas de tipo string ")
	b.WriteString("(usa \"\" cuando un dato no aparezca):\n")
	b.WriteString("```json\n")
	b.WriteString("{\n")
	b.WriteString("  \"intent_short\": \"resumen breve de lo que pide\",\n")
	b.WriteString("  \"accion\": \"verbo principal (solicitar, consultar, justificar, ...)\",\n")
	b.WriteString("  \"objeto\": \"sobre qué actúa la acción\",\n")
	b.WriteString("  \"asignatura\": \"asignatura mencionada\",\n")
	b.WriteString("  \"unidad_o_actividad\": \"unidad, tarea o actividad\",\n")
	b.WriteString("  \"periodo\": \"periodo o fecha académica\",\n")
	b.WriteString("  \"carrera\": \"carrera del estudiante\",\n")
	b.WriteString("  \"facultad\": \"facultad\",\n")
	b.WriteString("  \"modalidad\": \"presencial, en línea, etc.\",\n")
	b.WriteString("  \"sistema\": \"sistema o plataforma involucrada\",\n")
	b.WriteString("  \"problema\": \"problema reportado\",\n")
	b.WriteString("  \"detalle_libre\": \"cualquier detalle adicional\"\n")
	b.WriteString("}\n")
	b.WriteString("```\n\n")
	b.WriteString("Solicitud del estudiante:\n")
	b.WriteString(text)
	return b.String()
}

func buildConfirmationPrompt(slots models.IntentSlots) string {
	var b strings.Builder
	b.WriteString("Formula UNA pregunta breve y natural en español para confirmar que entendiste ")
	b.WriteString("la solicitud del estudiante. No agregues saludos ni explicaciones.\n\n")
	b.WriteString("Solicitud entendida: ")
	b.WriteString(slots.IntentShort)
	if slots.Asignatura != "" {
		b.WriteString("\nAsignatura: ")
		b.WriteString(slots.Asignatura)
	}
	if slots.Periodo != "" {
		b.WriteString("\nPeriodo: ")
		b.WriteString(slots.Periodo)
	}
	b.WriteString("\n\nResponde con JSON: {\"question\": \"...\"}")
	return b.String()
}
