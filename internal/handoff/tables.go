// Package handoff decides when a request escapes automated answering and
// which human department receives it. The rules are independent and their
// reasons accumulate; escalation fires whenever at least one reason exists.
package handoff

import (
	"regexp"

	"github.com/deskcore/pkg/models"
)

// Rule reason labels. C1 and C2 carry a suffix with the missing keys or the
// follow-up count.
const (
	ReasonLowConfidence       = "low_confidence"
	ReasonMediumCritical      = "medium_confidence+critical_intent"
	ReasonMissingDocsPrefix   = "faltan_documentos:"
	ReasonFollowupsPrefix     = "multiples_repreguntas:"
	ReasonSensitiveLowConf    = "tema_sensible+baja_confianza"
	ReasonOperativeValidation = "operativo_requiere_validacion"
)

// Handoff channels carried on the produced turn.
const (
	ChannelTicket = "ticket"
	ChannelCorreo = "correo"
)

// criticalIntents are folded phrases whose presence in the interpreted intent
// marks it as high-stakes: wrong automated answers here have academic or
// legal consequences.
var criticalIntents = []string{
	"tercera matricula",
	"retiro extemporaneo",
	"anulacion de matricula",
	"apelacion",
	"sancion",
	"recalificacion",
	"homologacion",
	"cambio de carrera",
	"reingreso",
	"perdida de gratuidad",
}

// slotRequirement lists the slot keys an intent needs before it can be filed
// without asking for more documentation.
type slotRequirement struct {
	trigger string
	keys    []string
}

var slotRequirements = []slotRequirement{
	{trigger: "retiro", keys: []string{"asignatura", "periodo"}},
	{trigger: "recalificacion", keys: []string{"asignatura", "unidad_o_actividad"}},
	{trigger: "cambio de paralelo", keys: []string{"asignatura"}},
	{trigger: "cambio de carrera", keys: []string{"carrera"}},
	{trigger: "homologacion", keys: []string{"carrera", "asignatura"}},
	{trigger: "tercera matricula", keys: []string{"asignatura"}},
	{trigger: "justificar", keys: []string{"asignatura", "periodo"}},
}

// slotField maps requirement keys to their IntentSlots accessor.
var slotField = map[string]func(models.IntentSlots) string{
	"asignatura":         func(s models.IntentSlots) string { return s.Asignatura },
	"periodo":            func(s models.IntentSlots) string { return s.Periodo },
	"unidad_o_actividad": func(s models.IntentSlots) string { return s.UnidadOActividad },
	"carrera":            func(s models.IntentSlots) string { return s.Carrera },
	"sistema":            func(s models.IntentSlots) string { return s.Sistema },
	"problema":           func(s models.IntentSlots) string { return s.Problema },
}

// sensitiveTopics match against category and subcategory hints.
var sensitiveTopics = []string{
	"acoso",
	"discriminacion",
	"violencia",
	"salud mental",
	"denuncia",
	"fraude",
	"datos personales",
}

// Nominally operative requests that policy resolves with information only: no
// department can justify an absence after the fact, so the bot answers with
// the applicable rule instead of escalating for validation.
var policyExceptionPhrases = []string{
	"justificar la inasistencia",
	"justificar mi inasistencia",
	"justificar la falta",
	"justificar mi falta",
	"que me justifiquen",
}

var policyExceptionRe = regexp.MustCompile(`justific\w*\s+(la\s+|mi\s+|una\s+)?(falta|inasistencia|asistencia)`)

var operativeActions = map[string]bool{
	"solicitar": true, "cambiar": true, "anular": true, "retirar": true,
	"inscribir": true, "matricular": true, "apelar": true, "justificar": true,
	"activar": true, "registrar": true, "modificar": true, "renovar": true,
	"postular": true, "reservar": true,
}

var informativeActions = map[string]bool{
	"consultar": true, "saber": true, "conocer": true, "preguntar": true,
	"informar": true, "averiguar": true, "revisar": true, "ver": true,
}

// canonicalDepartments is the closed list a model-suggested department must
// match (case and diacritic insensitively) to be accepted.
var canonicalDepartments = []string{
	"Secretaría Académica",
	"Bienestar Estudiantil",
	"Tesorería Estudiantil",
	"Soporte Tecnológico",
	"Decanato de Facultad",
	"Admisiones y Registro",
}

type departmentKeyword struct {
	keyword    string
	department string
}

// Ordered: first hit wins, so a hint like "pagos de matricula" always lands
// on the payment department.
var departmentsByCategory = []departmentKeyword{
	{"becas", "Bienestar Estudiantil"},
	{"aranceles", "Tesorería Estudiantil"},
	{"pagos", "Tesorería Estudiantil"},
	{"sistemas", "Soporte Tecnológico"},
	{"plataforma", "Soporte Tecnológico"},
	{"matricula", "Admisiones y Registro"},
	{"admision", "Admisiones y Registro"},
	{"titulacion", "Secretaría Académica"},
	{"calificaciones", "Secretaría Académica"},
	{"evaluacion", "Secretaría Académica"},
	{"disciplina", "Decanato de Facultad"},
	{"acoso", "Bienestar Estudiantil"},
	{"denuncia", "Bienestar Estudiantil"},
}

// Ordered: first hit wins.
var departmentKeywords = []departmentKeyword{
	{"beca", "Bienestar Estudiantil"},
	{"acoso", "Bienestar Estudiantil"},
	{"denuncia", "Bienestar Estudiantil"},
	{"arancel", "Tesorería Estudiantil"},
	{"pago", "Tesorería Estudiantil"},
	{"deuda", "Tesorería Estudiantil"},
	{"contrasena", "Soporte Tecnológico"},
	{"clave", "Soporte Tecnológico"},
	{"correo institucional", "Soporte Tecnológico"},
	{"aula virtual", "Soporte Tecnológico"},
	{"sistema", "Soporte Tecnológico"},
	{"matricula", "Admisiones y Registro"},
	{"admision", "Admisiones y Registro"},
	{"cupo", "Admisiones y Registro"},
	{"titulacion", "Secretaría Académica"},
	{"titulo", "Secretaría Académica"},
	{"nota", "Secretaría Académica"},
	{"calificacion", "Secretaría Académica"},
	{"acta", "Secretaría Académica"},
	{"sancion", "Decanato de Facultad"},
}
