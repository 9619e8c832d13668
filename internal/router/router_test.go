package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	return New(DefaultCatalog(), 0.75, 8)
}

func TestRoute_FolderScoring(t *testing.T) {
	r := newTestRouter()

	set := r.Route("no pude pagar el arancel y perdí mi beca", nil, nil)
	require.NotEmpty(t, set.Folders)
	assert.Equal(t, "becas_aranceles", set.Folders[0])
	assert.LessOrEqual(t, len(set.Folders), 2)
}

func TestRoute_TopTwoFolders(t *testing.T) {
	r := newTestRouter()

	// Triggers for both evaluation (nota, recalificacion) and regulations
	// (reglamento).
	set := r.Route("según el reglamento, ¿puedo pedir recalificación de una nota?", nil, nil)
	require.Len(t, set.Folders, 2)
	assert.Contains(t, set.Folders, "evaluacion_calificaciones")
	assert.Contains(t, set.Folders, "reglamentos")
}

func TestRoute_ZeroScoresUseDefaults(t *testing.T) {
	r := newTestRouter()

	set := r.Route("hola buenas tardes", nil, nil)
	assert.Equal(t, DefaultCatalog().DefaultFolders, set.Folders, "zero-score routing must use the default folder set")
	assert.NotEmpty(t, set.Files, "file fallback must enumerate routed folders")
}

func TestRoute_TieKeepsDeclarationOrder(t *testing.T) {
	catalog := &Catalog{
		Folders: []Folder{
			{ID: "alpha", Triggers: []string{"tramite"}},
			{ID: "beta", Triggers: []string{"tramite"}},
			{ID: "gamma", Triggers: []string{"tramite"}},
		},
		DefaultFolders: []string{"alpha"},
		Files: []FileEntry{
			{ID: "f1", Title: "Documento Uno", Folder: "alpha"},
		},
		Acronyms: map[string]string{},
	}
	r := New(catalog, 0.75, 8)

	set := r.Route("quiero hacer un tramite", nil, nil)
	assert.Equal(t, []string{"alpha", "beta"}, set.Folders)
}

func TestRoute_AcronymHitPrioritized(t *testing.T) {
	r := newTestRouter()

	set := r.Route("¿qué dice el RRA sobre la tercera matrícula?", nil, nil)
	require.NotEmpty(t, set.Files)
	assert.Equal(t, "doc-rra", set.Files[0], "acronym hits go before fuzzy hits")
}

func TestRoute_FuzzyTitleMatch(t *testing.T) {
	r := newTestRouter()

	set := r.Route("busco el reglamento de evaluación estudiantil actualizado", nil, nil)
	assert.Contains(t, set.Files, "doc-evaluacion")
}

func TestRoute_SubqueriesCappedAtThree(t *testing.T) {
	r := newTestRouter()

	// The fourth subquery is the only one with a trigger term; it must be
	// ignored.
	set := r.Route("hola", []string{"a", "b", "c", "quiero una beca"}, nil)
	assert.Equal(t, DefaultCatalog().DefaultFolders, set.Folders)
}

func TestRoute_EntitiesContribute(t *testing.T) {
	r := newTestRouter()

	set := r.Route("tengo un problema", nil, []string{"examen supletorio", "nota final"})
	require.NotEmpty(t, set.Folders)
	assert.Equal(t, "evaluacion_calificaciones", set.Folders[0])
}

func TestRoute_ShortlistCapped(t *testing.T) {
	r := New(DefaultCatalog(), 0.01, 3) // absurdly low threshold: everything matches

	set := r.Route("reglamento de matrícula y becas y evaluación y titulación", nil, nil)
	assert.LessOrEqual(t, len(set.Files), 3)
}

func TestTitleSimilarity_WindowedMatch(t *testing.T) {
	// The title appears verbatim inside a longer query.
	sim := titleSimilarity(
		"necesito consultar el reglamento de regimen academico por una duda",
		"reglamento de regimen academico",
	)
	assert.GreaterOrEqual(t, sim, 0.95)

	unrelated := titleSimilarity("quiero cambiar mi clave del correo", "reglamento de titulacion de grado")
	assert.Less(t, unrelated, 0.75)
}
