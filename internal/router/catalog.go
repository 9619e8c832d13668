// Package router narrows retrieval scope before full-text search: folder
// routing by trigger terms, then a file shortlist from acronym and fuzzy
// title matching. No model calls; everything here is table-driven.
package router

// Folder is one routed document folder with its trigger vocabulary. Order of
// declaration matters: it breaks score ties.
type Folder struct {
	ID       string
	Triggers []string
}

// FileEntry is one registered document.
type FileEntry struct {
	ID     string
	Title  string
	Folder string
}

// Catalog holds the static routing tables plus the loaded title index.
type Catalog struct {
	Folders        []Folder
	DefaultFolders []string
	Files          []FileEntry
	// Acronyms maps a folded acronym or alias to the exact title of the
	// document it stands for.
	Acronyms map[string]string
}

// DefaultCatalog returns the institutional routing tables. Trigger lists are
// matched as substrings against folded text, so entries are lowercase and
// accent-free.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Folders: []Folder{
			{ID: "reglamentos", Triggers: []string{
				"reglamento", "normativa", "norma", "estatuto", "disposicion",
				"regimen academico", "sancion", "falta", "apelacion", "articulo",
			}},
			{ID: "matricula_admision", Triggers: []string{
				"matricula", "matricular", "inscripcion", "inscribir", "admision",
				"cupo", "paralelo", "cambio de carrera", "retiro", "anulacion",
				"segunda matricula", "tercera matricula",
			}},
			{ID: "becas_aranceles", Triggers: []string{
				"beca", "arancel", "pago", "gratuidad", "descuento",
				"ayuda economica", "financiamiento", "deuda", "socioeconomic",
			}},
			{ID: "evaluacion_calificaciones", Triggers: []string{
				"nota", "calificacion", "examen", "recalificacion", "supletorio",
				"remedial", "evaluacion", "acta", "recuperacion", "promedio",
			}},
			{ID: "titulacion", Triggers: []string{
				"titulacion", "titulo", "tesis", "grado", "egresado",
				"trabajo de integracion", "examen complexivo", "acta de grado",
			}},
			{ID: "sistemas_servicios", Triggers: []string{
				"sistema", "plataforma", "aula virtual", "moodle", "contrasena",
				"clave", "correo institucional", "acceso", "usuario", "certificado",
				"biblioteca",
			}},
		},
		DefaultFolders: []string{"reglamentos", "matricula_admision"},
		Files: []FileEntry{
			{ID: "doc-rra", Title: "Reglamento de Régimen Académico", Folder: "reglamentos"},
			{ID: "doc-estatuto", Title: "Estatuto Institucional", Folder: "reglamentos"},
			{ID: "doc-disciplina", Title: "Reglamento de Disciplina y Sanciones", Folder: "reglamentos"},
			{ID: "doc-matricula", Title: "Instructivo de Matrículas y Registro", Folder: "matricula_admision"},
			{ID: "doc-admision", Title: "Reglamento de Admisión y Nivelación", Folder: "matricula_admision"},
			{ID: "doc-retiros", Title: "Procedimiento de Retiro de Asignaturas", Folder: "matricula_admision"},
			{ID: "doc-becas", Title: "Reglamento de Becas y Ayudas Económicas", Folder: "becas_aranceles"},
			{ID: "doc-aranceles", Title: "Instructivo de Aranceles y Gratuidad", Folder: "becas_aranceles"},
			{ID: "doc-evaluacion", Title: "Reglamento de Evaluación Estudiantil", Folder: "evaluacion_calificaciones"},
			{ID: "doc-recalificacion", Title: "Procedimiento de Recalificación de Exámenes", Folder: "evaluacion_calificaciones"},
			{ID: "doc-titulacion", Title: "Reglamento de Titulación de Grado", Folder: "titulacion"},
			{ID: "doc-complexivo", Title: "Instructivo del Examen Complexivo", Folder: "titulacion"},
			{ID: "doc-aula-virtual", Title: "Manual del Aula Virtual", Folder: "sistemas_servicios"},
			{ID: "doc-servicios-ti", Title: "Guía de Servicios Tecnológicos Estudiantiles", Folder: "sistemas_servicios"},
		},
		Acronyms: map[string]string{
			"rra":        "Reglamento de Régimen Académico",
			"rda":        "Reglamento de Admisión y Nivelación",
			"reb":        "Reglamento de Becas y Ayudas Económicas",
			"ree":        "Reglamento de Evaluación Estudiantil",
			"rtg":        "Reglamento de Titulación de Grado",
			"complexivo": "Instructivo del Examen Complexivo",
			"estatuto":   "Estatuto Institucional",
			"eva":        "Manual del Aula Virtual",
		},
	}
}

// fileByTitle returns the entry whose title matches exactly.
func (c *Catalog) fileByTitle(title string) (FileEntry, bool) {
	for _, f := range c.Files {
		if f.Title == title {
			return f, true
		}
	}
	return FileEntry{}, false
}

// filesUnder returns every file registered under the given folders, in
// catalog order.
func (c *Catalog) filesUnder(folders []string) []FileEntry {
	member := map[string]bool{}
	for _, id := range folders {
		member[id] = true
	}
	var out []FileEntry
	for _, f := range c.Files {
		if member[f.Folder] {
			out = append(out, f)
		}
	}
	return out
}
