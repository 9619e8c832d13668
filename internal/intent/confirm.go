package intent

import (
	"strings"

	"github.com/deskcore/pkg/shared"
)

// Confirmation is the outcome of matching a reply against the closed yes/no
// vocabulary. This is deliberately not model-based: a confirmation reply is
// two words at most and a fixed vocabulary is both cheaper and predictable.
type Confirmation int

const (
	ConfirmUnknown Confirmation = iota
	ConfirmYes
	ConfirmNo
)

// Single-token matches (compared after diacritic folding).
var affirmativeTokens = map[string]bool{
	"si": true, "s": true, "yes": true, "ok": true, "okay": true,
	"dale": true, "claro": true, "listo": true, "correcto": true,
	"exacto": true, "afirmativo": true, "confirmo": true, "perfecto": true,
	"obvio": true, "bueno": true, "ya": true,
}

var negativeTokens = map[string]bool{
	"no": true, "n": true, "nel": true, "negativo": true,
	"incorrecto": true, "nop": true, "nope": true, "tampoco": true,
}

// Multi-word phrases matched by substring against the folded reply.
var affirmativePhrases = []string{
	"asi es", "de acuerdo", "eso mismo", "esta bien", "me refiero a eso",
}

var negativePhrases = []string{
	"no exactamente", "nada que ver", "para nada", "no es eso",
	"no me refiero", "otra cosa",
}

// DetectConfirmation classifies a reply as affirmative, negative or unknown.
// Negative phrases are checked before affirmative ones so that "no
// exactamente, está bien otra cosa" reads as a denial.
func DetectConfirmation(text string) Confirmation {
	folded := shared.FoldStrip(text)
	if folded == "" {
		return ConfirmUnknown
	}

	for _, phrase := range negativePhrases {
		if contains(folded, phrase) {
			return ConfirmNo
		}
	}

	tokens := shared.Tokens(text)
	for _, tok := range tokens {
		if negativeTokens[tok] {
			return ConfirmNo
		}
	}

	for _, phrase := range affirmativePhrases {
		if contains(folded, phrase) {
			return ConfirmYes
		}
	}
	for _, tok := range tokens {
		if affirmativeTokens[tok] {
			return ConfirmYes
		}
	}

	return ConfirmUnknown
}

// contains does a phrase match with word boundaries approximated by spaces.
func contains(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}
