package llm

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// ParseInto decodes the JSON object found in a raw model response into
// target, running extraction and repair first. Returns false when nothing
// parseable could be recovered; target is left at its zero/default state in
// that case. This is the single defensive-parse path every call site uses, so
// the default-fill policy is identical everywhere.
func ParseInto(response string, target any) bool {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		log.Debug().Int("response_len", len(response)).Msg("no JSON object found in model response")
		return false
	}

	repaired, stats, ok := Repair(jsonStr)
	if !ok {
		log.Debug().
			Strs("strategies", stats.RepairStrategies).
			Msg("model response unrecoverable after repair")
		return false
	}
	if stats.WasRepaired {
		log.Debug().Strs("strategies", stats.RepairStrategies).Msg("repaired model JSON")
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		log.Debug().Err(err).Msg("repaired JSON did not match schema")
		return false
	}
	return true
}
