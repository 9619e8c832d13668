package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON_MarkdownFence(t *testing.T) {
	response := "Here is the result:\n```json\n{\"needs_context\": true}\n```\nDone."

	got := ExtractJSON(response)
	if got != `{"needs_context": true}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractJSON_BareObject(t *testing.T) {
	got := ExtractJSON(`  {"a": 1}  `)
	if got != `{"a": 1}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractJSON_ProseOnly(t *testing.T) {
	if got := ExtractJSON("I cannot answer that."); got != "" {
		t.Errorf("expected empty extraction, got %q", got)
	}
}

func TestRepair_ValidPassesThrough(t *testing.T) {
	valid := `{"intent_short": "cambio de carrera"}`

	repaired, stats, ok := Repair(valid)
	if !ok {
		t.Fatal("valid JSON should parse")
	}
	if stats.WasRepaired {
		t.Error("valid JSON must not be marked repaired")
	}
	if repaired != valid {
		t.Error("valid JSON must pass through unchanged")
	}
}

func TestRepair_TrailingComma(t *testing.T) {
	repaired, stats, ok := Repair(`{"accion": "solicitar",}`)
	if !ok {
		t.Fatalf("repair failed: %v", stats.RepairStrategies)
	}
	if !stats.WasRepaired {
		t.Error("expected repair to be recorded")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON does not parse: %v", err)
	}
	if out["accion"] != "solicitar" {
		t.Errorf("field lost during repair: %v", out)
	}
}

func TestRepair_TruncatedObject(t *testing.T) {
	truncated := `{"intent_short": "homologación", "detalle_libre": "necesito homologar`

	repaired, _, ok := Repair(truncated)
	if !ok {
		t.Fatalf("truncated object should be closable, got %q", repaired)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON does not parse: %v", err)
	}
	if out["intent_short"] != "homologación" {
		t.Errorf("complete field lost: %v", out)
	}
}

func TestParseInto_DefaultsOnGarbage(t *testing.T) {
	type verdict struct {
		NeedsContext bool    `json:"needs_context"`
		Confidence   float64 `json:"confidence"`
	}

	var v verdict
	if ParseInto("complete nonsense, no json at all", &v) {
		t.Fatal("garbage must not parse")
	}
	if v.NeedsContext || v.Confidence != 0 {
		t.Errorf("target must stay at defaults, got %+v", v)
	}
}

func TestParseInto_RepairsAndFills(t *testing.T) {
	type verdict struct {
		NeedsContext bool   `json:"needs_context"`
		Reason       string `json:"reason"`
	}

	var v verdict
	ok := ParseInto("```json\n{\"needs_context\": true, \"reason\": \"pronoun\",}\n```", &v)
	if !ok {
		t.Fatal("repairable response must parse")
	}
	if !v.NeedsContext || v.Reason != "pronoun" {
		t.Errorf("unexpected parse result: %+v", v)
	}
}
