package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/zephyra-labs/zephyra-cli/internal/config"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"a": 1, "b": 2}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"a"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"].(float64) != 1 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["b"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectNestedField(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data: model.DashboardSnapshot{
			Address:      "0xabc",
			HealthFactor: model.HealthFactor{Raw: "1", Display: "unbounded", Unbounded: true},
		},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"health_factor.display", "address"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["health_factor.display"] != "unbounded" || out["address"] != "0xabc" || len(out) != 2 {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}

func TestRenderPlainFlattensNested(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data: map[string]any{
			"name":   "x",
			"health": map[string]any{"display": "1.5000"},
		},
		Meta: model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name=x") || !strings.Contains(buf.String(), "health.display=1.5000") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderEventCompactJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderEvent(&buf, map[string]any{"kind": "chainChanged", "chain_id": 84532}, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("RenderEvent failed: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 || !strings.Contains(buf.String(), `"kind":"chainChanged"`) {
		t.Fatalf("expected a single compact line, got %q", buf.String())
	}
}
