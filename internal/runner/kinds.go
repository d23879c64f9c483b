package runner

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pursuit-cli/internal/model"
)

//go:embed kinds.yaml
var defaultKindsYAML []byte

// KindDef is one job kind's prompt definition.
type KindDef struct {
	System      string   `yaml:"system"`
	Prompt      string   `yaml:"prompt"`
	MaxTokens   int64    `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

type kindsFile struct {
	Jobs map[string]KindDef `yaml:"jobs"`
}

// LoadKinds reads job-kind definitions from path, or the embedded defaults
// when path is empty. Every known job kind must be defined.
func LoadKinds(path string) (map[model.JobKind]KindDef, error) {
	raw := defaultKindsYAML
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "runner: read kind definitions %s", path)
		}
	}

	var f kindsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "runner: parse kind definitions")
	}

	kinds := make(map[model.JobKind]KindDef, len(f.Jobs))
	for name, def := range f.Jobs {
		kind := model.JobKind(name)
		if !kind.Valid() {
			return nil, eris.Errorf("runner: unknown job kind %q in definitions", name)
		}
		if def.Prompt == "" {
			return nil, eris.Errorf("runner: job kind %q has no prompt", name)
		}
		if def.MaxTokens <= 0 {
			def.MaxTokens = 2048
		}
		kinds[kind] = def
	}
	for _, kind := range []model.JobKind{model.JobKindExtraction, model.JobKindGapAnalysis, model.JobKindPrompt} {
		if _, ok := kinds[kind]; !ok {
			return nil, eris.Errorf("runner: job kind %q missing from definitions", kind)
		}
	}
	return kinds, nil
}

// renderPrompt substitutes the pursuit's fields into the template
// placeholders.
func renderPrompt(tmpl string, p *model.Pursuit) string {
	extraction := "{}"
	if p.Extraction != nil {
		if raw, err := json.Marshal(p.Extraction.Fields); err == nil {
			extraction = string(raw)
		}
	}
	gaps := "[]"
	if p.GapAnalysis != nil {
		if raw, err := json.Marshal(p.GapAnalysis.Gaps); err == nil {
			gaps = string(raw)
		}
	}
	return strings.NewReplacer(
		"{{entity_name}}", p.EntityName,
		"{{industry}}", p.Industry,
		"{{geography}}", p.Geography,
		"{{due_date}}", p.DueDate,
		"{{output_format}}", p.OutputFormat,
		"{{estimated_value}}", fmt.Sprintf("%v", p.EstimatedValue),
		"{{service_types}}", strings.Join(p.ServiceTypes, ", "),
		"{{technologies}}", strings.Join(p.Technologies, ", "),
		"{{extraction_json}}", extraction,
		"{{gaps_json}}", gaps,
	).Replace(tmpl)
}
