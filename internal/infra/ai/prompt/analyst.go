package prompt

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are an expert plant pathologist and agronomist. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: mild, moderate, severe.
- confidence values are numbers between 0 and 1.
- health.overall_health is an integer between 0 and 100.
- Only report pests and diseases that are visible or strongly indicated by the image.
- recommendations is an array of short, actionable sentences.

Schema (example with empty values):
{
  "identification": {"species": "<string>", "common_name": "<string>", "family": "<string>", "genus": "<string>", "confidence": 0.0},
  "health": {
    "overall_health": 0,
    "stress_factors": [{"type": "<string>", "severity": "<mild|moderate|severe>", "description": "<string>"}],
    "nutrient_deficiencies": ["<string>"]
  },
  "pests": [{"type": "<string>", "severity": "<mild|moderate|severe>", "confidence": 0.0, "affected_area": "<string>", "treatment": "<string>"}],
  "diseases": [{"type": "<string>", "severity": "<mild|moderate|severe>", "confidence": 0.0, "symptoms": ["<string>"], "treatment": "<string>"}],
  "growth": {"stage": "<string>", "rate": "<string>", "notes": "<string>"},
  "recommendations": ["<string>"],
  "summary": "<string>",
  "confidence": 0.0
}`
}

// GetAdvisorSystemPrompt is used by the text-only advisory backend, which
// answers in prose.
func GetAdvisorSystemPrompt() string {
	return `You are a senior greenhouse agronomist advising a grower. Answer in plain prose.
Name any pests or diseases you suspect explicitly, describe the overall plant health in one sentence
(use words such as excellent, moderate, poor), and give concrete recommendations as full sentences
starting with "You should", "Apply" or "Treat with". If you can, append one JSON object following this schema:
{"health": {"overall_health": 0}, "pests": [], "diseases": [], "recommendations": [], "summary": "", "confidence": 0.0}`
}

// GetUserPrompt renders the fixed analysis template around the request's context.
func GetUserPrompt(req domain.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the plant in the attached image and respond with the JSON per schema.\n")
	writeContext(&b, req)
	writeOptions(&b, req.Options)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fmt.Fprintf(&b, "Grower question: %s\n", p)
	}
	return b.String()
}

// GetAdvisorPrompt renders the advisory template; the image is referenced by URL only.
func GetAdvisorPrompt(req domain.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Give cultivation advice for the following plant.\n")
	if req.ImageURL != "" {
		fmt.Fprintf(&b, "Photo: %s\n", req.ImageURL)
	}
	writeContext(&b, req)
	writeOptions(&b, req.Options)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fmt.Fprintf(&b, "Grower question: %s\n", p)
	}
	return b.String()
}

// context keys read by the templates, in render order
var contextFields = []struct {
	key   string
	label string
}{
	{"crop_type", "Crop type"},
	{"plant_age", "Plant age (days)"},
	{"growth_stage", "Growth stage"},
	{"location", "Location"},
	{"previous_diagnoses", "Previous diagnoses"},
	{"growth_history", "Growth history"},
}

func writeContext(b *strings.Builder, req domain.AnalysisRequest) {
	for _, f := range contextFields {
		if v := req.ContextString(f.key); v != "" {
			fmt.Fprintf(b, "%s: %s\n", f.label, v)
		}
	}
}

func writeOptions(b *strings.Builder, o domain.AnalysisOptions) {
	fmt.Fprintf(b, "Detail level: %s\n", o.DetailLevel)
	if o.IncludeTreatment {
		b.WriteString("Include treatment advice for every pest and disease.\n")
	}
	if o.IncludeTimeline {
		b.WriteString("Include a timeline for each recommendation.\n")
	}
	if o.IncludeConfidence {
		b.WriteString("Report a calibrated confidence for every finding.\n")
	}
}
