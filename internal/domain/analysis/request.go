package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const defaultImageMIME = "image/jpeg"

// Normalize returns a copy with duplicate backends removed (first occurrence
// kept) and option defaults applied.
func (r AnalysisRequest) Normalize() AnalysisRequest {
	out := r.Clone()
	seen := make(map[BackendID]bool, len(out.Backends))
	backends := make([]BackendID, 0, len(out.Backends))
	for _, id := range out.Backends {
		id = BackendID(strings.TrimSpace(string(id)))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		backends = append(backends, id)
	}
	out.Backends = backends
	if out.Options.DetailLevel == "" {
		out.Options.DetailLevel = DetailDetailed
	}
	if out.ImageData != "" && out.ImageMIME == "" {
		out.ImageMIME = defaultImageMIME
	}
	return out
}

// Validate checks the request shape. Errors wrap ErrInvalidRequest.
func (r AnalysisRequest) Validate() error {
	hasURL := strings.TrimSpace(r.ImageURL) != ""
	hasData := strings.TrimSpace(r.ImageData) != ""
	if hasURL == hasData {
		return fmt.Errorf("%w: exactly one of image_url or image_data is required", ErrInvalidRequest)
	}
	if len(r.Backends) == 0 {
		return fmt.Errorf("%w: at least one backend is required", ErrInvalidRequest)
	}
	if _, err := json.Marshal(r.Context); err != nil {
		return fmt.Errorf("%w: context is not JSON-encodable: %v", ErrInvalidRequest, err)
	}
	switch r.Options.DetailLevel {
	case "", DetailBasic, DetailDetailed, DetailComprehensive:
	default:
		return fmt.Errorf("%w: unknown detail level %q", ErrInvalidRequest, r.Options.DetailLevel)
	}
	return nil
}

// Clone deep-copies the request so the stored snapshot cannot be mutated by the caller.
func (r AnalysisRequest) Clone() AnalysisRequest {
	out := r
	if r.Backends != nil {
		out.Backends = append([]BackendID(nil), r.Backends...)
	}
	if r.Context != nil {
		out.Context = cloneValue(r.Context).(map[string]any)
	}
	return out
}

// ContextString reads a string-ish context key; missing keys yield "".
func (r AnalysisRequest) ContextString(key string) string {
	v, ok := r.Context[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneValue(x)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func sortIDs(ids []BackendID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
