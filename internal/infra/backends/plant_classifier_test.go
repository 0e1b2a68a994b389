package backends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

const plantIDBody = `{
  "result": {
    "is_plant": {"probability": 0.99, "binary": true},
    "classification": {"suggestions": [
      {"name": "Monstera adansonii", "probability": 0.41, "details": {"common_names": ["Swiss cheese vine"]}},
      {"name": "Monstera deliciosa", "probability": 0.87, "details": {
        "common_names": ["Swiss cheese plant"],
        "taxonomy": {"family": "Araceae", "genus": "Monstera"},
        "description": {"value": "A tropical climbing plant."}
      }}
    ]},
    "is_healthy": {"probability": 0.344, "binary": false},
    "disease": {"suggestions": [
      {"name": "Spider mites", "probability": 0.83, "details": {"treatment": {"biological": ["Release predatory mites"]}}},
      {"name": "Fungi", "probability": 0.52, "details": {"treatment": {"chemical": [" ", "Copper fungicide"], "prevention": ["Avoid wetting the leaves"]}}},
      {"name": "Water excess", "probability": 0.05}
    ]}
  }
}`

func TestPlantClassifierClassify(t *testing.T) {
	var got plantIDRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-123", r.Header.Get("Api-Key"))
		assert.Contains(t, r.URL.RawQuery, "details=")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(plantIDBody))
	}))
	defer srv.Close()

	c := &PlantClassifierClient{ID: "plant_id", Endpoint: srv.URL, APIKey: "k-123", HTTP: srv.Client()}
	r, raw, err := c.Classify(context.Background(), domain.AnalysisRequest{
		ImageData: "aGk=",
		ImageMIME: "image/png",
		Context:   map[string]any{"plant_age": "3 months"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, plantIDBody, string(raw))

	assert.Equal(t, []string{"data:image/png;base64,aGk="}, got.Images)
	assert.Equal(t, "all", got.Health)
	assert.Equal(t, "3 months", got.PlantAge)

	require.NotNil(t, r.Identification)
	assert.Equal(t, "Monstera deliciosa", r.Identification.Species)
	assert.Equal(t, "Swiss cheese plant", r.Identification.CommonName)
	assert.Equal(t, "Araceae", r.Identification.Family)
	assert.InDelta(t, 0.87, r.Confidence, 1e-9)
	assert.Equal(t, "A tropical climbing plant.", r.Summary)

	require.NotNil(t, r.Health)
	assert.Equal(t, 34, r.Health.OverallHealth)

	require.Len(t, r.Pests, 1)
	assert.Equal(t, "Spider mites", r.Pests[0].Type)
	assert.Equal(t, "severe", r.Pests[0].Severity)
	assert.Equal(t, "Release predatory mites", r.Pests[0].Treatment)

	require.Len(t, r.Diseases, 1)
	assert.Equal(t, "Fungi", r.Diseases[0].Type)
	assert.Equal(t, "moderate", r.Diseases[0].Severity)
	assert.Equal(t, "Copper fungicide", r.Diseases[0].Treatment)
	assert.Equal(t, []string{"Avoid wetting the leaves"}, r.Recommendations)
}

func TestPlantClassifierHealthOnly(t *testing.T) {
	var resp plantIDResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":{"is_healthy":{"probability":0.9}}}`), &resp))
	r := fromPlantID(resp)
	assert.Nil(t, r.Identification)
	assert.Equal(t, DefaultPlantClassifierConfidence, r.Confidence)
	assert.Equal(t, 90, r.Health.OverallHealth)
}

func TestPlantClassifierEmptyResultIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	c := &PlantClassifierClient{ID: "plant_id", Endpoint: srv.URL, HTTP: srv.Client()}
	_, _, err := c.Classify(context.Background(), domain.AnalysisRequest{ImageURL: "https://example.com/a.jpg"})
	assert.Equal(t, domain.KindParse, domain.KindOf(err))
}

func TestPlantClassifierUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &PlantClassifierClient{ID: "plant_id", Endpoint: srv.URL, HTTP: srv.Client()}
	_, _, err := c.Classify(context.Background(), domain.AnalysisRequest{ImageURL: "https://example.com/a.jpg"})
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
}

func TestSeverityFromProbability(t *testing.T) {
	assert.Equal(t, "severe", severityFromProbability(0.8))
	assert.Equal(t, "moderate", severityFromProbability(0.4))
	assert.Equal(t, "mild", severityFromProbability(0.39))
}
