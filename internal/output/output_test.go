package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sentri-project/sentri/internal/model"
)

func TestRenderJSONRoundTrips(t *testing.T) {
	rec := model.Record{
		Domain:           "contoso.com",
		Tenant:           model.StringPtr("contoso"),
		FederatedDomains: []string{"contoso.com", "contoso.onmicrosoft.com"},
		MdiInstance:      model.StringPtr("contososensorapi.atp.azure.com"),
		ProcessingTimeMs: 123,
	}

	rendered, err := RenderJSON(rec)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	var got model.Record
	if err := json.Unmarshal([]byte(rendered), &got); err != nil {
		t.Fatalf("unmarshal rendered JSON: %v", err)
	}
	if got.Domain != rec.Domain || *got.Tenant != *rec.Tenant || *got.MdiInstance != *rec.MdiInstance {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestRenderJSONEmptyArraysNotNull(t *testing.T) {
	rec := model.NewErrorRecord("bad domain", 5, "validation failed")
	rendered, err := RenderJSON(rec)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	if strings.Contains(rendered, `"federated_domains": null`) {
		t.Fatalf("expected federated_domains to render as [], got: %s", rendered)
	}
}

func TestRenderPrettyShowsError(t *testing.T) {
	rec := model.NewErrorRecord("bad domain", 5, "validation failed")
	rendered := RenderPretty(rec)
	if !strings.Contains(rendered, "validation failed") {
		t.Fatalf("expected error message in pretty output, got: %s", rendered)
	}
}

func TestRenderPrettyShowsMdiSensor(t *testing.T) {
	rec := model.Record{
		Domain:           "contoso.com",
		Tenant:           model.StringPtr("contoso"),
		FederatedDomains: []string{"contoso.com"},
		MdiInstance:      model.StringPtr("contososensorapi.atp.azure.com"),
		ProcessingTimeMs: 10,
	}
	rendered := RenderPretty(rec)
	if !strings.Contains(rendered, "contososensorapi.atp.azure.com") {
		t.Fatalf("expected mdi instance in pretty output, got: %s", rendered)
	}
}
