package soap

import (
	"strings"
	"testing"

	"github.com/sentri-project/sentri/internal/domain"
)

func TestBuildRequestSubstitutesDomain(t *testing.T) {
	d, err := domain.Validate("example.com")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	body := string(BuildRequest(d))
	if !strings.Contains(body, "<Domain>example.com</Domain>") {
		t.Fatalf("request body missing domain substitution: %s", body)
	}
	if !strings.Contains(body, SOAPAction) {
		t.Fatalf("request body missing SOAPAction: %s", body)
	}
}

func fixtureResponse(domains ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Header><h:ServerVersion xmlns:h="urn:x">15.0</h:ServerVersion></s:Header>
<s:Body>
<GetFederationInformationResponseMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
  <Response>
    <Domains>`)
	for _, d := range domains {
		b.WriteString("<Domain>")
		b.WriteString(d)
		b.WriteString("</Domain>\n")
	}
	b.WriteString(`</Domains>
  </Response>
</GetFederationInformationResponseMessage>
</s:Body>
</s:Envelope>`)
	return b.String()
}

func TestParseResponseRoundTrip(t *testing.T) {
	want := []string{"example.com", "example.onmicrosoft.com", "example.net"}
	got, err := ParseResponse(strings.NewReader(fixtureResponse(want...)))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d domains, want %d: %v", len(got), len(want), got)
	}
	for i, d := range got {
		if d.String() != want[i] {
			t.Errorf("domain %d = %q, want %q", i, d.String(), want[i])
		}
	}
}

func TestParseResponseDiscardsInvalidEntries(t *testing.T) {
	got, err := ParseResponse(strings.NewReader(fixtureResponse("example.com", "not_a_domain", "1.2.3.4")))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(got) != 1 || got[0].String() != "example.com" {
		t.Fatalf("got %v, want only example.com", got)
	}
}

func TestParseResponseRejectsEmpty(t *testing.T) {
	body := `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body><GetFederationInformationResponseMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
<Response><Domains></Domains></Response>
</GetFederationInformationResponseMessage></s:Body></s:Envelope>`
	if _, err := ParseResponse(strings.NewReader(body)); err == nil {
		t.Fatal("expected ParseError for empty Domains list")
	}
}

func TestParseResponseRejectsMalformed(t *testing.T) {
	if _, err := ParseResponse(strings.NewReader("<not-xml")); err == nil {
		t.Fatal("expected ParseError for malformed XML")
	}
}

func TestParseResponseTolerartesNamespacesAndWhitespace(t *testing.T) {
	body := `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <a:GetFederationInformationResponseMessage xmlns:a="http://schemas.microsoft.com/exchange/2010/Autodiscover">
      <a:Response>
        <a:Domains>
           <a:Domain>  example.com  </a:Domain>
        </a:Domains>
      </a:Response>
    </a:GetFederationInformationResponseMessage>
  </soap:Body>
</soap:Envelope>`
	got, err := ParseResponse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(got) != 1 || got[0].String() != "example.com" {
		t.Fatalf("got %v, want [example.com]", got)
	}
}
