package soap

import (
	"encoding/xml"
	"io"

	"github.com/sentri-project/sentri/internal/domain"
)

// MaxResponseBytes bounds how much of a federation response body sentri
// will ever decode. Anything past it is treated as malformed rather than
// buffered in full.
const MaxResponseBytes = 8 * 1024 * 1024

// ParseError reports a malformed, oversized, or empty federation response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "federation response parse error: " + e.Reason
}

type limitedCounter struct {
	r io.Reader
	n int64
}

func (c *limitedCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ParseResponse pulls the text of every <Domain> element nested inside
// <Domains> under GetFederationInformationResponseMessage, in document
// order, using a streaming token decoder so the whole document is never
// materialized as a DOM. Namespace prefixes and unknown surrounding
// elements are tolerated. Extracted candidates that fail domain.Validate
// are silently discarded, matching sentri's tenant-discovery contract.
func ParseResponse(r io.Reader) ([]domain.Domain, error) {
	counter := &limitedCounter{r: io.LimitReader(r, MaxResponseBytes+1)}
	decoder := xml.NewDecoder(counter)

	var (
		stack      []string
		inDomains  bool
		domainText []byte
		captured   []domain.Domain
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if counter.n > MaxResponseBytes {
				return nil, &ParseError{Reason: "response exceeds 8 MiB"}
			}
			return nil, &ParseError{Reason: "malformed XML: " + err.Error()}
		}

		switch el := tok.(type) {
		case xml.StartElement:
			stack = append(stack, el.Name.Local)
			if el.Name.Local == "Domains" {
				for _, name := range stack {
					if name == "GetFederationInformationResponseMessage" {
						inDomains = true
					}
				}
			}
			if inDomains && el.Name.Local == "Domain" {
				domainText = domainText[:0]
			}
		case xml.CharData:
			if inDomains && len(stack) > 0 && stack[len(stack)-1] == "Domain" {
				domainText = append(domainText, el...)
			}
		case xml.EndElement:
			if inDomains && el.Name.Local == "Domain" {
				raw := string(domainText)
				if d, verr := domain.Validate(raw); verr == nil {
					captured = append(captured, d)
				}
			}
			if el.Name.Local == "Domains" {
				inDomains = false
			}
			if len(stack) > 0 && stack[len(stack)-1] == el.Name.Local {
				stack = stack[:len(stack)-1]
			}
		}

		if counter.n > MaxResponseBytes {
			return nil, &ParseError{Reason: "response exceeds 8 MiB"}
		}
	}

	if len(captured) == 0 {
		return nil, &ParseError{Reason: "no Domain elements found"}
	}
	return captured, nil
}
