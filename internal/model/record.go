// Package model defines the data shapes that flow out of sentri's probe
// pipeline: the per-domain Record and its constituent value types.
package model

// TenantName is the lowercase short name of a Microsoft 365 tenant, the
// leading label of a *.onmicrosoft.com domain. It is always derived, never
// user-supplied.
type TenantName string

// MdiHostname is a domain of the form {TenantName}sensorapi.atp.azure.com.
type MdiHostname string

// Record is the per-domain output tuple. Records are created exactly once
// by the probe pipeline and never mutated after emission.
type Record struct {
	Domain            string   `json:"domain"`
	Tenant            *string  `json:"tenant"`
	FederatedDomains  []string `json:"federated_domains"`
	MdiInstance       *string  `json:"mdi_instance"`
	ProcessingTimeMs  uint64   `json:"processing_time_ms"`
	Error             *string  `json:"error"`
}

// NewErrorRecord builds a terminal Record for a probe that failed before
// producing any tenant information.
func NewErrorRecord(domain string, elapsedMs uint64, errMsg string) Record {
	return Record{
		Domain:           domain,
		FederatedDomains: []string{},
		ProcessingTimeMs: elapsedMs,
		Error:            strPtr(errMsg),
	}
}

func strPtr(s string) *string { return &s }

// StringPtr exposes the pointer helper for callers assembling Records
// outside this package (probe, batch).
func StringPtr(s string) *string { return &s }
