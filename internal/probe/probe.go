// Package probe implements the per-domain probe (C8): the state machine
// that takes one raw domain string through validation, tenant discovery via
// Microsoft's GetFederationInformation SOAP endpoint, tenant derivation, and
// an MDI sensor existence check, producing exactly one model.Record.
package probe

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentri-project/sentri/internal/dnsclient"
	"github.com/sentri-project/sentri/internal/domain"
	"github.com/sentri-project/sentri/internal/httpclient"
	"github.com/sentri-project/sentri/internal/model"
	"github.com/sentri-project/sentri/internal/ratelimit"
	"github.com/sentri-project/sentri/internal/retry"
	"github.com/sentri-project/sentri/internal/soap"
)

const onmicrosoftSuffix = ".onmicrosoft.com"

// Deps are the collaborators a Prober shares with every other Prober in the
// process: one HTTP client, one DNS resolver, one rate limiter.
type Deps struct {
	HTTP    *httpclient.Client
	DNS     *dnsclient.Resolver
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger

	RetryConfig retry.Config
	Clock       retry.Clock
	RNG         *rand.Rand

	// FederationURL overrides soap.AutodiscoverURL; tests point it at a
	// local httptest.Server instead of Microsoft's real endpoint.
	FederationURL string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = retry.RealClock
	}
	if d.RNG == nil {
		d.RNG = rand.New(rand.NewSource(1))
	}
	if d.FederationURL == "" {
		d.FederationURL = soap.AutodiscoverURL
	}
	return d
}

// Prober runs the C8 state machine for one domain at a time. It holds no
// per-domain state; a single Prober is safe to call concurrently from many
// goroutines, matching the shared-singleton usage C9 makes of it.
type Prober struct {
	deps Deps
}

func New(deps Deps) *Prober {
	return &Prober{deps: deps.withDefaults()}
}

// Probe runs VALIDATE → FETCH_FEDERATION → DERIVE_TENANT → PROBE_MDI → EMIT
// for raw, returning exactly one Record. No panic escapes Probe: a recovered
// panic is converted into an Internal-kind error Record.
func (p *Prober) Probe(ctx context.Context, raw string) model.Record {
	start := time.Now()

	var rec model.Record
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.deps.Logger.Error("probe panicked", zap.Any("recover", r), zap.String("input", raw))
				rec = model.NewErrorRecord(raw, elapsedMs(start), "internal error")
			}
		}()
		rec = p.run(ctx, raw, start)
	}()
	return rec
}

func (p *Prober) run(ctx context.Context, raw string, start time.Time) model.Record {
	d, err := domain.Validate(raw)
	if err != nil {
		return model.NewErrorRecord(raw, elapsedMs(start), err.Error())
	}

	domains, err := p.fetchFederation(ctx, d)
	if err != nil {
		return model.NewErrorRecord(d.String(), elapsedMs(start), err.Error())
	}

	federated := make([]string, len(domains))
	for i, fd := range domains {
		federated[i] = fd.String()
	}

	tenant, ok := deriveTenant(domains)
	if !ok {
		return model.Record{
			Domain:           d.String(),
			FederatedDomains: federated,
			ProcessingTimeMs: elapsedMs(start),
			Error:            model.StringPtr("tenant not found"),
		}
	}

	rec := model.Record{
		Domain:           d.String(),
		Tenant:           model.StringPtr(string(tenant)),
		FederatedDomains: federated,
		ProcessingTimeMs: elapsedMs(start),
	}

	host := string(tenant) + "sensorapi.atp.azure.com"
	exists, err := p.deps.DNS.Exists(ctx, host)
	rec.ProcessingTimeMs = elapsedMs(start)
	if err != nil {
		rec.Error = model.StringPtr(err.Error())
		return rec
	}
	if exists {
		rec.MdiInstance = model.StringPtr(host)
	}
	return rec
}

// fetchFederation issues the SOAP request, retrying transient failures per
// C6, and parses the federated-domain list from a successful response.
func (p *Prober) fetchFederation(ctx context.Context, d domain.Domain) ([]domain.Domain, error) {
	body := soap.BuildRequest(d)

	var result []domain.Domain
	err := retry.Do(ctx, p.deps.RetryConfig, p.deps.Clock, p.deps.RNG, classify, func(attempt int) error {
		if err := p.deps.Limiter.Acquire(ctx); err != nil {
			return err
		}
		resp, err := p.deps.HTTP.PostSOAP(ctx, p.deps.FederationURL, body)
		if err != nil {
			return err
		}
		domains, err := soap.ParseResponse(bytes.NewReader(resp))
		if err != nil {
			return err
		}
		result = domains
		return nil
	})
	return result, err
}

// deriveTenant scans domains for the first *.onmicrosoft.com entry and
// returns its leading label as the TenantName.
func deriveTenant(domains []domain.Domain) (model.TenantName, bool) {
	for _, d := range domains {
		s := strings.ToLower(d.String())
		if strings.HasSuffix(s, onmicrosoftSuffix) {
			label := strings.TrimSuffix(s, onmicrosoftSuffix)
			if label == "" {
				continue
			}
			return model.TenantName(label), true
		}
	}
	return "", false
}

// classify maps an attempt's error into a retry.Classification per §7: HTTP
// transport/status errors follow their own Retryable() verdict; SOAP parse
// failures and validation errors are never retried; anything else
// (including context cancellation) is treated as permanent so retry.Do
// surfaces it immediately rather than burning the attempt budget.
func classify(err error) retry.Classification {
	if err == nil {
		return retry.Success
	}
	var httpErr *httpclient.Error
	if asHTTPError(err, &httpErr) {
		if httpErr.Retryable() {
			return retry.Transient
		}
		return retry.Permanent
	}
	return retry.Permanent
}

func asHTTPError(err error, target **httpclient.Error) bool {
	if e, ok := err.(*httpclient.Error); ok {
		*target = e
		return true
	}
	return false
}

func elapsedMs(start time.Time) uint64 {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}
