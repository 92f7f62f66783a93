package dnsclient

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// MdiCacheCapacity is the minimum positive-cache size required by §4.4.
const MdiCacheCapacity = 4096

// MdiQueryTimeout bounds a single existence check, per §4.4.
const MdiQueryTimeout = 2 * time.Second

// negativeFloor and positiveCeiling bound the TTL sentri honors for
// negative and positive answers respectively, so a misconfigured upstream
// can neither thrash the cache nor pin a stale answer indefinitely.
const (
	negativeFloor   = 30 * time.Second
	positiveCeiling = time.Hour
)

// DNSError reports a resolver-level failure (SERVFAIL, timeout after
// retry, or other resolver error) distinct from a definitive NXDOMAIN.
type DNSError struct {
	Host string
	Err  error
}

func (e *DNSError) Error() string {
	return "dns lookup failed for " + e.Host + ": " + e.Err.Error()
}

func (e *DNSError) Unwrap() error { return e.Err }

type mdiCacheEntry struct {
	exists    bool
	expiresAt time.Time
}

// Resolver is the MDI DNS existence probe (C4): a caching wrapper around
// Client that answers "does an A/AAAA record exist for this hostname".
type Resolver struct {
	client  *Client
	servers []string
	logger  *zap.Logger

	mu       sync.Mutex
	entries  map[string]mdiCacheEntry
	capacity int
	rng      *rand.Rand
}

// NewResolver builds a Resolver querying servers in order (first response
// wins) through client, with a positive/negative cache of at least
// MdiCacheCapacity entries.
func NewResolver(client *Client, servers []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client:   client,
		servers:  servers,
		logger:   logger,
		entries:  make(map[string]mdiCacheEntry),
		capacity: MdiCacheCapacity,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Exists reports whether host has at least one A or AAAA record.
// NXDOMAIN yields (false, nil); resolver failures yield (false, *DNSError).
func (r *Resolver) Exists(ctx context.Context, host string) (bool, error) {
	if cached, ok := r.lookupCache(host); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, MdiQueryTimeout)
	defer cancel()

	exists, ttl, err := r.queryExists(ctx, host)
	if err != nil {
		return false, err
	}

	r.storeCache(host, exists, ttl)
	return exists, nil
}

func (r *Resolver) queryExists(ctx context.Context, host string) (bool, time.Duration, error) {
	aExists, aTTL, aNX, err := r.queryType(ctx, host, dns.TypeA)
	if err != nil {
		return false, 0, &DNSError{Host: host, Err: err}
	}
	if aExists {
		return true, aTTL, nil
	}
	if !aNX {
		// A returned NOERROR/no-data without being an authoritative
		// NXDOMAIN; still worth checking AAAA before concluding absence.
	}

	aaaaExists, aaaaTTL, _, err := r.queryType(ctx, host, dns.TypeAAAA)
	if err != nil {
		return false, 0, &DNSError{Host: host, Err: err}
	}
	if aaaaExists {
		return true, aaaaTTL, nil
	}

	return false, negativeFloor, nil
}

// queryType returns (exists, ttl, isNXDOMAIN, error) for a single record type.
func (r *Resolver) queryType(ctx context.Context, host string, qtype uint16) (bool, time.Duration, bool, error) {
	msg := r.client.BuildQuery(host, qtype)

	var lastErr error
	for _, server := range r.servers {
		resp, _, _, err := r.client.Exchange(ctx, server, msg)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode == dns.RcodeNameError {
			return false, 0, true, nil
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = resolverError("server returned " + dns.RcodeToString[resp.Rcode])
			continue
		}
		ttl := positiveCeiling
		for _, rr := range resp.Answer {
			if rr.Header().Rrtype != qtype {
				continue
			}
			if d := time.Duration(rr.Header().Ttl) * time.Second; d < ttl {
				ttl = d
			}
			return true, ttl, false, nil
		}
		return false, 0, false, nil
	}
	if lastErr == nil {
		lastErr = errNoResolvers
	}
	return false, 0, false, lastErr
}

func (r *Resolver) lookupCache(host string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[host]
	if !ok || time.Now().After(e.expiresAt) {
		return false, false
	}
	return e.exists, true
}

func (r *Resolver) storeCache(host string, exists bool, ttl time.Duration) {
	if ttl < negativeFloor {
		ttl = negativeFloor
	}
	if ttl > positiveCeiling {
		ttl = positiveCeiling
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.capacity {
		r.evictRandomLocked()
	}
	r.entries[host] = mdiCacheEntry{exists: exists, expiresAt: time.Now().Add(ttl)}
}

func (r *Resolver) evictRandomLocked() {
	victim := r.rng.Intn(len(r.entries))
	i := 0
	for k := range r.entries {
		if i == victim {
			delete(r.entries, k)
			return
		}
		i++
	}
}

type resolverError string

func (e resolverError) Error() string { return string(e) }

const errNoResolvers = resolverError("no resolvers configured")
