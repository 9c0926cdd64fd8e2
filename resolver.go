package dataloader

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// StaticResolver resolves hosts from a fixed override table. Hosts without an
// override are dispatched unmodified.
type StaticResolver struct {
	mu        sync.RWMutex
	overrides map[string]string
}

// NewStaticResolver creates a resolver with the given host → address
// overrides. The map is copied.
func NewStaticResolver(overrides map[string]string) *StaticResolver {
	r := &StaticResolver{overrides: make(map[string]string, len(overrides))}
	for host, address := range overrides {
		r.overrides[host] = address
	}
	return r
}

// SetOverride maps host to address for subsequent lookups.
func (r *StaticResolver) SetOverride(host, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[host] = address
}

// RemoveOverride drops the override for host.
func (r *StaticResolver) RemoveOverride(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, host)
}

// AddressFor implements Resolver.
func (r *StaticResolver) AddressFor(host string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overrides[host]
}

// DNSResolver resolves hosts through an explicit DNS upstream, caching
// answers for their advertised TTL. Lookup failures resolve to "" so the
// request proceeds against the original host.
type DNSResolver struct {
	upstream string
	client   *dns.Client

	mu    sync.Mutex
	cache map[string]dnsEntry
}

type dnsEntry struct {
	address   string
	expiresAt time.Time
}

// NewDNSResolver creates a resolver querying upstream, e.g. "10.0.0.2:53".
func NewDNSResolver(upstream string) *DNSResolver {
	return &DNSResolver{
		upstream: upstream,
		client:   new(dns.Client),
		cache:    make(map[string]dnsEntry),
	}
}

// AddressFor implements Resolver with an A-record lookup.
func (r *DNSResolver) AddressFor(host string) string {
	r.mu.Lock()
	entry, exists := r.cache[host]
	if exists && time.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.address
	}
	if exists {
		delete(r.cache, host)
	}
	r.mu.Unlock()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	in, _, err := r.client.Exchange(msg, r.upstream)
	if err != nil || in == nil {
		return ""
	}

	for _, answer := range in.Answer {
		a, ok := answer.(*dns.A)
		if !ok {
			continue
		}
		address := a.A.String()
		ttl := time.Duration(a.Hdr.Ttl) * time.Second
		if ttl <= 0 {
			ttl = time.Minute
		}

		r.mu.Lock()
		r.cache[host] = dnsEntry{address: address, expiresAt: time.Now().Add(ttl)}
		r.mu.Unlock()
		return address
	}
	return ""
}
