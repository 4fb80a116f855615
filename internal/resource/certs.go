package resource

import (
	"sort"
	"sync"
)

// CertStore tracks certificates waiting for execution and the effects of
// the ones that executed.
type CertStore struct {
	mu      sync.Mutex
	pending map[string]bool
	effects map[string]bool
	seen    map[string]bool
}

// NewCertStore returns an empty store.
func NewCertStore() *CertStore {
	return &CertStore{pending: make(map[string]bool), effects: make(map[string]bool), seen: make(map[string]bool)}
}

// MarkPending records that cert was downloaded and awaits execution.
func (s *CertStore) MarkPending(cert string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[cert] = true
	s.seen[cert] = true
}

// TakePending removes cert from the pending set and reports whether it
// was there.
func (s *CertStore) TakePending(cert string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.pending[cert]
	delete(s.pending, cert)
	return ok
}

// IsPending reports whether cert is still waiting for execution.
func (s *CertStore) IsPending(cert string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[cert]
}

// StoreEffect records the effect of executing cert.
func (s *CertStore) StoreEffect(cert string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects[cert] = true
	delete(s.pending, cert)
}

// HasEffect reports whether cert's effect is stored.
func (s *CertStore) HasEffect(cert string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effects[cert]
}

// Missing returns every certificate ever marked pending that has no stored
// effect, sorted.
func (s *CertStore) Missing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for c := range s.seen {
		if !s.effects[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// CertFinisher decides, after a download, whether the downloader still has
// to execute a certificate itself.
type CertFinisher interface {
	// NeedsExecution reports whether cert has not been handled elsewhere.
	NeedsExecution(s *CertStore, cert string) bool
}

// PendingFinisher treats a certificate that left the pending set as
// executed. Whoever removed it may have failed before storing the effect.
type PendingFinisher struct{}

func (PendingFinisher) NeedsExecution(s *CertStore, cert string) bool {
	return s.IsPending(cert)
}

// EffectFinisher only trusts a stored effect.
type EffectFinisher struct{}

func (EffectFinisher) NeedsExecution(s *CertStore, cert string) bool {
	return !s.HasEffect(cert)
}
