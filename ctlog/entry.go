package ctlog

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// Entry is a fully decoded log entry ready for the output callback.
type Entry struct {
	Index     uint64   `json:"index"`
	Timestamp uint64   `json:"timestamp"` // milliseconds since the Unix epoch
	Type      string   `json:"type"`
	Domains   []string `json:"domains"`
	Subject   string   `json:"subject,omitempty"`
	Issuer    string   `json:"issuer,omitempty"`
	NotBefore string   `json:"not_before,omitempty"`
	NotAfter  string   `json:"not_after,omitempty"`
	Source    Log      `json:"source"`

	Certificate *x509.Certificate `json:"-"`
}

// Time returns the entry's log timestamp.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(int64(e.Timestamp))
}

// DecodeEntry turns one raw get-entries record into an Entry. The DER parsed
// is the end-entity certificate for x509 entries and the pre-certificate
// from extra_data for precert entries.
func DecodeEntry(source Log, index uint64, raw RawEntry) (*Entry, error) {
	leaf, err := ParseLeaf(raw.LeafInput)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", index, err)
	}

	der := leaf.Cert
	if leaf.EntryType == PrecertEntry {
		if der, err = ParsePrecertChain(raw.ExtraData); err != nil {
			return nil, fmt.Errorf("entry %d: %w", index, err)
		}
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("entry %d: parsing certificate: %w", index, err)
	}

	return &Entry{
		Index:       index,
		Timestamp:   leaf.Timestamp,
		Type:        leaf.EntryType.String(),
		Domains:     certDomains(cert),
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		NotBefore:   cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:    cert.NotAfter.UTC().Format(time.RFC3339),
		Source:      source,
		Certificate: cert,
	}, nil
}

// certDomains collects the subject common name and SAN DNS names, in that
// order, without duplicates.
func certDomains(cert *x509.Certificate) []string {
	seen := make(map[string]struct{}, len(cert.DNSNames)+1)
	domains := make([]string, 0, len(cert.DNSNames)+1)

	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		domains = append(domains, name)
	}

	if cn := cert.Subject.CommonName; strings.Contains(cn, ".") {
		add(cn)
	}
	for _, name := range cert.DNSNames {
		add(name)
	}
	return domains
}
