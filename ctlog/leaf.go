package ctlog

import (
	"fmt"

	"github.com/moniteur/ctmon/decoder"
)

// EntryType is the TimestampedEntry entry_type field from RFC 6962 §3.4.
type EntryType uint16

const (
	X509Entry    EntryType = 0
	PrecertEntry EntryType = 1
)

func (t EntryType) String() string {
	switch t {
	case X509Entry:
		return "x509"
	case PrecertEntry:
		return "precert"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

const (
	v1LogVersion         = 0
	timestampedEntryLeaf = 0
	issuerKeyHashSize    = 32
)

// Leaf is a decoded MerkleTreeLeaf. For X509Entry leaves Cert holds the
// end-entity DER certificate; for PrecertEntry leaves IssuerKeyHash and TBS
// are set instead and the full pre-certificate lives in the entry's
// extra_data (see ParsePrecertChain).
type Leaf struct {
	Version       uint8
	LeafType      uint8
	Timestamp     uint64 // milliseconds since the Unix epoch
	EntryType     EntryType
	Cert          []byte
	IssuerKeyHash []byte
	TBS           []byte
	Extensions    []byte
}

// ParseLeaf decodes the leaf_input of a log entry. All CT structures are
// big-endian with fixed-width length prefixes. Any reader error means the
// payload is malformed; the caller should drop that one entry.
func ParseLeaf(leafInput []byte) (*Leaf, error) {
	r := decoder.New(leafInput, decoder.BigEndian)
	leaf := &Leaf{}

	version, err := r.ReadUint(1)
	if err != nil {
		return nil, fmt.Errorf("leaf version: %w", err)
	}
	if version != v1LogVersion {
		return nil, fmt.Errorf("unsupported leaf version %d", version)
	}
	leaf.Version = uint8(version)

	leafType, err := r.ReadUint(1)
	if err != nil {
		return nil, fmt.Errorf("leaf type: %w", err)
	}
	if leafType != timestampedEntryLeaf {
		return nil, fmt.Errorf("unsupported leaf type %d", leafType)
	}
	leaf.LeafType = uint8(leafType)

	if leaf.Timestamp, err = r.ReadUint(8); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	entryType, err := r.ReadUint(2)
	if err != nil {
		return nil, fmt.Errorf("entry type: %w", err)
	}
	leaf.EntryType = EntryType(entryType)

	switch leaf.EntryType {
	case X509Entry:
		if leaf.Cert, err = readOpaque24(r); err != nil {
			return nil, fmt.Errorf("certificate: %w", err)
		}
	case PrecertEntry:
		if leaf.IssuerKeyHash, err = r.ReadBytes(issuerKeyHashSize); err != nil {
			return nil, fmt.Errorf("issuer key hash: %w", err)
		}
		if leaf.TBS, err = readOpaque24(r); err != nil {
			return nil, fmt.Errorf("tbs certificate: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown entry type %d", entryType)
	}

	extLen, err := r.ReadUint(2)
	if err != nil {
		return nil, fmt.Errorf("extensions length: %w", err)
	}
	if extLen > 0 {
		if leaf.Extensions, err = r.ReadBytes(int(extLen)); err != nil {
			return nil, fmt.Errorf("extensions: %w", err)
		}
	}
	return leaf, nil
}

// ParsePrecertChain extracts the pre-certificate DER from a PrecertEntry's
// extra_data (RFC 6962 §3.1, PrecertChainEntry). The trailing issuance chain
// is left unparsed.
func ParsePrecertChain(extraData []byte) ([]byte, error) {
	r := decoder.New(extraData, decoder.BigEndian)
	cert, err := readOpaque24(r)
	if err != nil {
		return nil, fmt.Errorf("pre-certificate: %w", err)
	}
	return cert, nil
}

// readOpaque24 reads a 24-bit length prefix followed by that many bytes, the
// opaque<1..2^24-1> encoding used throughout RFC 6962.
func readOpaque24(r *decoder.Reader) ([]byte, error) {
	n, err := r.ReadUint(3)
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}
