package manager

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies one revision of a class. Compilation hashes the source the
// model was built from; Counter changes when a rerun is forced.
type Fingerprint struct {
	Compilation uint64 `json:"compilation"`
	Counter     uint64 `json:"counter"`
}

// String returns the fingerprint as "compilation:counter"
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x:%d", f.Compilation, f.Counter)
}

// HashSource returns the compilation hash of source text
func HashSource(source string) uint64 {
	return xxhash.Sum64String(source)
}
