package brandmatch

import (
	"strings"
	"sync"
)

// HeaderMode controls whether the first row of a corpus file is a header.
type HeaderMode string

const (
	// HeaderAuto drops the first row when its first cell is a known header name.
	HeaderAuto HeaderMode = "auto"
	// HeaderPresent always drops the first row.
	HeaderPresent HeaderMode = "present"
	// HeaderAbsent keeps every row.
	HeaderAbsent HeaderMode = "absent"
)

var (
	headerCandidatesMu sync.RWMutex
	activeHeaderNames  = defaultHeaderNames()
)

func defaultHeaderNames() []string {
	return []string{
		"marca", "marcas", "nombre", "nombreproducto", "nombre producto", "nombre_producto",
		"producto", "productos", "denominacion", "denominación", "signo",
		"brand", "brands", "name", "product", "productname", "product name", "term", "termino", "término",
	}
}

// DefaultHeaderNames returns the built-in header names recognised in auto mode.
func DefaultHeaderNames() []string {
	return cloneStrings(defaultHeaderNames())
}

// SetHeaderNames replaces the header names recognised in auto mode. A nil
// slice restores the defaults.
func SetHeaderNames(names []string) {
	headerCandidatesMu.Lock()
	defer headerCandidatesMu.Unlock()
	if names == nil {
		activeHeaderNames = defaultHeaderNames()
		return
	}
	activeHeaderNames = cloneStrings(names)
}

func getHeaderNames() []string {
	headerCandidatesMu.RLock()
	defer headerCandidatesMu.RUnlock()
	return cloneStrings(activeHeaderNames)
}

// looksLikeHeader reports whether cell matches a known header name.
func looksLikeHeader(cell string) bool {
	cell = strings.TrimSpace(cleanCell(cell))
	if cell == "" {
		return false
	}
	for _, name := range getHeaderNames() {
		if strings.EqualFold(cell, name) {
			return true
		}
	}
	return false
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
