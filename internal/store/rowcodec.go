package store

import "strings"

// columnSep joins/splits a row's parallel keys/values columns. Newline is
// safe here: configuration-store keys and values are short identifiers
// and hex/decimal literals, never multi-line text (mirrors the schema's
// fixed-width column assumption).
const columnSep = "\n"

func joinColumn(vals []string) string {
	return strings.Join(vals, columnSep)
}

func splitColumn(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, columnSep)
}
