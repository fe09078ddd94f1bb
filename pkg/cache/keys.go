package cache

import "strings"

// Key namespaces.
const (
	NamespaceBars   = "bars"
	NamespaceIngest = "ingest"
)

// GenerateKey joins a namespace and its parts with ':', skipping empty parts.
func GenerateKey(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
