package util

import (
	"strings"
	"unicode"
)

// Separator joins a name and its tenant discriminator.
const Separator = "_"

// GroupAddress suffixes group with the network discriminator when the host
// runs multi-tenant. Every tenant of one network shares the group record.
func GroupAddress(group, network string, multi bool) string {
	if multi && network != "" {
		return group + Separator + network
	}
	return group
}

// PhysicalAddress suffixes key with the tenant discriminator for per-tenant
// entries on a multi-tenant host.
func PhysicalAddress(key, tenant string, multi, perTenant bool) string {
	if multi && perTenant && tenant != "" {
		return key + Separator + tenant
	}
	return key
}

var nsEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`)

// StorageKey flattens a namespaced key for stores with a single keyspace:
// [prefix:]ns:key. '\' and ':' inside ns are backslash-escaped, so the first
// unescaped ':' after the prefix always ends the namespace and distinct
// (ns, key) pairs never share a storage key.
//
//	("a", "b:a:b") -> "a:b:a:b"
//	("a:b", "a:b") -> "a\:b:a:b"
func StorageKey(prefix, ns, key string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(ns) + len(key) + 4)
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(':')
	}
	if strings.ContainsAny(ns, `\:`) {
		b.WriteString(nsEscaper.Replace(ns))
	} else {
		b.WriteString(ns)
	}
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// SanitizeGroup turns a display name into a group slug: lower case letters,
// digits, '_' and single '-' separators.
//
//	"My Shop Plugin!" -> "my-shop-plugin"
func SanitizeGroup(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
