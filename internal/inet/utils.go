package inet

import (
	"net/netip"
	"strings"
)

func addrStrings(addrs []netip.Addr) []string {

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

/*
* Quote s as a Lua single-quoted string literal.
 */
func luaQuote(s string) string {

	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

func luaTable(items []string) string {

	quoted := make([]string, 0, len(items))
	for _, i := range items {
		quoted = append(quoted, luaQuote(i))
	}
	return "{" + strings.Join(quoted, ", ") + "}"
}

// Whitespace-separated value lists compare equal regardless of spacing.
func sameFields(a string, b []string) bool {

	fa := strings.Fields(a)
	if len(fa) != len(b) {
		return false
	}
	for i := range fa {
		if fa[i] != b[i] {
			return false
		}
	}
	return true
}
