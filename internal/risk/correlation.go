package risk

import "strings"

// CorrelationIndex maps instruments to named correlation groups so that
// aggregate exposure caps can be applied across related pairs. An instrument
// may belong to several groups; lookups are symmetric with respect to the
// "/" and "_" symbol separators.
type CorrelationIndex struct {
	groups map[string][]string
}

// DefaultGroups covers the majors the agent is expected to trade.
func DefaultGroups() map[string][]string {
	return map[string][]string{
		"EUR_BLOC": {"EUR_USD", "EUR_GBP", "EUR_JPY", "EUR_CHF"},
		"GBP_BLOC": {"GBP_USD", "EUR_GBP", "GBP_JPY"},
		"JPY_BLOC": {"USD_JPY", "EUR_JPY", "GBP_JPY"},
		"USD_MAJ":  {"EUR_USD", "GBP_USD", "USD_JPY", "USD_CHF", "AUD_USD"},
	}
}

// NewCorrelationIndex builds an index from group name to member instruments.
// Members are stored in normalized form.
func NewCorrelationIndex(groups map[string][]string) *CorrelationIndex {
	idx := &CorrelationIndex{groups: make(map[string][]string, len(groups))}
	for name, members := range groups {
		norm := make([]string, len(members))
		for i, m := range members {
			norm[i] = normalizeSymbol(m)
		}
		idx.groups[name] = norm
	}
	return idx
}

// GroupsFor returns the names of every group containing the instrument, in
// no particular order. Unknown instruments return nil.
func (ci *CorrelationIndex) GroupsFor(symbol string) []string {
	want := normalizeSymbol(symbol)
	var out []string
	for name, members := range ci.groups {
		for _, m := range members {
			if m == want {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Members returns the normalized instruments in a group, or nil if the group
// does not exist.
func (ci *CorrelationIndex) Members(group string) []string {
	return ci.groups[group]
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "/", "_"))
}
