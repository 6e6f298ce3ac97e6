package features

import (
	"sort"

	"github.com/dvloznov/ledger-anomaly/internal/ledger"
)

type accountSet map[string]struct{}

// Graph is the directed payment graph over every account in the ledger.
// It is built once and read-only afterwards, so queries are safe to run concurrently.
type Graph struct {
	sent map[string]accountSet // account -> counterparties it paid
	recv map[string]accountSet // account -> counterparties that paid it
}

// BuildGraph builds the sender and receiver adjacency over the full transaction set,
// regardless of account type.
func BuildGraph(txs []ledger.Transaction) *Graph {
	g := &Graph{
		sent: make(map[string]accountSet),
		recv: make(map[string]accountSet),
	}
	for _, tx := range txs {
		add(g.sent, tx.NameOrig, tx.NameDest)
		add(g.recv, tx.NameDest, tx.NameOrig)
	}
	return g
}

func add(m map[string]accountSet, key, member string) {
	s, ok := m[key]
	if !ok {
		s = make(accountSet)
		m[key] = s
	}
	s[member] = struct{}{}
}

// RoundTrip reports whether some counterparty both received money from and sent
// money to account.
func (g *Graph) RoundTrip(account string) bool {
	sent, recv := g.sent[account], g.recv[account]
	if len(sent) == 0 || len(recv) == 0 {
		return false
	}
	small, large := sent, recv
	if len(large) < len(small) {
		small, large = large, small
	}
	for cp := range small {
		if _, ok := large[cp]; ok {
			return true
		}
	}
	return false
}

// Accounts returns every account that sent or received, sorted.
func (g *Graph) Accounts() []string {
	seen := make(map[string]struct{}, len(g.sent)+len(g.recv))
	for a := range g.sent {
		seen[a] = struct{}{}
	}
	for a := range g.recv {
		seen[a] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// RoundTripFlags evaluates RoundTrip for every account in the graph.
func (g *Graph) RoundTripFlags() map[string]bool {
	accounts := g.Accounts()
	flags := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		flags[a] = g.RoundTrip(a)
	}
	return flags
}
