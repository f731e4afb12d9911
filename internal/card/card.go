// Package card models the knowledge cards attached to assistant answers.
package card

import (
	"net"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// Card is a short excerpt returned by the answering service alongside an answer.
type Card struct {
	Summary string `json:"summary"`
	Source  string `json:"source"`
	ID      string `json:"id,omitempty"`
}

// Identity is the structural key of a card. Two cards are the same card
// iff both Summary and Source are equal; ID takes no part in it.
//
// Identity is comparable and can be used directly as a map key, so no
// separator-based string key (and no separator collision) is involved.
type Identity struct {
	Summary string
	Source  string
}

// IdentityOf returns the identity of c.
func IdentityOf(c Card) Identity {
	return Identity{Summary: c.Summary, Source: c.Source}
}

// Identity returns the identity of c.
func (c Card) Identity() Identity {
	return IdentityOf(c)
}

// SameAs reports whether c and other are the same card.
func (c Card) SameAs(other Card) bool {
	return IdentityOf(c) == IdentityOf(other)
}

// String renders the identity for logs. Not used for comparisons.
func (id Identity) String() string {
	return id.Summary + " ␟ " + id.Source
}

// Dedup returns cards with later duplicates removed, preserving order.
func Dedup(cards []Card) []Card {
	if len(cards) == 0 {
		return cards
	}
	seen := make(map[Identity]struct{}, len(cards))
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		id := IdentityOf(c)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Site returns a short label for a card source: the registrable domain
// (eTLD+1) of the URL host, the bare host when no such domain exists
// (localhost, IP addresses), or "" when source has no host.
func Site(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}
