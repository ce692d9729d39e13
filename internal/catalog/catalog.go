// Package catalog resolves issuer and channel codes to display names.
package catalog

import (
	"fmt"
	"sort"

	"svfe-monitor/internal/model"
)

var defaultChannels = map[model.Channel]string{
	model.ChannelATM:       "DAB",
	model.ChannelPOS:       "TPE",
	model.ChannelECommerce: "E-Commerce",
}

// Catalog holds static code-to-name tables. The zero value resolves nothing
// but channel names.
type Catalog struct {
	issuers  map[int]string
	channels map[model.Channel]string
}

// New builds a catalog from issuer names keyed by institution code.
func New(issuers map[int]string) *Catalog {
	c := &Catalog{
		issuers:  make(map[int]string, len(issuers)),
		channels: make(map[model.Channel]string, len(defaultChannels)),
	}
	for code, name := range issuers {
		c.issuers[code] = name
	}
	for ch, name := range defaultChannels {
		c.channels[ch] = name
	}
	return c
}

// Unknown is the fallback label for a code missing from the tables.
func Unknown(code int) string {
	return fmt.Sprintf("unknown code (%d)", code)
}

// IssuerName returns the name of an issuer, or the unknown-code fallback.
func (c *Catalog) IssuerName(code int) string {
	if c != nil {
		if name, ok := c.issuers[code]; ok {
			return name
		}
	}
	return Unknown(code)
}

// HasIssuer reports whether code has a configured name.
func (c *Catalog) HasIssuer(code int) bool {
	if c == nil {
		return false
	}
	_, ok := c.issuers[code]
	return ok
}

// ChannelName returns the label of a channel, or the unknown-code fallback.
func (c *Catalog) ChannelName(ch model.Channel) string {
	names := defaultChannels
	if c != nil && c.channels != nil {
		names = c.channels
	}
	if name, ok := names[ch]; ok {
		return name
	}
	return Unknown(int(ch))
}

// IssuerRates re-keys a per-issuer rate map by issuer name. Issuers sharing a
// name keep the higher rate.
func (c *Catalog) IssuerRates(rates map[int]float64) map[string]float64 {
	codes := make([]int, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	out := make(map[string]float64, len(rates))
	for _, code := range codes {
		name := c.IssuerName(code)
		if prev, ok := out[name]; !ok || rates[code] > prev {
			out[name] = rates[code]
		}
	}
	return out
}
