package netguard

import (
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"credgate/internal/support"
)

// AllowedCIDRsEnv extends the baseline allow-list with additional
// comma-separated CIDR ranges, e.g. "10.0.0.0/8,172.20.0.0/16".
const AllowedCIDRsEnv = "ALLOWED_INTERNAL_CIDRS"

// baselineCIDRs covers the private ranges common to container and overlay
// deployments: loopback, RFC1918, CGNAT.
var baselineCIDRs = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
}

// Provider supplies the raw extension list. Injected so tests can feed
// synthetic input instead of the process environment.
type Provider func() string

func EnvExtension() string {
	return support.GetEnv(AllowedCIDRsEnv, "")
}

type allowRange struct {
	prefix netip.Prefix
	text   string
}

type allowSet struct {
	ranges []allowRange
}

// Classifier decides whether a caller address belongs to the trusted
// internal network. The effective allow-set is built once and published
// through an atomic snapshot; rebuilds swap the whole snapshot, readers
// never see a partially constructed set.
type Classifier struct {
	provider Provider
	snapshot atomic.Value
}

func NewClassifier(provider Provider) *Classifier {
	if provider == nil {
		provider = EnvExtension
	}

	c := &Classifier{provider: provider}
	c.rebuildFrom(provider())
	return c
}

// Rebuild re-reads the extension provider and swaps in a fresh allow-set.
func (c *Classifier) Rebuild() {
	c.rebuildFrom(c.provider())
}

// UpdateExtension replaces the extension list with the given raw value and
// rebuilds the allow-set. Used by the redis reload subscription.
func (c *Classifier) UpdateExtension(raw string) {
	c.rebuildFrom(raw)
}

func (c *Classifier) rebuildFrom(extra string) {
	entries := append([]string(nil), baselineCIDRs...)
	for _, entry := range strings.Split(extra, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}

	set := &allowSet{ranges: make([]allowRange, 0, len(entries))}
	for _, entry := range entries {
		prefix, err := parseRange(entry)
		if err != nil {
			log.Debug("Skipping invalid CIDR in allow-list", "cidr", entry, "error", err)
			continue
		}
		set.ranges = append(set.ranges, allowRange{prefix: prefix, text: entry})
	}

	c.snapshot.Store(set)
}

// parseRange accepts CIDR notation or a bare address, which is treated as a
// single-host range.
func parseRange(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// IsTrusted reports whether the caller address falls inside the allow-set.
// Missing or unparseable addresses are never trusted; this gate guards
// secret material, so every ambiguity fails closed.
func (c *Classifier) IsTrusted(callerAddress string) bool {
	if callerAddress == "" {
		return false
	}

	// Transport-layer alias, not a parseable IP. Compared before parsing,
	// and never resolved through DNS.
	if callerAddress == "localhost" {
		return true
	}

	addr, err := netip.ParseAddr(callerAddress)
	if err != nil {
		log.Warn("Internal check: could not parse caller address", "address", callerAddress)
		return false
	}
	addr = addr.Unmap()

	set := c.snapshot.Load().(*allowSet)
	for _, r := range set.ranges {
		if r.prefix.Contains(addr) {
			log.Info("Allowing internal request", "address", callerAddress, "range", r.text)
			return true
		}
	}

	return false
}
