package directory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
)

// DefaultDNSServer is the local stub resolver.
const DefaultDNSServer = "127.0.0.53:53"

// ErrDNSNotAuthenticated is returned when the resolver did not validate the
// answer with DNSSEC.
var ErrDNSNotAuthenticated = errors.New("DNS answer not authenticated by DNSSEC")

// DNSKeyLookup resolves named principals' public keys from TXT records.
// A key for principal id of kind k lives at "<id>._<k>key.<zone>" as the
// base64 PKIX DER encoding, possibly split over several strings.
//
// Queries set the DNSSEC OK bit. Unless insecure is set, answers without the
// AD bit from a validating resolver are rejected. The path to that resolver
// must itself be trusted, typically a local stub.
type DNSKeyLookup struct {
	zone     string
	server   string
	insecure bool
	client   *dns.Client
	log      *slog.Logger
}

// NewDNSKeyLookup creates a lookup querying server for records under zone.
// With insecure set, unauthenticated answers are accepted.
func NewDNSKeyLookup(log *slog.Logger, zone, server string, timeout time.Duration, insecure bool) (*DNSKeyLookup, error) {
	zone = strings.Trim(strings.TrimSpace(zone), ".")
	if zone == "" {
		return nil, fmt.Errorf("empty DNS zone")
	}
	if server == "" {
		server = DefaultDNSServer
	}

	if insecure {
		log.Warn("DNS key lookups accept answers not validated by DNSSEC", slog.String("zone", zone))
	}

	return &DNSKeyLookup{
		zone:     zone,
		server:   server,
		insecure: insecure,
		client:   &dns.Client{Net: "udp", Timeout: timeout},
		log:      log,
	}, nil
}

// RecordName returns the TXT record name holding the principal's key.
func (l *DNSKeyLookup) RecordName(kind interfaces.PrincipalKind, id string) string {
	return dns.Fqdn(fmt.Sprintf("%s._%skey.%s", id, kind, l.zone))
}

// LookupPublicKey implements interfaces.PublicKeyLookup.
func (l *DNSKeyLookup) LookupPublicKey(ctx context.Context, kind interfaces.PrincipalKind, id string) (cryptoutils.PublicKey, error) {
	if err := kind.Validate(); err != nil {
		return cryptoutils.PublicKey{}, err
	}

	name := l.RecordName(kind, id)
	if _, ok := dns.IsDomainName(name); !ok {
		return cryptoutils.PublicKey{}, fmt.Errorf("invalid principal name %q", id)
	}

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeTXT)
	m.RecursionDesired = true
	m.AuthenticatedData = true
	m.SetEdns0(4096, true)

	in, _, err := l.client.ExchangeContext(ctx, m, l.server)
	if err != nil {
		return cryptoutils.PublicKey{}, fmt.Errorf("TXT query for %s failed: %w", name, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: %s", interfaces.ErrPrincipalNotFound, name)
	default:
		return cryptoutils.PublicKey{}, fmt.Errorf("TXT query for %s failed: %s", name, dns.RcodeToString[in.Rcode])
	}

	if !in.AuthenticatedData && !l.insecure {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: %s", ErrDNSNotAuthenticated, name)
	}

	for _, answer := range in.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}

		der, err := base64.StdEncoding.DecodeString(strings.Join(txt.Txt, ""))
		if err != nil {
			l.log.Warn("ignoring malformed key record", slog.String("name", name), "err", err)
			continue
		}

		key, err := cryptoutils.ParsePublicKeyDER(der)
		if err != nil {
			l.log.Warn("ignoring malformed key record", slog.String("name", name), "err", err)
			continue
		}
		return key, nil
	}

	return cryptoutils.PublicKey{}, fmt.Errorf("%w: no key record at %s", interfaces.ErrPrincipalNotFound, name)
}
