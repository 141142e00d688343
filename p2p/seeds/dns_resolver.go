package seeds

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// dnsResolver issues raw TXT queries against a configured set of DNS
// servers using miekg/dns rather than the standard library's resolver,
// letting callers pin specific nameservers and inspect the full response
// (e.g. truncation, rcode) instead of trusting the OS stub resolver.
type dnsResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver builds a Resolver that queries servers (host:port form,
// e.g. "1.1.1.1:53") directly over UDP with TCP fallback on truncation.
func NewDNSResolver(servers ...string) Resolver {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53"}
	}
	return &dnsResolver{client: new(dns.Client), servers: servers}
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Truncated {
			tcpClient := &dns.Client{Net: "tcp"}
			resp, _, err = tcpClient.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = err
				continue
			}
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("seeds: dns %s rcode %s", name, dns.RcodeToString[resp.Rcode])
			continue
		}
		return extractTXT(resp), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("seeds: dns lookup %s: %w", name, lastErr)
	}
	return nil, nil
}

func extractTXT(resp *dns.Msg) []string {
	var out []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			for _, chunk := range txt.Txt {
				out = append(out, chunk)
			}
		}
	}
	return out
}
