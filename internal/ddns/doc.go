// Package ddns keeps a single Cloudflare DNS A record pointed at the public
// IPv4 address of the host.
//
// An update runs two requests concurrently: the current record is fetched
// from the Cloudflare v4 API while the public address is resolved from the
// configured IP sources, first answer wins. The record is patched only when
// the addresses differ.
package ddns
