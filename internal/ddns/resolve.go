package ddns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/CZERTAINLY/ddns/internal/model"
	"github.com/CZERTAINLY/ddns/internal/parallel"
)

var ErrNoIPSources = errors.New("no ip sources configured")

const maxIPBodySize = 64 << 10

// Resolver finds the public IPv4 address of the host by asking the
// configured sources. At most limit sources are asked at once, the first
// valid answer wins and the pending requests are canceled.
type Resolver struct {
	sources []model.IPSource
	limit   int
	client  *http.Client
}

func NewResolver(sources []model.IPSource, limit int, opts ...Option) *Resolver {
	o := newOptions(opts)
	return &Resolver{
		sources: slices.Clone(sources),
		limit:   max(limit, 1),
		client:  o.httpClient,
	}
}

// Resolve returns the first address resolved, or the last error seen when
// every source failed. A done ctx wins over the errors of the sources.
func (r *Resolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(r.sources) == 0 {
		return netip.Addr{}, ErrNoIPSources
	}
	addr, ok, err := parallel.First(ctx, r.limit, slices.Values(r.sources), r.fetch)
	switch {
	case ok && err == nil:
		return addr, nil
	case ctx.Err() != nil:
		return netip.Addr{}, ctx.Err()
	case err == nil:
		return netip.Addr{}, errors.New("no ip source answered")
	}
	return netip.Addr{}, err
}

func (r *Resolver) fetch(ctx context.Context, src model.IPSource) (netip.Addr, error) {
	u, err := model.ParseURL(src.URL)
	if err != nil {
		return netip.Addr{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return netip.Addr{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxIPBodySize))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: reading body: %w", u.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("%s: status code: %d", u.Host, resp.StatusCode)
	}

	var value string
	switch src.Format {
	case model.IPFormatJSON:
		value, err = jsonField(raw, src.Field)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%s: %w", u.Host, err)
		}
	default:
		value = string(raw)
	}
	return parseIPv4(strings.TrimSpace(value))
}

func jsonField(raw []byte, field string) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decoding json response failed: %w", err)
	}
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("field %q not found", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, expected string", field, v)
	}
	return s, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", addr)
	}
	return addr, nil
}
