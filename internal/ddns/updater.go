package ddns

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/CZERTAINLY/ddns/internal/model"
	"golang.org/x/sync/errgroup"
)

// Result describes a finished update.
type Result struct {
	Record  Record
	IP      netip.Addr
	Changed bool
}

type Updater struct {
	client   *Client
	resolver *Resolver
	zoneID   string
	name     string
	proxied  bool
}

func NewUpdater(cfg *model.Config, opts ...Option) (*Updater, error) {
	baseURL, err := cfg.Record.BaseURL()
	if err != nil {
		return nil, fmt.Errorf("record.api_url: %w", err)
	}
	return &Updater{
		client:   NewClient(baseURL, cfg.Record.APIToken(), opts...),
		resolver: NewResolver(cfg.IPSources, cfg.ConcurrentResolve, opts...),
		zoneID:   cfg.Record.Zone(),
		name:     cfg.Record.Name,
		proxied:  cfg.Record.Proxied,
	}, nil
}

// Update fetches the record and the public address concurrently and patches
// the record when they differ.
func (u *Updater) Update(ctx context.Context) (Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := u.client.GetRecord(gctx, u.zoneID, u.name)
		if err != nil {
			return fmt.Errorf("getting record %s: %w", u.name, err)
		}
		res.Record = rec
		return nil
	})
	g.Go(func() error {
		ip, err := u.resolver.Resolve(gctx)
		if err != nil {
			return fmt.Errorf("resolving public ip: %w", err)
		}
		res.IP = ip
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if res.Record.IP == res.IP {
		slog.DebugContext(ctx, "ip didn't change, skipping record update", "ip", res.IP.String())
		return res, nil
	}

	if err := u.client.UpdateRecord(ctx, u.zoneID, res.Record.ID, u.name, res.IP, u.proxied); err != nil {
		return Result{}, fmt.Errorf("updating record %s: %w", u.name, err)
	}
	res.Changed = true
	slog.InfoContext(ctx, "record updated", "record", u.name, "old", res.Record.IP.String(), "new", res.IP.String())
	return res, nil
}
