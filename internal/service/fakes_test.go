package service_test

import (
	"context"
	"net/netip"
	"sync"

	"github.com/CZERTAINLY/ddns/internal/ddns"
)

type fakeUpdater struct {
	mx       sync.Mutex
	calls    int
	err      error
	onUpdate func(n int)
}

func (f *fakeUpdater) Update(context.Context) (ddns.Result, error) {
	f.mx.Lock()
	f.calls++
	n := f.calls
	f.mx.Unlock()
	if f.onUpdate != nil {
		f.onUpdate(n)
	}
	if f.err != nil {
		return ddns.Result{}, f.err
	}
	return ddns.Result{IP: netip.MustParseAddr("192.0.2.1")}, nil
}

func (f *fakeUpdater) Calls() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mx   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Error(_ context.Context, text string) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeNotifier) Messages() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.msgs...)
}

type offline struct{}

func (offline) Online(context.Context) bool { return false }
