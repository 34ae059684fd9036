package supervisor

// Guard reserves a service name in the registry until it is resolved with
// the Task running the service. A Guard must be either resolved or closed:
//
//	h, g := reg.Register("console")
//	defer g.Close()
//	g.Resolve(supervisor.Go(h, serve))
//
// Closing an unresolved Guard emits a Success report for the name, which
// NextEvent then treats as a protocol violation and panics on, since
// Shutdown could never have joined that service.
type Guard struct {
	reg   *Registry
	entry *entry
	rep   *reporter
}

func (g *Guard) Name() string {
	return g.rep.name
}

// Resolve binds the service task to the reserved slot. It panics when
// called twice, after Close, or with a nil task.
func (g *Guard) Resolve(t *Task) {
	if t == nil {
		panic(&ProtocolViolationError{Name: g.rep.name, Reason: "guard resolved with a nil task"})
	}
	g.reg.resolve(g, t)
}

// Close is idempotent and a no-op once the Guard was resolved.
func (g *Guard) Close() {
	g.reg.closeSlot(g)
}
