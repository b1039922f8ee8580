package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

// Applier activates a configuration on the host.
type Applier interface {
	Apply(ctx context.Context, cfg *model.EffectiveConfig) error
}

// LinkClassifier reports connection ids that name virtual links.
type LinkClassifier interface {
	IsVirtual(name string) bool
}

type Options struct {
	ExcludeNames []string       // substring match on connection id
	Links        LinkClassifier // may be nil
	ReverseZones bool
}

/*
* Reconciler owns the producer table and the configuration derived from it.
* One mutex covers validate, fold, recompute and apply; nothing under it
* waits on a client socket.
 */
type Reconciler struct {
	mutex     sync.Mutex
	producers map[string]*Producer
	current   *model.EffectiveConfig
	seq       uint64

	applier Applier
	opts    Options
	state   atomic.Int32
}

func NewReconciler(applier Applier, opts Options) *Reconciler {

	r := Reconciler{
		producers: map[string]*Producer{},
		current:   model.NewEffectiveConfig(),
		applier:   applier,
		opts:      opts,
	}
	return &r
}

/*
* Replace producerID's connections with batch and apply the result.  On any
* error the table, the current configuration and the host are as before.
 */
func (r *Reconciler) Submit(
	ctx context.Context,
	producerID string,
	batch []model.ConnectionSnapshot) (*model.EffectiveConfig, error) {

	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.setState(Idle)

	r.setState(Validating)
	conns, err := model.ValidateBatch(batch)
	if err != nil {
		return nil, r.reject(producerID, err)
	}
	conns = r.exclude(conns)

	r.setState(Reconciling)
	r.seq++
	table := r.candidate(NewProducer(producerID, r.seq, conns))
	res := resolve(table, r.opts.ReverseZones)
	logClaims(res, len(table))

	if err := ctx.Err(); err != nil {
		return nil, r.reject(producerID, dnserr.New(dnserr.KindCanceled, err))
	}

	r.setState(Applying)
	if err := r.applier.Apply(ctx, res.Config); err != nil {
		if dnserr.KindOf(err) == dnserr.KindUnknown {
			err = dnserr.New(dnserr.KindApplyIo, err)
		}
		return nil, r.reject(producerID, err)
	}

	r.commit(table)
	r.current = res.Config

	slog.Info("configuration applied", "producer", producerID,
		"connections", len(conns),
		"default", res.Config.DefaultConnection,
		"routes", len(res.Config.DomainRoutes))
	return res.Config.Clone(), nil
}

// Current returns a copy of the last applied configuration.
func (r *Reconciler) Current() *model.EffectiveConfig {

	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.current.Clone()
}

// Producers returns the known producer ids, oldest submission first.
func (r *Reconciler) Producers() []string {

	r.mutex.Lock()
	defer r.mutex.Unlock()

	ids := []string{}
	for _, p := range ordered(r.producers) {
		ids = append(ids, p.ID)
	}
	return ids
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

func (r *Reconciler) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		slog.Debug("state", "from", prev, "to", s)
	}
}

func (r *Reconciler) reject(producerID string, err error) error {
	slog.Error("submission rejected", "producer", producerID,
		"kind", dnserr.KindOf(err), "error", err)
	return err
}

/*
* Drop connections matching an exclusion pattern or naming a virtual link
* before they can claim the default route.
 */
func (r *Reconciler) exclude(conns []model.Connection) []model.Connection {

	kept := conns[:0]
	for _, c := range conns {
		if r.isExcluded(c.ID) {
			slog.Debug("excluding connection", "id", c.ID, "type", c.Medium)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (r *Reconciler) isExcluded(id string) bool {

	for _, pattern := range r.opts.ExcludeNames {
		if strings.Contains(id, pattern) {
			return true
		}
	}
	return r.opts.Links != nil && r.opts.Links.IsVirtual(id)
}

/*
* The table as it would be with p folded in, ordered by submission.  The
* live table is left alone until commit.
 */
func (r *Reconciler) candidate(p *Producer) []*Producer {

	next := make(map[string]*Producer, len(r.producers)+1)
	for id, e := range r.producers {
		next[id] = e
	}
	if len(p.Connections) == 0 {
		delete(next, p.ID)
	} else {
		next[p.ID] = p
	}
	return ordered(next)
}

func (r *Reconciler) commit(table []*Producer) {

	r.producers = make(map[string]*Producer, len(table))
	for _, p := range table {
		r.producers[p.ID] = p
	}
}

func ordered(m map[string]*Producer) []*Producer {

	out := make([]*Producer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Producer) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}

func logClaims(res *resolution, producers int) {

	switch {
	case len(res.Claimers) > 1:
		slog.Warn("default connection tie, most recent wins",
			"claimers", res.Claimers, "winner", res.Config.DefaultConnection)
	case res.Fallback:
		slog.Warn("no connection claims the default route, most recent wins",
			"winner", res.Config.DefaultConnection)
	case len(res.Claimers) == 0 && producers > 0:
		slog.Warn("no connection claims the default route and none has nameservers")
	}
}
