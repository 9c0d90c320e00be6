// Package monitor is the control loop: it polls the chain-data provider,
// detects new blocks since the persisted checkpoint and drives the
// competition engine and order manager for each block in strict order.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/pkg/errors"

	"inscription-contest/internal/chain"
	"inscription-contest/internal/engine"
	"inscription-contest/internal/ledger"
	"inscription-contest/internal/logger"
	"inscription-contest/internal/models"
)

// ChainProvider supplies the current confirmed height and per-block data.
type ChainProvider interface {
	TipHeight(ctx context.Context) (int64, error)
	BlockHash(ctx context.Context, height int64) (string, error)
	Block(ctx context.Context, hash string) (*chain.BlockStats, error)
}

// BlockProcessor is the competition engine as the monitor sees it.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, height int64, hash string, stats chain.BlockStats) (*engine.Decision, error)
	Status() (*engine.Status, error)
}

// OrderCreator turns a decision into an inscription order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, d *engine.Decision) (*models.InscriptionOrder, error)
}

// Status is the monitor's read-only snapshot.
type Status struct {
	Running             bool           `json:"running"`
	ObservedHeight      int64          `json:"observedHeight"`
	LastProcessedBlock  int64          `json:"lastProcessedBlock"`
	LastProcessedHash   string         `json:"lastProcessedHash"`
	BlocksBehind        int64          `json:"blocksBehind"`
	BlocksWithoutLaunch int64          `json:"blocksWithoutLaunch"`
	LastLaunchBlock     int64          `json:"lastLaunchBlock"`
	LastChecked         time.Time      `json:"lastChecked"`
	Engine              *engine.Status `json:"engine,omitempty"`
}

type Monitor struct {
	chain    ChainProvider
	engine   BlockProcessor
	orders   OrderCreator
	progress ledger.ProgressStore
	clock    clock.Clock
	log      *logger.Logger

	tick    ticker.Ticker
	trigger chan struct{}
	// updates receives a status snapshot after every poll; nil disables it.
	updates chan<- Status

	running     atomic.Bool
	inFlight    atomic.Bool
	observedTip atomic.Int64
}

func New(cp ChainProvider, eng BlockProcessor, orders OrderCreator, progress ledger.ProgressStore,
	tick ticker.Ticker, clk clock.Clock, updates chan<- Status, log *logger.Logger) *Monitor {

	return &Monitor{
		chain:    cp,
		engine:   eng,
		orders:   orders,
		progress: progress,
		clock:    clk,
		log:      log,
		tick:     tick,
		trigger:  make(chan struct{}, 1),
		updates:  updates,
	}
}

// Run drives the scheduled polling loop until the context is cancelled.
// Errors are handled at the loop boundary so one failing block never halts
// the process; the checkpoint turns failures into retries.
func (m *Monitor) Run(ctx context.Context) error {
	m.running.Store(true)
	defer m.running.Store(false)

	m.tick.Resume()
	defer m.tick.Stop()

	// Catch up immediately on startup instead of waiting a full interval.
	m.pollAndReport(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.tick.Ticks():
			m.pollAndReport(ctx)
		case <-m.trigger:
			m.pollAndReport(ctx)
		}
	}
}

func (m *Monitor) pollAndReport(ctx context.Context) {
	if err := m.PollOnce(ctx); err != nil && ctx.Err() == nil {
		m.log.Printf("monitor: poll: %v", err)
	}
	m.publishStatus()
}

// TriggerManually forces an immediate out-of-band poll. Safe to call
// concurrently with the scheduled poll: it either joins an in-flight poll
// or queues exactly one new one.
func (m *Monitor) TriggerManually() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// PollOnce fetches the current chain height and processes every height
// above the checkpoint in ascending order, one at a time. The checkpoint
// only advances after the engine call for a height returns, so a failed
// height is retried on the next poll and never skipped.
func (m *Monitor) PollOnce(ctx context.Context) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		// A poll is already running; the caller's intent is served by it.
		return nil
	}
	defer m.inFlight.Store(false)

	tip, err := m.chain.TipHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "tip height")
	}
	m.observedTip.Store(tip)

	cp, err := m.progress.LoadCheckpoint()
	if err != nil {
		return err
	}

	if cp.LastProcessedBlock >= tip {
		cp.LastChecked = m.clock.Now()
		return m.progress.SaveCheckpoint(cp)
	}

	for h := cp.LastProcessedBlock + 1; h <= tip; h++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.processHeight(ctx, cp, h); err != nil {
			return errors.Wrapf(err, "height %d", h)
		}
	}
	return nil
}

func (m *Monitor) processHeight(ctx context.Context, cp *models.ProgressCheckpoint, height int64) error {
	hash, err := m.chain.BlockHash(ctx, height)
	if err != nil {
		return errors.Wrap(err, "block hash")
	}
	stats, err := m.chain.Block(ctx, hash)
	if err != nil {
		return errors.Wrap(err, "block stats")
	}

	decision, err := m.engine.ProcessBlock(ctx, height, hash, *stats)
	if err != nil {
		return err
	}

	launched := false
	if decision != nil {
		// The block counts as processed either way: a failed launch puts
		// the proposal back into the contest, it does not replay the block.
		if _, err := m.orders.CreateOrder(ctx, decision); err != nil {
			m.log.Printf("monitor: order creation for %s at height %d failed: %v",
				decision.Proposal.Ticker, height, err)
		} else {
			launched = true
		}
	}

	cp.LastProcessedBlock = height
	cp.LastProcessedHash = hash
	if launched {
		cp.BlocksWithoutLaunch = 0
		cp.LastLaunchBlock = height
	} else {
		cp.BlocksWithoutLaunch++
	}
	cp.LastChecked = m.clock.Now()
	return m.progress.SaveCheckpoint(cp)
}

// Status returns the monitor snapshot including the engine summary.
func (m *Monitor) Status() (*Status, error) {
	cp, err := m.progress.LoadCheckpoint()
	if err != nil {
		return nil, err
	}
	st := &Status{
		Running:             m.running.Load(),
		ObservedHeight:      m.observedTip.Load(),
		LastProcessedBlock:  cp.LastProcessedBlock,
		LastProcessedHash:   cp.LastProcessedHash,
		BlocksWithoutLaunch: cp.BlocksWithoutLaunch,
		LastLaunchBlock:     cp.LastLaunchBlock,
		LastChecked:         cp.LastChecked,
	}
	if st.ObservedHeight > st.LastProcessedBlock {
		st.BlocksBehind = st.ObservedHeight - st.LastProcessedBlock
	}
	if es, err := m.engine.Status(); err == nil {
		st.Engine = es
	}
	return st, nil
}

func (m *Monitor) publishStatus() {
	if m.updates == nil {
		return
	}
	st, err := m.Status()
	if err != nil {
		return
	}
	select {
	case m.updates <- *st:
	default:
	}
}
