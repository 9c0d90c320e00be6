// Package inscriber turns a winning decision into an externally created,
// funded inscription order and tracks it to a terminal status.
package inscriber

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/pkg/errors"

	"inscription-contest/internal/engine"
	"inscription-contest/internal/ledger"
	"inscription-contest/internal/logger"
	"inscription-contest/internal/market"
	"inscription-contest/internal/models"
	"inscription-contest/internal/wallet"
)

// Marketplace is the external inscription order service.
type Marketplace interface {
	CreateOrder(ctx context.Context, req market.CreateOrderRequest) (*market.CreateOrderResult, error)
	OrderStatus(ctx context.Context, orderID string) (*market.OrderStatusResult, error)
}

// Wallet gates order creation on available funds.
type Wallet interface {
	Balance(ctx context.Context) (*wallet.Balance, error)
	Address(ctx context.Context) (string, error)
}

// Config carries the order manager's policy knobs.
type Config struct {
	FeeRate int64 // sat/vB
	Postage int64 // sats on the inscription output
	// FailureStatus is where an inscribing proposal goes when its order
	// fails: active (requeued) or rejected.
	FailureStatus models.ProposalStatus
}

// inscriptionURLBase is where a finished inscription can be viewed.
const inscriptionURLBase = "https://ordinals.com/inscription/"

type Manager struct {
	ledger ledger.Ledger
	market Marketplace
	wallet Wallet
	cfg    Config
	log    *logger.Logger

	tick     ticker.Ticker
	inFlight atomic.Bool
}

func New(l ledger.Ledger, mkt Marketplace, w Wallet, cfg Config, tick ticker.Ticker, log *logger.Logger) *Manager {
	if cfg.FailureStatus == "" {
		cfg.FailureStatus = models.StatusActive
	}
	return &Manager{
		ledger: l,
		market: mkt,
		wallet: w,
		cfg:    cfg,
		log:    log,
		tick:   tick,
	}
}

// CreateOrder requests a funded order for a winning proposal and persists
// the pending order row. It never marks the proposal inscribed; that only
// happens on confirmed reconciliation. A proposal that already has a
// non-terminal order is left untouched.
func (m *Manager) CreateOrder(ctx context.Context, d *engine.Decision) (*models.InscriptionOrder, error) {
	existing, err := m.ledger.OpenOrderForProposal(d.Proposal.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.log.Printf("inscriber: proposal %s already has open order %d, skipping",
			d.Proposal.Ticker, existing.ID)
		return existing, nil
	}

	order, err := m.placeOrder(ctx, d)
	if err != nil {
		// The proposal must not stay stuck in inscribing when no order
		// exists for it.
		if revertErr := m.failProposal(d.Proposal.ID); revertErr != nil {
			m.log.Printf("inscriber: revert proposal %d failed: %v", d.Proposal.ID, revertErr)
		}
		return nil, err
	}
	return order, nil
}

func (m *Manager) placeOrder(ctx context.Context, d *engine.Decision) (*models.InscriptionOrder, error) {
	receiver, err := m.wallet.Address(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "wallet address")
	}

	content := d.Proposal.Content
	if content == "" {
		content = fmt.Sprintf("%s\n%s\nvotes=%d block=%d", d.Proposal.Ticker, d.Proposal.Name, d.Proposal.TotalVotes, d.Height)
	}

	// Rough vbyte estimate: commit/reveal overhead plus witness-discounted
	// payload.
	estimate := btcutil.Amount(m.cfg.Postage + m.cfg.FeeRate*(200+int64(len(content))/4))
	bal, err := m.wallet.Balance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "wallet balance")
	}
	if bal.Confirmed < estimate {
		return nil, errors.Errorf("insufficient funds: have %s, need %s", bal.Confirmed, estimate)
	}

	req := market.CreateOrderRequest{
		ReceiveAddress: receiver,
		FeeRate:        m.cfg.FeeRate,
		OutputValue:    m.cfg.Postage,
	}
	req.AddFile(d.Proposal.Ticker+".txt", content)

	res, err := m.market.CreateOrder(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "create order for %s", d.Proposal.Ticker)
	}

	order := &models.InscriptionOrder{
		ProposalID:     d.Proposal.ID,
		BlockHeight:    d.Height,
		BlockHash:      d.Hash,
		ExternalID:     res.OrderID,
		Status:         models.OrderPending,
		ExternalStatus: res.Status,
		PayAddress:     res.PayAddress,
		Amount:         res.Amount,
	}
	if err := m.ledger.CreateOrder(order); err != nil {
		return nil, err
	}
	m.log.Printf("inscriber: order %d created for %s (external %s, %d sats to %s)",
		order.ID, d.Proposal.Ticker, res.OrderID, res.Amount, res.PayAddress)
	return order, nil
}

// Reconcile fetches the external order status and applies it. Idempotent:
// repeated calls with the same external status leave the ledger unchanged.
func (m *Manager) Reconcile(ctx context.Context, orderID uint) error {
	order, err := m.ledger.OrderByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return errors.Errorf("unknown order %d", orderID)
	}
	if order.Status.Terminal() {
		return nil
	}

	res, err := m.market.OrderStatus(ctx, order.ExternalID)
	if err != nil {
		return errors.Wrapf(err, "order %d status", orderID)
	}

	switch res.Classify() {
	case market.OutcomeSuccess:
		return m.finalizeSuccess(order, res)
	case market.OutcomeFailure:
		return m.finalizeFailure(order, res)
	default:
		if order.ExternalStatus != res.Status {
			order.ExternalStatus = res.Status
			return m.ledger.SaveOrder(order)
		}
		return nil
	}
}

func (m *Manager) finalizeSuccess(order *models.InscriptionOrder, res *market.OrderStatusResult) error {
	file := res.FirstComplete()
	if file == nil {
		// Classify guarantees this, but never finalize without both ids.
		return errors.Errorf("order %d: status %s without inscription id and txid", order.ID, res.Status)
	}
	return m.ledger.Transact(func(tx ledger.Ledger) error {
		cur, err := tx.OrderByID(order.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status.Terminal() {
			return nil
		}
		cur.Status = models.OrderCompleted
		cur.ExternalStatus = res.Status
		cur.InscriptionID = file.InscriptionID
		cur.TxID = file.TxID
		cur.InscriptionURL = inscriptionURLBase + file.InscriptionID
		if err := tx.SaveOrder(cur); err != nil {
			return err
		}

		p, err := tx.ProposalByID(cur.ProposalID)
		if err != nil {
			return err
		}
		if p != nil && p.Status != models.StatusInscribed {
			p.Status = models.StatusInscribed
			if err := tx.SaveProposal(p); err != nil {
				return err
			}
		}
		m.log.Printf("inscriber: order %d completed: inscription %s tx %s",
			cur.ID, cur.InscriptionID, cur.TxID)
		return nil
	})
}

func (m *Manager) finalizeFailure(order *models.InscriptionOrder, res *market.OrderStatusResult) error {
	return m.ledger.Transact(func(tx ledger.Ledger) error {
		cur, err := tx.OrderByID(order.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status.Terminal() {
			return nil
		}
		cur.Status = models.OrderFailed
		cur.ExternalStatus = res.Status
		cur.FailReason = res.Status
		if err := tx.SaveOrder(cur); err != nil {
			return err
		}

		p, err := tx.ProposalByID(cur.ProposalID)
		if err != nil {
			return err
		}
		if p != nil && p.Status == models.StatusInscribing {
			applyFailureStatus(p, m.cfg.FailureStatus)
			if err := tx.SaveProposal(p); err != nil {
				return err
			}
		}
		m.log.Printf("inscriber: order %d failed (%s), proposal %d -> %s",
			cur.ID, res.Status, cur.ProposalID, m.cfg.FailureStatus)
		return nil
	})
}

// failProposal moves an inscribing proposal out of inscribing after order
// creation failed.
func (m *Manager) failProposal(proposalID uint) error {
	return m.ledger.Transact(func(tx ledger.Ledger) error {
		p, err := tx.ProposalByID(proposalID)
		if err != nil {
			return err
		}
		if p == nil || p.Status != models.StatusInscribing {
			return nil
		}
		applyFailureStatus(p, m.cfg.FailureStatus)
		return tx.SaveProposal(p)
	})
}

func applyFailureStatus(p *models.Proposal, status models.ProposalStatus) {
	p.Status = status
	if status == models.StatusActive {
		// Active proposals carry no leadership fields.
		p.FirstTimeAsLeader = nil
		p.LeaderStartBlock = 0
		p.ExpirationBlock = 0
	}
}

// Run drives the reconciliation loop on its own cadence, independent of
// the block monitor. A new sweep never starts while the previous one is
// still running.
func (m *Manager) Run(ctx context.Context) error {
	m.tick.Resume()
	defer m.tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.tick.Ticks():
			m.ReconcileAll(ctx)
		}
	}
}

// ReconcileAll iterates every non-terminal order once. Per-order errors
// are logged and skipped so one bad order never halts the sweep.
func (m *Manager) ReconcileAll(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer m.inFlight.Store(false)

	orders, err := m.ledger.OpenOrders()
	if err != nil {
		m.log.Printf("inscriber: list open orders: %v", err)
		return
	}
	for i := range orders {
		if ctx.Err() != nil {
			return
		}
		if err := m.Reconcile(ctx, orders[i].ID); err != nil {
			m.log.Printf("inscriber: reconcile order %d: %v", orders[i].ID, err)
		}
	}
}
