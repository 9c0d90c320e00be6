// Package engine implements the competition state machine. Given a newly
// observed block and the current ledger snapshot it computes leader,
// elimination and timeout transitions and emits at most one inscription
// decision per block.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"

	"inscription-contest/internal/chain"
	"inscription-contest/internal/ledger"
	"inscription-contest/internal/logger"
	"inscription-contest/internal/models"
)

// ErrInvariantViolation is returned when the ledger holds more than one
// proposal in a leadership status. The engine refuses to transition
// anything for that block; the state needs operator intervention.
var ErrInvariantViolation = errors.New("competition invariant violated: multiple leadership holders")

// Config carries the contest-run constants.
type Config struct {
	// LeaderboardMinBlocks is the default survival requirement for
	// proposals created without one.
	LeaderboardMinBlocks int64
	// MaxLeaderBlocks bounds a leadership attempt; past it an
	// unsuccessful leader expires.
	MaxLeaderBlocks int64
	// DethroneStatus is the terminal status given to a dethroned leader.
	DethroneStatus models.ProposalStatus
	// SweepContenders expires the losing contenders below a newly
	// promoted leader, keeping the active pool bounded.
	SweepContenders bool
}

// Decision is a "ready to inscribe" signal for the order manager.
type Decision struct {
	Proposal models.Proposal
	Height   int64
	Hash     string
	Stats    chain.BlockStats
}

// Status is the engine's read-only summary.
type Status struct {
	TotalActive         int64         `json:"totalActive"`
	CurrentLeaders      int64         `json:"currentLeaders"`
	CurrentlyInscribing int64         `json:"currentlyInscribing"`
	TotalExpired        int64         `json:"totalExpired"`
	TotalInscribed      int64         `json:"totalInscribed"`
	Top                 *TopProposal  `json:"top,omitempty"`
	Contenders          []TopProposal `json:"contenders,omitempty"`
}

// statusContenderLimit caps the contender list in status snapshots.
const statusContenderLimit = 5

// TopProposal summarizes the current front-runner.
type TopProposal struct {
	Ticker         string                `json:"ticker"`
	TotalVotes     int64                 `json:"totalVotes"`
	Status         models.ProposalStatus `json:"status"`
	BlocksAsLeader int64                 `json:"blocksAsLeader"`
}

type Engine struct {
	ledger ledger.Ledger
	cfg    Config
	clock  clock.Clock
	log    *logger.Logger

	// mu serializes block processing with admin force-actions so they
	// never race a block-driven transition.
	mu sync.Mutex

	lastHeight atomic.Int64
}

func New(l ledger.Ledger, cfg Config, clk clock.Clock, log *logger.Logger) *Engine {
	if cfg.DethroneStatus == "" {
		cfg.DethroneStatus = models.StatusExpired
	}
	return &Engine{ledger: l, cfg: cfg, clock: clk, log: log}
}

// ProcessBlock applies one block's transitions as a single transaction and
// returns the block's inscription decision, if any. Evaluation order:
// invariant check, dethrone, promotion, survival, timeout. Survival never
// fires in the block that promoted the leader.
func (e *Engine) ProcessBlock(ctx context.Context, height int64, hash string, stats chain.BlockStats) (*Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var decision *Decision
	err := e.ledger.Transact(func(tx ledger.Ledger) error {
		holders, err := tx.LeadershipHolders()
		if err != nil {
			return err
		}
		if len(holders) > 1 {
			return errors.Wrapf(ErrInvariantViolation, "height %d: %d holders", height, len(holders))
		}
		if len(holders) == 1 && holders[0].Status == models.StatusInscribing {
			// An inscription is in flight; the contest pauses until the
			// order reaches a terminal state.
			e.log.Printf("engine: height %d: proposal %s inscribing, no transitions",
				height, holders[0].Ticker)
			return nil
		}

		ranked, err := tx.RankedContenders()
		if err != nil {
			return err
		}
		if len(ranked) == 0 {
			return nil
		}
		top := ranked[0]

		var incumbent *models.Proposal
		for i := range ranked {
			if ranked[i].Status == models.StatusLeader {
				incumbent = &ranked[i]
				break
			}
		}

		// Dethrone: a leader that lost rank #1 is out immediately, no
		// grace block.
		if incumbent != nil && incumbent.ID != top.ID {
			incumbent.Status = e.cfg.DethroneStatus
			if err := tx.SaveProposal(incumbent); err != nil {
				return err
			}
			e.log.Printf("engine: height %d: leader %s dethroned by %s (%d < %d votes) -> %s",
				height, incumbent.Ticker, top.Ticker, incumbent.TotalVotes, top.TotalVotes, incumbent.Status)
		}

		// Promotion: the new rank #1 starts its survival challenge. The
		// survival check only applies from the next block on.
		if top.Status == models.StatusActive {
			top.Status = models.StatusLeader
			if top.FirstTimeAsLeader == nil {
				now := e.clock.Now()
				top.FirstTimeAsLeader = &now
			}
			top.LeaderStartBlock = height
			top.ExpirationBlock = height + e.cfg.MaxLeaderBlocks
			if err := tx.SaveProposal(&top); err != nil {
				return err
			}
			e.log.Printf("engine: height %d: %s promoted to leader (%d votes, must survive %d blocks)",
				height, top.Ticker, top.TotalVotes, e.minBlocks(&top))
			if e.cfg.SweepContenders {
				return e.sweep(tx, ranked, top.ID, height)
			}
			return nil
		}

		// Survival: the incumbent held rank #1 long enough.
		if top.BlocksAsLeader(height) >= e.minBlocks(&top) {
			top.Status = models.StatusInscribing
			if err := tx.SaveProposal(&top); err != nil {
				return err
			}
			decision = &Decision{Proposal: top, Height: height, Hash: hash, Stats: stats}
			e.log.Printf("engine: height %d: %s survived %d blocks -> inscribing",
				height, top.Ticker, top.BlocksAsLeader(height))
			return nil
		}

		// Timeout: past the deadline without surviving.
		if height > top.ExpirationBlock {
			top.Status = models.StatusExpired
			if err := tx.SaveProposal(&top); err != nil {
				return err
			}
			e.log.Printf("engine: height %d: leader %s timed out (deadline %d)",
				height, top.Ticker, top.ExpirationBlock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.lastHeight.Store(height)
	return decision, nil
}

// sweep expires every contender below the new leader.
func (e *Engine) sweep(tx ledger.Ledger, ranked []models.Proposal, winnerID uint, height int64) error {
	for i := range ranked {
		p := &ranked[i]
		if p.ID == winnerID || p.Status != models.StatusActive {
			continue
		}
		p.Status = models.StatusExpired
		if err := tx.SaveProposal(p); err != nil {
			return err
		}
		e.log.Printf("engine: height %d: contender %s swept", height, p.Ticker)
	}
	return nil
}

func (e *Engine) minBlocks(p *models.Proposal) int64 {
	if p.LeaderboardMinBlocks > 0 {
		return p.LeaderboardMinBlocks
	}
	return e.cfg.LeaderboardMinBlocks
}

// ForceExpire unconditionally moves a proposal to expired, outside the
// normal block cycle.
func (e *Engine) ForceExpire(id uint, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Transact(func(tx ledger.Ledger) error {
		p, err := tx.ProposalByID(id)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.Errorf("unknown proposal %d", id)
		}
		if p.Status.Terminal() {
			return errors.Errorf("proposal %d already terminal (%s)", id, p.Status)
		}
		prev := p.Status
		p.Status = models.StatusExpired
		if err := tx.SaveProposal(p); err != nil {
			return err
		}
		e.log.Printf("engine: force-expired proposal %s (%s -> expired), reason: %s",
			p.Ticker, prev, reason)
		return nil
	})
}

// Reset returns every active, leader, inscribing and expired proposal to
// active and clears leadership fields. Inscribed and rejected proposals
// stay as they are.
func (e *Engine) Reset(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Transact(func(tx ledger.Ledger) error {
		proposals, err := tx.ResettableProposals()
		if err != nil {
			return err
		}
		for i := range proposals {
			p := &proposals[i]
			p.Status = models.StatusActive
			p.FirstTimeAsLeader = nil
			p.LeaderStartBlock = 0
			p.ExpirationBlock = 0
			if err := tx.SaveProposal(p); err != nil {
				return err
			}
		}
		e.log.Printf("engine: competition reset (%d proposals), reason: %s",
			len(proposals), reason)
		return nil
	})
}

// Status returns competition counts and the current front-runner.
func (e *Engine) Status() (*Status, error) {
	counts, err := e.ledger.StatusCounts()
	if err != nil {
		return nil, err
	}
	st := &Status{
		TotalActive:         counts[models.StatusActive],
		CurrentLeaders:      counts[models.StatusLeader],
		CurrentlyInscribing: counts[models.StatusInscribing],
		TotalExpired:        counts[models.StatusExpired],
		TotalInscribed:      counts[models.StatusInscribed],
	}

	height := e.lastHeight.Load()
	if ranked, err := e.ledger.RankedContenders(); err == nil {
		for i := range ranked {
			if i == statusContenderLimit {
				break
			}
			st.Contenders = append(st.Contenders, TopProposal{
				Ticker:         ranked[i].Ticker,
				TotalVotes:     ranked[i].TotalVotes,
				Status:         ranked[i].Status,
				BlocksAsLeader: ranked[i].BlocksAsLeader(height),
			})
		}
	}
	if holders, err := e.ledger.LeadershipHolders(); err == nil && len(holders) == 1 {
		st.Top = &TopProposal{
			Ticker:         holders[0].Ticker,
			TotalVotes:     holders[0].TotalVotes,
			Status:         holders[0].Status,
			BlocksAsLeader: holders[0].BlocksAsLeader(height),
		}
	} else if len(st.Contenders) > 0 {
		st.Top = &st.Contenders[0]
	}
	return st, nil
}

// LastHeight returns the most recently processed height.
func (e *Engine) LastHeight() int64 {
	return e.lastHeight.Load()
}
