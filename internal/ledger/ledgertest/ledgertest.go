// Package ledgertest provides an in-memory Ledger and ProgressStore for
// tests.
package ledgertest

import (
	"sort"
	"sync"

	"inscription-contest/internal/ledger"
	"inscription-contest/internal/models"
)

// Store keeps proposals, orders and the checkpoint in maps. Transact runs
// the callback against the same store; tests that need rollback semantics
// exercise the gorm store instead.
type Store struct {
	mu           sync.Mutex
	proposals    map[uint]models.Proposal
	orders       map[uint]models.InscriptionOrder
	checkpoint   models.ProgressCheckpoint
	nextProposal uint
	nextOrder    uint
}

var _ ledger.Ledger = (*Store)(nil)
var _ ledger.ProgressStore = (*Store)(nil)

func New() *Store {
	return &Store{
		proposals: make(map[uint]models.Proposal),
		orders:    make(map[uint]models.InscriptionOrder),
	}
}

// AddProposal inserts a proposal, assigning an id when missing.
func (s *Store) AddProposal(p models.Proposal) models.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextProposal++
		p.ID = s.nextProposal
	} else if p.ID > s.nextProposal {
		s.nextProposal = p.ID
	}
	if p.Status == "" {
		p.Status = models.StatusActive
	}
	s.proposals[p.ID] = p
	return p
}

func (s *Store) RankedContenders() ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proposal
	for _, p := range s.proposals {
		if p.Status == models.StatusActive || p.Status == models.StatusLeader {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalVotes != out[j].TotalVotes {
			return out[i].TotalVotes > out[j].TotalVotes
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) LeadershipHolders() ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proposal
	for _, p := range s.proposals {
		if p.Status == models.StatusLeader || p.Status == models.StatusInscribing {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ProposalByID(id uint) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *Store) SaveProposal(p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = *p
	return nil
}

func (s *Store) ResettableProposals() ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proposal
	for _, p := range s.proposals {
		switch p.Status {
		case models.StatusActive, models.StatusLeader, models.StatusInscribing, models.StatusExpired:
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) StatusCounts() (map[models.ProposalStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.ProposalStatus]int64)
	for _, p := range s.proposals {
		counts[p.Status]++
	}
	return counts, nil
}

func (s *Store) OrderByID(id uint) (*models.InscriptionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := o
	return &cp, nil
}

func (s *Store) OpenOrderForProposal(proposalID uint) (*models.InscriptionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ProposalID == proposalID && !o.Status.Terminal() {
			cp := o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) OpenOrders() ([]models.InscriptionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InscriptionOrder
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateOrder(o *models.InscriptionOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrder++
	o.ID = s.nextOrder
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) SaveOrder(o *models.InscriptionOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) Transact(fn func(ledger.Ledger) error) error {
	return fn(s)
}

func (s *Store) LoadCheckpoint() (*models.ProgressCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.checkpoint
	cp.ID = 1
	return &cp, nil
}

func (s *Store) SaveCheckpoint(cp *models.ProgressCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = *cp
	return nil
}

// Proposal returns a copy of the stored proposal for assertions.
func (s *Store) Proposal(id uint) models.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposals[id]
}

// Order returns a copy of the stored order for assertions.
func (s *Store) Order(id uint) models.InscriptionOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}
