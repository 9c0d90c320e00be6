// Package ledger is the record-store layer for the competition: proposals,
// inscription orders and the block-processing checkpoint.
package ledger

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"inscription-contest/internal/models"
)

// Ledger is the contract the engine and the order manager run against.
// The gorm-backed Store is the production implementation; tests use
// in-memory fakes.
type Ledger interface {
	// RankedContenders returns active and leader proposals ordered by
	// total votes descending, ties broken by earliest creation time.
	RankedContenders() ([]models.Proposal, error)
	// LeadershipHolders returns every proposal in status leader or
	// inscribing. More than one is an invariant violation.
	LeadershipHolders() ([]models.Proposal, error)
	ProposalByID(id uint) (*models.Proposal, error)
	SaveProposal(p *models.Proposal) error
	// ResettableProposals returns proposals a competition reset revives:
	// active, leader, inscribing and expired. Inscribed and rejected stay.
	ResettableProposals() ([]models.Proposal, error)
	StatusCounts() (map[models.ProposalStatus]int64, error)

	OrderByID(id uint) (*models.InscriptionOrder, error)
	// OpenOrderForProposal returns the proposal's non-terminal order, or
	// nil when there is none.
	OpenOrderForProposal(proposalID uint) (*models.InscriptionOrder, error)
	OpenOrders() ([]models.InscriptionOrder, error)
	CreateOrder(o *models.InscriptionOrder) error
	SaveOrder(o *models.InscriptionOrder) error

	// Transact runs fn against a transaction-scoped ledger; all writes
	// commit or roll back as one unit.
	Transact(fn func(Ledger) error) error
}

// Store is the gorm-backed Ledger and ProgressStore.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RankedContenders() ([]models.Proposal, error) {
	var out []models.Proposal
	err := s.db.
		Where("status IN ?", []models.ProposalStatus{models.StatusActive, models.StatusLeader}).
		Order("total_votes DESC, created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "ranked contenders")
	}
	return out, nil
}

func (s *Store) LeadershipHolders() ([]models.Proposal, error) {
	var out []models.Proposal
	err := s.db.
		Where("status IN ?", []models.ProposalStatus{models.StatusLeader, models.StatusInscribing}).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "leadership holders")
	}
	return out, nil
}

func (s *Store) ProposalByID(id uint) (*models.Proposal, error) {
	var p models.Proposal
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "proposal %d", id)
	}
	return &p, nil
}

func (s *Store) SaveProposal(p *models.Proposal) error {
	return errors.Wrapf(s.db.Save(p).Error, "save proposal %d", p.ID)
}

func (s *Store) ResettableProposals() ([]models.Proposal, error) {
	var out []models.Proposal
	err := s.db.
		Where("status IN ?", []models.ProposalStatus{
			models.StatusActive, models.StatusLeader,
			models.StatusInscribing, models.StatusExpired,
		}).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "resettable proposals")
	}
	return out, nil
}

func (s *Store) StatusCounts() (map[models.ProposalStatus]int64, error) {
	type row struct {
		Status models.ProposalStatus
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.Proposal{}).
		Select("status, count(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "status counts")
	}
	counts := make(map[models.ProposalStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

func (s *Store) OrderByID(id uint) (*models.InscriptionOrder, error) {
	var o models.InscriptionOrder
	if err := s.db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "order %d", id)
	}
	return &o, nil
}

func (s *Store) OpenOrderForProposal(proposalID uint) (*models.InscriptionOrder, error) {
	var o models.InscriptionOrder
	err := s.db.
		Where("proposal_id = ? AND status = ?", proposalID, models.OrderPending).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open order for proposal %d", proposalID)
	}
	return &o, nil
}

func (s *Store) OpenOrders() ([]models.InscriptionOrder, error) {
	var out []models.InscriptionOrder
	err := s.db.
		Where("status = ?", models.OrderPending).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "open orders")
	}
	return out, nil
}

func (s *Store) CreateOrder(o *models.InscriptionOrder) error {
	return errors.Wrap(s.db.Create(o).Error, "create order")
}

func (s *Store) SaveOrder(o *models.InscriptionOrder) error {
	return errors.Wrapf(s.db.Save(o).Error, "save order %d", o.ID)
}

func (s *Store) Transact(fn func(Ledger) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
