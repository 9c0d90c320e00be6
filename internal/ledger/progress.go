package ledger

import (
	"github.com/pkg/errors"

	"inscription-contest/internal/models"
)

// checkpointID pins the singleton checkpoint row.
const checkpointID = 1

// ProgressStore persists the block-processing checkpoint. Read once at
// startup to resume; written atomically after each fully processed block.
type ProgressStore interface {
	LoadCheckpoint() (*models.ProgressCheckpoint, error)
	SaveCheckpoint(cp *models.ProgressCheckpoint) error
}

func (s *Store) LoadCheckpoint() (*models.ProgressCheckpoint, error) {
	cp := models.ProgressCheckpoint{ID: checkpointID}
	err := s.db.Where(models.ProgressCheckpoint{ID: checkpointID}).FirstOrCreate(&cp).Error
	if err != nil {
		return nil, errors.Wrap(err, "load checkpoint")
	}
	return &cp, nil
}

func (s *Store) SaveCheckpoint(cp *models.ProgressCheckpoint) error {
	cp.ID = checkpointID
	return errors.Wrap(s.db.Save(cp).Error, "save checkpoint")
}
