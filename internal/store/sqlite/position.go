package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// PositionStore persists depot positions in the job store's database.
// Decimals are stored as their exact string form.
type PositionStore struct {
	db *sql.DB
}

// Positions returns the position store sharing s's database.
func (s *JobStore) Positions() *PositionStore {
	return &PositionStore{db: s.db}
}

const positionColumns = `share_id, amount, cost_value, current_value, percentage_change, updated_at`

// Get implements engine.PositionStore.
func (s *PositionStore) Get(ctx context.Context, depotID, shareID string) (domain.DepotPosition, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE depot_id = ? AND share_id = ?`, depotID, shareID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DepotPosition{}, false, nil
	}
	if err != nil {
		return domain.DepotPosition{}, false, err
	}
	return p, true, nil
}

// Put implements engine.PositionStore.
func (s *PositionStore) Put(ctx context.Context, depotID string, p domain.DepotPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (depot_id, share_id, amount, cost_value, current_value, percentage_change, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (depot_id, share_id) DO UPDATE SET
			amount            = excluded.amount,
			cost_value        = excluded.cost_value,
			current_value     = excluded.current_value,
			percentage_change = excluded.percentage_change,
			updated_at        = excluded.updated_at
	`, depotID, p.ShareID, p.Amount, p.CostValue.String(), p.CurrentValue.String(), p.PercentageChange.String(), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite upsert position: %w", err)
	}
	return nil
}

// Remove implements engine.PositionStore.
func (s *PositionStore) Remove(ctx context.Context, depotID, shareID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE depot_id = ? AND share_id = ?`, depotID, shareID); err != nil {
		return fmt.Errorf("sqlite delete position: %w", err)
	}
	return nil
}

// ListByDepot implements engine.PositionStore.
func (s *PositionStore) ListByDepot(ctx context.Context, depotID string) ([]domain.DepotPosition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE depot_id = ? ORDER BY share_id ASC`, depotID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.DepotPosition, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPosition(row scanner) (domain.DepotPosition, error) {
	var (
		p         domain.DepotPosition
		updatedAt int64
	)
	// decimal.Decimal scans from TEXT without going through float64.
	err := row.Scan(&p.ShareID, &p.Amount, &p.CostValue, &p.CurrentValue, &p.PercentageChange, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("sqlite scan position: %w", err)
	}
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return p, nil
}
