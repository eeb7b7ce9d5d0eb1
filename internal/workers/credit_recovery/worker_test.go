package credit_recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// MockDepositRepository returns a fixed stranded batch
type MockDepositRepository struct {
	deposits []*entities.Deposit
	err      error
}

func (m *MockDepositRepository) ListConfirmedUncredited(ctx context.Context, limit int) ([]*entities.Deposit, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.deposits) {
		return m.deposits[:limit], nil
	}
	return m.deposits, nil
}

// MockCreditProcessor records credited IDs and fails selected ones
type MockCreditProcessor struct {
	credited []uuid.UUID
	failFor  map[uuid.UUID]error
}

func (m *MockCreditProcessor) Credit(ctx context.Context, deposit *entities.Deposit) error {
	if err, ok := m.failFor[deposit.ID]; ok {
		return err
	}
	m.credited = append(m.credited, deposit.ID)
	return nil
}

func strandedDeposit() *entities.Deposit {
	return &entities.Deposit{ID: uuid.New(), Status: entities.DepositStatusConfirmed}
}

func TestRunOnceCreditsStrandedBatch(t *testing.T) {
	d1, d2 := strandedDeposit(), strandedDeposit()
	repo := &MockDepositRepository{deposits: []*entities.Deposit{d1, d2}}
	processor := &MockCreditProcessor{}
	worker := NewWorker(repo, processor, nil, logger.New("error", "test"))

	worker.RunOnce(context.Background())

	assert.Equal(t, []uuid.UUID{d1.ID, d2.ID}, processor.credited)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	d1, d2, d3 := strandedDeposit(), strandedDeposit(), strandedDeposit()
	repo := &MockDepositRepository{deposits: []*entities.Deposit{d1, d2, d3}}
	processor := &MockCreditProcessor{
		failFor: map[uuid.UUID]error{d2.ID: errors.New("price unavailable")},
	}
	worker := NewWorker(repo, processor, nil, logger.New("error", "test"))

	worker.RunOnce(context.Background())

	// d2 stays confirmed for the next cycle; the rest of the batch is unaffected
	assert.Equal(t, []uuid.UUID{d1.ID, d3.ID}, processor.credited)
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	repo := &MockDepositRepository{}
	for i := 0; i < 5; i++ {
		repo.deposits = append(repo.deposits, strandedDeposit())
	}
	processor := &MockCreditProcessor{}
	worker := NewWorker(repo, processor, &Config{BatchSize: 3, CheckInterval: DefaultConfig().CheckInterval}, logger.New("error", "test"))

	worker.RunOnce(context.Background())

	assert.Len(t, processor.credited, 3)
}

func TestRunOnceSurvivesListFailure(t *testing.T) {
	repo := &MockDepositRepository{err: errors.New("connection refused")}
	processor := &MockCreditProcessor{}
	worker := NewWorker(repo, processor, nil, logger.New("error", "test"))

	worker.RunOnce(context.Background())

	assert.Empty(t, processor.credited)
}
