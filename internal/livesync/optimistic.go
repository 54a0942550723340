package livesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("record store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingBuildFunc  = errors.New("build function is required")
	errMissingSendFunc   = errors.New("send function is required")
	noOpLogger           = zap.NewNop()
)

const (
	opMutatorNew = "livesync.mutator.new"
	opMutatorDo  = "livesync.mutator.do"
)

// BuildFunc constructs the tentative record shown while the mutation is in
// flight.
type BuildFunc[R Record] func(tempID string, stagedAt time.Time) R

// SendFunc issues the mutation to the backend and returns the confirmed
// record.
type SendFunc[R Record] func(ctx context.Context) (R, error)

// MutatorConfig wires the dependencies of an optimistic mutation wrapper.
type MutatorConfig[R Record] struct {
	Store      *Store[R]
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Mutator stages a tentative record before the network round trip completes
// and reconciles or rolls it back when the backend responds. Multiple
// mutations may be in flight concurrently; each resolves only its own slot.
type Mutator[R Record] struct {
	store      *Store[R]
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewMutator validates the configuration and constructs a Mutator.
func NewMutator[R Record](cfg MutatorConfig[R]) (*Mutator[R], error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%s: %w", opMutatorNew, errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("%s: %w", opMutatorNew, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Mutator[R]{
		store:      cfg.Store,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Do appends the tentative record, sends the mutation, and reconciles the
// outcome. On failure the tentative record is removed so the store equals
// its pre-mutation state, and the send error is returned for display.
func (m *Mutator[R]) Do(ctx context.Context, build BuildFunc[R], send SendFunc[R]) (R, error) {
	var zero R
	if build == nil {
		return zero, fmt.Errorf("%s: %w", opMutatorDo, errMissingBuildFunc)
	}
	if send == nil {
		return zero, fmt.Errorf("%s: %w", opMutatorDo, errMissingSendFunc)
	}

	tempID, err := NewTempID(m.idProvider)
	if err != nil {
		m.logger.Error("temp id generation failed",
			zap.String("operation", opMutatorDo), zap.Error(err))
		return zero, fmt.Errorf("%s: %w", opMutatorDo, err)
	}

	tentative := build(tempID, m.clock().UTC())
	m.store.Append(tentative)

	confirmed, err := send(ctx)
	if err != nil {
		m.store.RemoveByID(tempID)
		m.logger.Warn("mutation rolled back",
			zap.String("operation", opMutatorDo),
			zap.String("temp_id", tempID),
			zap.Error(err))
		return zero, err
	}

	m.store.Replace(tempID, confirmed)
	return confirmed, nil
}
