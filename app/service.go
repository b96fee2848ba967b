/*
Package app wires the custody engine together and exposes it as one
concurrency safe service facade.

All durable state lives in a single committed key value store. Reads run
under a shared lock on a scratch-pad over the working tree. Mutations
run under the exclusive lock, are buffered in a scratch-pad and land on
disk through one Write plus Commit, so no caller ever observes a
partially applied operation.

Approving is the interesting path. Signing and network submission are
slow I/O and must not run under the store lock, so an approval is three
phases: validate against a read snapshot, sign outside any store lock,
then re-validate and append under the write lock. A per operation lock
around the whole call keeps racing approvals for one operation
serialized while independent operations proceed concurrently.
*/
package app

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/assembly"
	"github.com/mintward/custody/x/audit"
	"github.com/mintward/custody/x/collateral"
	"github.com/mintward/custody/x/executor"
	"github.com/mintward/custody/x/operation"
	"github.com/mintward/custody/x/quorum"
	"github.com/mintward/custody/x/signers"
)

// DefaultPendingTTL bounds how long an operation may collect approvals.
// Prepared payloads go stale well within a day, keeping a pending
// operation around longer only invites signing against dead sequence
// numbers.
const DefaultPendingTTL = 24 * time.Hour

// Config collects everything a Service needs. All fields without a
// stated default are required.
type Config struct {
	// Store holds all durable engine state.
	Store custody.CommitKVStore
	// Client talks to the ledger network.
	Client ledgernet.Client
	// Registry is the fixed co-signer set.
	Registry *signers.Registry
	// IssuingAccount is the multi-signature custody account.
	IssuingAccount string
	// RequiredWeight is the quorum threshold.
	RequiredWeight signers.Weight
	// BaseFee is the per signature network fee.
	BaseFee coin.Coin
	// Ticker of the issued token and its collateral records.
	Ticker string
	// PendingTTL caps the pending lifetime, DefaultPendingTTL if zero.
	PendingTTL time.Duration
	// Logger defaults to a no-op logger.
	Logger log.Logger
	// MetricsRegistry may be nil to skip metrics registration.
	MetricsRegistry prometheus.Registerer
}

// Service is the custody engine facade. It is safe for concurrent use by
// many callers.
type Service struct {
	storeMu sync.RWMutex
	store   custody.CommitKVStore
	opLocks *lockRegistry

	registry    *signers.Registry
	assembler   *assembly.Assembler
	coordinator *quorum.Coordinator
	exec        *executor.Executor

	ops     operation.Bucket
	ledger  collateral.Ledger
	trail   audit.Trail
	records executor.RecordBucket

	issuing    string
	threshold  signers.Weight
	pendingTTL time.Duration

	logger  log.Logger
	metrics *Metrics
	now     func() custody.UnixTime
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "store")
	}
	if cfg.Client == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "client")
	}
	if cfg.Registry == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "registry")
	}
	if cfg.IssuingAccount == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "issuing account")
	}
	if cfg.Ticker == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "ticker")
	}
	if err := cfg.Registry.ValidateThreshold(cfg.RequiredWeight); err != nil {
		return nil, err
	}

	asm, err := assembly.NewAssembler(cfg.Client, cfg.Registry, cfg.BaseFee)
	if err != nil {
		return nil, err
	}

	ops := operation.NewBucket()
	ledger := collateral.NewLedger(cfg.Ticker)
	trail := audit.NewTrail()
	records := executor.NewRecordBucket()

	coord, err := quorum.NewCoordinator(cfg.Registry, ops, trail)
	if err != nil {
		return nil, err
	}
	exec, err := executor.NewExecutor(cfg.Client, asm, ops, records, ledger, trail, cfg.IssuingAccount)
	if err != nil {
		return nil, err
	}

	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Service{
		store:       cfg.Store,
		opLocks:     newLockRegistry(),
		registry:    cfg.Registry,
		assembler:   asm,
		coordinator: coord,
		exec:        exec,
		ops:         ops,
		ledger:      ledger,
		trail:       trail,
		records:     records,
		issuing:     cfg.IssuingAccount,
		threshold:   cfg.RequiredWeight,
		pendingTTL:  ttl,
		logger:      logger.With("module", "custody"),
		metrics:     NewMetrics(cfg.MetricsRegistry),
		now: func() custody.UnixTime {
			return custody.AsUnixTime(time.Now())
		},
	}, nil
}

// read runs fn on a consistent snapshot of the committed state.
func (s *Service) read(fn func(db custody.ReadOnlyKVStore) error) error {
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	db := s.store.CacheWrap()
	defer db.Discard()
	return fn(db)
}

// write runs fn in a scratch-pad and commits the result. A failing fn
// leaves the store untouched.
func (s *Service) write(fn func(db custody.KVStore) error) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	db := s.store.CacheWrap()
	if err := fn(db); err != nil {
		db.Discard()
		return err
	}
	if err := db.Write(); err != nil {
		return err
	}
	if _, err := s.store.Commit(); err != nil {
		return err
	}
	return nil
}

// RequestMint creates a pending mint operation. The unsigned payload is
// prepared once here and never regenerated.
func (s *Service) RequestMint(ctx context.Context, amount coin.Coin, destination, reference string) (*OperationSnapshot, error) {
	kind := operation.Mint{Quantity: amount, Destination: destination}
	spec := ledgernet.PaymentSpec{
		Source:      s.issuing,
		Destination: destination,
		Amount:      amount,
		Memo:        reference,
	}
	return s.request(ctx, kind, spec, reference)
}

// RequestBurn creates a pending burn operation paying supply from the
// redemption source back to the issuing account.
func (s *Service) RequestBurn(ctx context.Context, amount coin.Coin, source, reference string) (*OperationSnapshot, error) {
	kind := operation.Burn{Quantity: amount, Source: source}
	spec := ledgernet.PaymentSpec{
		Source:      source,
		Destination: s.issuing,
		Amount:      amount,
		Memo:        reference,
	}
	return s.request(ctx, kind, spec, reference)
}

func (s *Service) request(ctx context.Context, kind operation.Kind, spec ledgernet.PaymentSpec, reference string) (*OperationSnapshot, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if reference == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "reference")
	}

	// Check the backing early to fail fast, the authoritative claim
	// is the Reserve call inside the write below.
	if _, ok := kind.(operation.Mint); ok {
		err := s.read(func(db custody.ReadOnlyKVStore) error {
			return s.ledger.CheckMintAllowed(db, kind.Amount())
		})
		if err != nil {
			return nil, err
		}
	}

	// Network I/O, outside any store lock.
	payload, err := s.assembler.PrepareUnsigned(ctx, spec)
	if err != nil {
		return nil, err
	}

	now := s.now()
	op := &operation.Operation{
		Kind:           kind,
		Reference:      reference,
		RequiredWeight: s.threshold,
		Status:         operation.StatusPending,
		Unsigned:       payload,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.pendingTTL),
	}
	err = s.write(func(db custody.KVStore) error {
		// A mint claims its backing for as long as it lives. The
		// reservation is converted to issued supply on execution and
		// released on any terminal rejection, so overlapping mints
		// cannot share the same collateral.
		if _, ok := kind.(operation.Mint); ok {
			if err := s.ledger.Reserve(db, kind.Amount()); err != nil {
				return err
			}
		}
		if _, err := s.ops.Create(db, op); err != nil {
			return err
		}
		_, err := s.trail.Record(db, op.ID, audit.EventRequested, "", reference, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OperationsCreated.WithLabelValues(kind.Type()).Inc()
	s.logger.Info("operation created",
		"id", op.ID, "kind", kind.Type(), "reference", reference)
	return snapshotOf(op), nil
}

// Approve records one signer's approval on a pending operation. When the
// approval pushes the collected weight over the threshold, the operation
// flips to approved and is executed before the call returns. Exactly one
// of several racing approvals performs that execution.
func (s *Service) Approve(ctx context.Context, opID int64, signerID custody.Address) (*OperationSnapshot, error) {
	release := s.opLocks.acquire(opID)
	defer release()

	now := s.now()

	// Phase one, validate against a read snapshot.
	var (
		op     *operation.Operation
		member *signers.Member
	)
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		op, member, err = s.coordinator.BeginApproval(db, opID, signerID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Phase two, collect the signature. Possibly slow I/O, no store
	// lock held. The per operation lock keeps the state from moving
	// under us.
	sig, sigErr := s.assembler.CollectPartialSignature(member, op.Unsigned)
	if sigErr != nil {
		werr := s.write(func(db custody.KVStore) error {
			_, err := s.trail.Record(db, opID, audit.EventSignFailed, member.Signatory.Account(), sigErr.Error(), now)
			return err
		})
		if werr != nil {
			s.logger.Error("audit write failed", "id", opID, "err", werr)
		}
		return nil, sigErr
	}

	// Phase three, append atomically against fresh state.
	var quorumReached bool
	err = s.write(func(db custody.KVStore) error {
		var err error
		op, quorumReached, err = s.coordinator.RecordApproval(db, opID, member, sig, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ApprovalsRecorded.Inc()
	s.logger.Info("approval recorded",
		"id", opID, "signer", sig.Account, "weight", op.CurrentWeight(), "required", op.RequiredWeight)

	if quorumReached {
		return s.executeApproved(ctx, opID, op)
	}
	return snapshotOf(op), nil
}

// executeApproved submits the multi-signed payload and finalizes the
// outcome. The caller holds the per operation lock.
func (s *Service) executeApproved(ctx context.Context, opID int64, op *operation.Operation) (*OperationSnapshot, error) {
	now := s.now()

	// Submission is network I/O, outside the store lock.
	res, submitErr := s.exec.Submit(ctx, op)

	var final *operation.Operation
	err := s.write(func(db custody.KVStore) error {
		var err error
		switch {
		case submitErr == nil:
			final, err = s.exec.FinalizeSuccess(db, opID, res, now)
		case errors.ErrSubmission.Is(submitErr):
			final, err = s.exec.FinalizeFailure(db, opID, submitErr, now)
		case errors.ErrIndeterminate.Is(submitErr):
			final, err = s.exec.FinalizeIndeterminate(db, opID, submitErr, now)
		default:
			return submitErr
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case submitErr == nil:
		s.metrics.Executions.WithLabelValues("executed").Inc()
		s.logger.Info("operation executed", "id", opID, "tx", final.ResultTxID)
	case errors.ErrSubmission.Is(submitErr):
		s.metrics.Executions.WithLabelValues("failed").Inc()
		s.logger.Error("submission rejected", "id", opID, "err", submitErr)
	default:
		s.metrics.Executions.WithLabelValues("indeterminate").Inc()
		s.logger.Error("submission indeterminate, reconcile with the network before any resubmit",
			"id", opID, "err", submitErr)
	}
	return snapshotOf(final), nil
}

// Reject administratively ends an operation before it executed.
func (s *Service) Reject(opID int64, actor, reason string) (*OperationSnapshot, error) {
	release := s.opLocks.acquire(opID)
	defer release()

	now := s.now()
	var op *operation.Operation
	err := s.write(func(db custody.KVStore) error {
		var err error
		op, err = s.coordinator.Reject(db, opID, actor, reason, now)
		if err != nil {
			return err
		}
		if _, ok := op.Kind.(operation.Mint); ok {
			return s.ledger.Release(db, op.Kind.Amount())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("operation rejected", "id", opID, "actor", actor, "reason", reason)
	return snapshotOf(op), nil
}

// GetOperation returns the current view of one operation.
func (s *Service) GetOperation(opID int64) (*OperationSnapshot, error) {
	var op *operation.Operation
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		op, err = s.ops.GetOperation(db, opID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshotOf(op), nil
}

// ListPending returns all operations still collecting approvals.
func (s *Service) ListPending() ([]*OperationSnapshot, error) {
	var ops []*operation.Operation
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		ops, err = s.ops.ListPending(db)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := make([]*OperationSnapshot, len(ops))
	for i, op := range ops {
		res[i] = snapshotOf(op)
	}
	return res, nil
}

// ListRecent returns up to limit operations, newest first.
func (s *Service) ListRecent(limit int) ([]*OperationSnapshot, error) {
	var ops []*operation.Operation
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		ops, err = s.ops.ListRecent(db, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := make([]*OperationSnapshot, len(ops))
	for i, op := range ops {
		res[i] = snapshotOf(op)
	}
	return res, nil
}

// AuditTrail returns all recorded events of one operation, oldest first.
func (s *Service) AuditTrail(opID int64) ([]*audit.Event, error) {
	var events []*audit.Event
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		events, err = s.trail.ListByOperation(db, opID)
		return err
	})
	return events, err
}

// RecordDeposit appends a collateral deposit.
func (s *Service) RecordDeposit(amount coin.Coin, reference, bankRef string) (*collateral.Entry, error) {
	var entry *collateral.Entry
	err := s.write(func(db custody.KVStore) error {
		var err error
		entry, err = s.ledger.RecordDeposit(db, amount, reference, bankRef, s.now())
		return err
	})
	return entry, err
}

// RecordWithdrawal appends a collateral withdrawal. It fails if the
// remaining collateral would no longer back the issued supply.
func (s *Service) RecordWithdrawal(amount coin.Coin, reference, bankRef string) (*collateral.Entry, error) {
	var entry *collateral.Entry
	err := s.write(func(db custody.KVStore) error {
		var err error
		entry, err = s.ledger.RecordWithdrawal(db, amount, reference, bankRef, s.now())
		return err
	})
	return entry, err
}

// CollateralBalance returns the current backing balance.
func (s *Service) CollateralBalance() (coin.Coin, error) {
	var balance coin.Coin
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		balance, err = s.ledger.Balance(db)
		return err
	})
	return balance, err
}

// IssuedSupply returns the total token supply issued so far.
func (s *Service) IssuedSupply() (coin.Coin, error) {
	var issued coin.Coin
	err := s.read(func(db custody.ReadOnlyKVStore) error {
		var err error
		issued, err = s.ledger.IssuedSupply(db)
		return err
	})
	return issued, err
}

// ExpirePending sweeps pending operations whose deadline passed into
// rejected. It is meant to run periodically.
func (s *Service) ExpirePending() ([]int64, error) {
	var expired []int64
	err := s.write(func(db custody.KVStore) error {
		var err error
		expired, err = s.coordinator.ExpirePending(db, s.now())
		if err != nil {
			return err
		}
		// Expired mints no longer claim their backing.
		for _, id := range expired {
			op, err := s.ops.GetOperation(db, id)
			if err != nil {
				return err
			}
			if _, ok := op.Kind.(operation.Mint); ok {
				if err := s.ledger.Release(db, op.Kind.Amount()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range expired {
		s.metrics.PendingExpired.Inc()
	}
	if len(expired) > 0 {
		s.logger.Info("expired pending operations", "count", len(expired))
	}
	return expired, nil
}
