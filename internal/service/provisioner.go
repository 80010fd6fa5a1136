package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"news_provisioner/internal/domain"
)

type Provisioner struct {
	store     Store
	ledger    RunLedger
	publisher Publisher
	spec      domain.Spec
	logger    *slog.Logger
}

// NewProvisioner wires a provisioner. ledger and publisher may be nil.
func NewProvisioner(
	store Store,
	ledger RunLedger,
	publisher Publisher,
	spec domain.Spec,
	logger *slog.Logger,
) *Provisioner {
	return &Provisioner{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		spec:      spec,
		logger:    logger.With("database", spec.Database),
	}
}

// Provision ensures the database, credential, collections and indexes exist.
// On failure it returns a nil report: completed steps are left in place.
func (p *Provisioner) Provision(ctx context.Context) (*domain.ProvisionReport, error) {
	report, err := p.run(ctx, false)

	if report != nil {
		p.recordRun(ctx, report, err)
	}
	if err != nil {
		return nil, err
	}

	if p.publisher != nil {
		if err := p.publisher.PublishProvisioned(ctx, report); err != nil {
			p.logger.Warn("failed to publish provisioned event", "error", err)
		}
	}

	return report, nil
}

// Check compares the store against the declared schema without mutating it.
// The run is recorded in the ledger as a dry run.
func (p *Provisioner) Check(ctx context.Context) (*domain.ProvisionReport, error) {
	report, err := p.run(ctx, true)

	if report != nil {
		p.recordRun(ctx, report, err)
	}
	if err != nil {
		return nil, err
	}

	return report, nil
}

// run returns a partial report alongside step failures so the ledger can
// record them; connection and validation failures yield no report.
func (p *Provisioner) run(ctx context.Context, dryRun bool) (*domain.ProvisionReport, error) {
	startTime := time.Now()

	if err := p.spec.Validate(); err != nil {
		return nil, err
	}
	indexes, coalesced, err := p.spec.NormalizedIndexes()
	if err != nil {
		return nil, err
	}

	p.logger.Info("starting provisioning",
		"username", p.spec.Credential.Username,
		"collections", len(p.spec.Collections),
		"indexes", len(indexes),
		"dry_run", dryRun,
	)

	if err := p.store.Ping(ctx); err != nil {
		if !errors.Is(err, domain.ErrConnection) {
			err = fmt.Errorf("%w: %w", domain.ErrConnection, err)
		}
		return nil, &domain.StepError{Step: domain.StepConnect, Entity: p.spec.Database, Err: err}
	}

	report := &domain.ProvisionReport{
		Database:    p.spec.Database,
		Username:    p.spec.Credential.Username,
		Collections: slices.Clone(p.spec.Collections),
		DryRun:      dryRun,
		StartedAt:   startTime,
	}

	if err := p.ensureCredential(ctx, report); err != nil {
		return report, err
	}

	for _, name := range p.spec.Collections {
		if err := p.ensureCollection(ctx, report, name); err != nil {
			return report, err
		}
	}

	for _, name := range p.spec.Collections {
		if err := p.ensureIndexes(ctx, report, name, domain.IndexesFor(indexes, name)); err != nil {
			return report, err
		}
	}
	for _, idx := range coalesced {
		report.Record(domain.StepIndex, idx.Describe(), domain.OutcomeCoalesced)
	}

	report.Duration = time.Since(startTime)

	p.logger.Info("provisioning completed",
		"created", report.Count("", domain.OutcomeCreated),
		"unchanged", report.Count("", domain.OutcomeUnchanged),
		"coalesced", report.Count("", domain.OutcomeCoalesced),
		"missing", report.Count("", domain.OutcomeMissing),
		"duration", report.Duration,
	)

	return report, nil
}

func (p *Provisioner) ensureCredential(ctx context.Context, report *domain.ProvisionReport) error {
	want := p.spec.Credential
	stepErr := func(err error) error {
		return &domain.StepError{Step: domain.StepCredential, Entity: want.Username, Err: err}
	}

	existing, err := p.store.GetUser(ctx, p.spec.Database, want.Username)
	if err != nil {
		return stepErr(fmt.Errorf("look up user: %w", err))
	}

	if existing == nil {
		if report.DryRun {
			report.Record(domain.StepCredential, want.Username, domain.OutcomeMissing)
			return nil
		}

		err := p.store.CreateUser(ctx, p.spec.Database, want)
		if err == nil {
			p.logger.Info("created user", "username", want.Username, "roles", roleNames(want.Roles))
			report.Record(domain.StepCredential, want.Username, domain.OutcomeCreated)
			return nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return stepErr(fmt.Errorf("create user: %w", err))
		}

		// Another provisioner created it first; compare what it created.
		existing, err = p.store.GetUser(ctx, p.spec.Database, want.Username)
		if err != nil {
			return stepErr(fmt.Errorf("look up user: %w", err))
		}
		if existing == nil {
			return stepErr(fmt.Errorf("%w: user reported as existing but not found", domain.ErrConflict))
		}
	}

	if !sameRoles(existing.Roles, want.Roles) {
		return stepErr(fmt.Errorf("%w: user has roles %v, want %v",
			domain.ErrConflict, roleNames(existing.Roles), roleNames(want.Roles)))
	}

	p.logger.Debug("user already exists", "username", want.Username)
	report.Record(domain.StepCredential, want.Username, domain.OutcomeUnchanged)
	return nil
}

func (p *Provisioner) ensureCollection(ctx context.Context, report *domain.ProvisionReport, name string) error {
	stepErr := func(err error) error {
		return &domain.StepError{Step: domain.StepCollection, Entity: name, Err: err}
	}

	exists, err := p.store.CollectionExists(ctx, p.spec.Database, name)
	if err != nil {
		return stepErr(fmt.Errorf("list collections: %w", err))
	}
	if exists {
		report.Record(domain.StepCollection, name, domain.OutcomeUnchanged)
		return nil
	}
	if report.DryRun {
		report.Record(domain.StepCollection, name, domain.OutcomeMissing)
		return nil
	}

	err = p.store.CreateCollection(ctx, p.spec.Database, name)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		report.Record(domain.StepCollection, name, domain.OutcomeUnchanged)
	case err != nil:
		return stepErr(fmt.Errorf("create collection: %w", err))
	default:
		p.logger.Info("created collection", "collection", name)
		report.Record(domain.StepCollection, name, domain.OutcomeCreated)
	}
	return nil
}

func (p *Provisioner) ensureIndexes(ctx context.Context, report *domain.ProvisionReport, collection string, wanted []domain.IndexSpec) error {
	if len(wanted) == 0 {
		return nil
	}

	// A collection missing in check mode has no indexes to list.
	collectionMissing := slices.Contains(report.Steps, domain.StepResult{
		Step:    domain.StepCollection,
		Entity:  collection,
		Outcome: domain.OutcomeMissing,
	})

	var existing []domain.IndexSpec
	if !collectionMissing {
		var err error
		existing, err = p.store.ListIndexes(ctx, p.spec.Database, collection)
		if err != nil {
			return &domain.StepError{Step: domain.StepIndex, Entity: collection, Err: fmt.Errorf("list indexes: %w", err)}
		}
	}

	for _, want := range wanted {
		if err := p.ensureIndex(ctx, report, want, existing); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) ensureIndex(ctx context.Context, report *domain.ProvisionReport, want domain.IndexSpec, existing []domain.IndexSpec) error {
	entity := want.Describe()
	stepErr := func(err error) error {
		return &domain.StepError{Step: domain.StepIndex, Entity: entity, Err: err}
	}

	match, found := matchIndex(want, existing)
	if found {
		if !match.Equivalent(want) {
			return stepErr(fmt.Errorf("%w: existing index %s", domain.ErrConflict, match.Describe()))
		}
		report.Record(domain.StepIndex, entity, domain.OutcomeUnchanged)
		return nil
	}

	if report.DryRun {
		report.Record(domain.StepIndex, entity, domain.OutcomeMissing)
		return nil
	}

	if err := p.store.CreateIndex(ctx, p.spec.Database, want); err != nil {
		return stepErr(fmt.Errorf("create index: %w", err))
	}

	p.logger.Info("created index", "collection", want.Collection, "index", want.IndexName(), "keys", want.KeyPattern())
	report.Record(domain.StepIndex, entity, domain.OutcomeCreated)
	return nil
}

func (p *Provisioner) recordRun(ctx context.Context, report *domain.ProvisionReport, runErr error) {
	if p.ledger == nil {
		return
	}
	if report.Duration == 0 {
		report.Duration = time.Since(report.StartedAt)
	}

	runID, err := p.ledger.RecordRun(ctx, report, runErr)
	if err != nil {
		p.logger.Warn("failed to record provisioning run", "error", err)
		return
	}
	p.logger.Debug("recorded provisioning run", "run_id", runID)
}

// matchIndex finds an existing index sharing want's key pattern, falling
// back to one sharing its name.
func matchIndex(want domain.IndexSpec, existing []domain.IndexSpec) (domain.IndexSpec, bool) {
	for _, idx := range existing {
		if idx.SameKeys(want) {
			return idx, true
		}
	}
	for _, idx := range existing {
		if idx.IndexName() == want.IndexName() {
			return idx, true
		}
	}
	return domain.IndexSpec{}, false
}

func sameRoles(a, b []domain.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for _, r := range a {
		if !slices.Contains(b, r) {
			return false
		}
	}
	return true
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return names
}
