package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/merchant"
)

// DedupReport summarises one deduplication pass.
type DedupReport struct {
	DryRun  bool
	Scanned int
	Plans   []merchant.MergePlan
	Removed int
}

// DedupService folds duplicate merchant records into one survivor per
// brand.
type DedupService struct {
	merchants MerchantStore
	resolver  *merchant.Resolver
	publisher MergePublisher
}

// NewDedupService wires the service. publisher may be nil.
func NewDedupService(merchants MerchantStore, resolver *merchant.Resolver, publisher MergePublisher) *DedupService {
	return &DedupService{
		merchants: merchants,
		resolver:  resolver,
		publisher: publisher,
	}
}

// Run plans a deduplication of the current merchants and, unless dryRun,
// executes every plan in one storage transaction. A successful run is
// announced per plan; publish failures are logged only since the merge is
// already committed.
func (s *DedupService) Run(ctx context.Context, dryRun bool) (DedupReport, error) {
	merchants, err := s.merchants.ListMerchants(ctx)
	if err != nil {
		return DedupReport{}, fmt.Errorf("list merchants: %w", err)
	}

	plans := s.resolver.PlanDeduplication(merchants)
	report := DedupReport{DryRun: dryRun, Scanned: len(merchants), Plans: plans}
	for _, p := range plans {
		report.Removed += len(p.DuplicateIDs)
	}

	if dryRun || len(plans) == 0 {
		slog.InfoContext(ctx, "Deduplication planned",
			"dry_run", dryRun,
			"merchants", report.Scanned,
			"plans", len(plans),
			"duplicates", report.Removed)
		return report, nil
	}

	if err := s.merchants.ApplyMergePlans(ctx, plans); err != nil {
		return report, fmt.Errorf("apply merge plans: %w", err)
	}

	slog.InfoContext(ctx, "Deduplication applied",
		"merchants", report.Scanned,
		"plans", len(plans),
		"removed", report.Removed)

	if s.publisher == nil {
		return report, nil
	}
	for _, p := range plans {
		if err := s.publisher.PublishMerchantsMerged(ctx, p.Brand, p.SurvivorID, p.DuplicateIDs); err != nil {
			slog.ErrorContext(ctx, "Failed to publish merge message",
				"brand", p.Brand,
				"survivor_id", p.SurvivorID,
				"error", err)
		}
	}
	return report, nil
}
