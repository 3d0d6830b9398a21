package compliance

import (
	"context"

	dErrors "custodia/pkg/domain-errors"
)

// SeedDefaultPacks installs the built-in regulation packs once. It no-ops
// when any pack already exists, so it is safe to run on every startup.
func (s *Service) SeedDefaultPacks(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "compliance.SeedDefaultPacks")
	defer span.End()

	count, err := s.store.CountPacks(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "count packs")
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "compliance packs already seeded", "packs", count)
		return nil
	}

	for _, seed := range defaultPacks() {
		pack, err := s.CreatePack(ctx, seed.pack)
		if err != nil {
			return err
		}
		for _, item := range seed.items {
			if _, err := s.AddChecklistItem(ctx, pack.ID, item); err != nil {
				return err
			}
		}
	}
	s.logger.InfoContext(ctx, "default compliance packs seeded", "packs", len(defaultPacks()))
	return nil
}

type packSeed struct {
	pack  PackParams
	items []ItemParams
}

func defaultPacks() []packSeed {
	return []packSeed{
		{
			pack: PackParams{
				Code:        "GDPR_CORE",
				Name:        "GDPR Core Compliance",
				Description: "Baseline GDPR obligations for EU data subjects.",
				Regulation:  "gdpr",
				Default:     true,
			},
			items: append(coreItems(),
				ItemParams{
					Category:  "governance",
					Title:     "Appoint a Data Protection Officer",
					Guidance:  "Required when core activities involve large-scale monitoring or special categories.",
					Priority:  PriorityHigh,
					Mandatory: true,
					DueDays:   intPtr(60),
					SortOrder: 100,
				},
				ItemParams{
					Category:         "transfers",
					Title:            "Document cross-border transfer mechanisms",
					Description:      "Record SCCs or adequacy decisions for every transfer outside the EEA.",
					Priority:         PriorityHigh,
					Mandatory:        true,
					RequiresEvidence: true,
					EvidenceTypes:    []string{"document"},
					DueDays:          intPtr(30),
					SortOrder:        110,
				},
			),
		},
		{
			pack: PackParams{
				Code:        "PDPA_SG_CORE",
				Name:        "PDPA Singapore Core Compliance",
				Description: "Baseline PDPA obligations for Singapore.",
				Regulation:  "pdpa_sg",
				Countries:   []string{"SG"},
				Default:     true,
			},
			items: append(coreItems(),
				ItemParams{
					Category:  "governance",
					Title:     "Register a Data Protection Officer with PDPC",
					Priority:  PriorityHigh,
					Mandatory: true,
					DueDays:   intPtr(30),
					SortOrder: 100,
				},
				ItemParams{
					Category:  "consent",
					Title:     "Check Do Not Call registry before outreach",
					Guidance:  "Applies to Singapore telephone numbers used for marketing.",
					Priority:  PriorityMedium,
					Mandatory: true,
					SortOrder: 110,
				},
			),
		},
		{
			pack: PackParams{
				Code:        "DPDP_CORE",
				Name:        "DPDP India Core Compliance",
				Description: "Baseline Digital Personal Data Protection Act obligations for India.",
				Regulation:  "dpdp",
				Countries:   []string{"IN"},
				Default:     true,
			},
			items: append(coreItems(),
				ItemParams{
					Category:         "consent",
					Title:            "Provide consent notices in scheduled languages",
					Priority:         PriorityHigh,
					Mandatory:        true,
					RequiresEvidence: true,
					EvidenceTypes:    []string{"screenshot", "document"},
					DueDays:          intPtr(45),
					SortOrder:        100,
				},
				ItemParams{
					Category:  "governance",
					Title:     "Establish grievance redressal channel",
					Priority:  PriorityMedium,
					Mandatory: true,
					DueDays:   intPtr(30),
					SortOrder: 110,
				},
			),
		},
		{
			pack: PackParams{
				Code:        "UAE_DPL_CORE",
				Name:        "UAE Data Protection Law Core Compliance",
				Description: "Baseline UAE federal data protection obligations.",
				Regulation:  "uae_dpl",
				Countries:   []string{"AE"},
				Default:     true,
			},
			items: append(coreItems(),
				ItemParams{
					Category:  "transfers",
					Title:     "Verify adequacy before transfers outside the UAE",
					Priority:  PriorityHigh,
					Mandatory: true,
					DueDays:   intPtr(30),
					SortOrder: 100,
				},
			),
		},
	}
}

// coreItems is the regulation-independent checklist shared by every default
// pack.
func coreItems() []ItemParams {
	return []ItemParams{
		{
			Category:         "records",
			Title:            "Maintain a record of processing activities",
			Priority:         PriorityCritical,
			Mandatory:        true,
			RequiresEvidence: true,
			EvidenceTypes:    []string{"document"},
			DueDays:          intPtr(30),
			SortOrder:        10,
		},
		{
			Category:  "security",
			Title:     "Implement field-level masking for sensitive data",
			Guidance:  "Mask PII and PHI fields in every non-privileged read path.",
			Priority:  PriorityCritical,
			Mandatory: true,
			DueDays:   intPtr(45),
			SortOrder: 20,
		},
		{
			Category:  "subject-rights",
			Title:     "Stand up a DSAR intake and tracking process",
			Priority:  PriorityHigh,
			Mandatory: true,
			DueDays:   intPtr(30),
			SortOrder: 30,
		},
		{
			Category:  "incident-response",
			Title:     "Define a breach notification runbook",
			Guidance:  "Must meet the 72-hour notification window from discovery.",
			Priority:  PriorityHigh,
			Mandatory: true,
			DueDays:   intPtr(60),
			SortOrder: 40,
		},
		{
			Category:         "consent",
			Title:            "Capture and version consent text at collection",
			Priority:         PriorityHigh,
			Mandatory:        true,
			RequiresEvidence: true,
			EvidenceTypes:    []string{"screenshot"},
			SortOrder:        50,
		},
		{
			Category:  "training",
			Title:     "Run annual privacy awareness training",
			Priority:  PriorityMedium,
			Mandatory: false,
			SortOrder: 60,
		},
	}
}

func intPtr(v int) *int {
	return &v
}
