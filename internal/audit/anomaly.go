package audit

import (
	"context"
	"time"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// Anomaly thresholds. Counts must exceed (not merely reach) a threshold for
// the corresponding condition to fire.
const (
	hourlyVolumeThreshold = 50
	dailyVolumeThreshold  = 200
	hourlyPHIThreshold    = 10

	hourlyVolumeScore = 30
	dailyVolumeScore  = 20
	hourlyPHIScore    = 40

	maxRiskScore = 100
)

// AnomalyResult is the outcome of one heuristic evaluation. It is advisory;
// callers decide what to do with it.
type AnomalyResult struct {
	Unusual   bool
	RiskScore int
	Reasons   []string
	Window    ActivityWindow
}

// DetectUnusualAccess scores an accessor's recent activity over fixed trailing
// windows. This is a heuristic, not a policy gate.
func (s *Service) DetectUnusualAccess(ctx context.Context, accessorID id.UserID, tenantID *id.TenantID) (AnomalyResult, error) {
	ctx, span := s.tracer.Start(ctx, "audit.DetectUnusualAccess")
	defer span.End()

	window, err := s.store.AccessorActivity(ctx, accessorID, tenantID, time.Now())
	if err != nil {
		return AnomalyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load accessor activity")
	}

	result := AnomalyResult{Window: window}
	if window.LastHour > hourlyVolumeThreshold {
		result.RiskScore += hourlyVolumeScore
		result.Reasons = append(result.Reasons, "high volume of access in the last hour")
	}
	if window.LastDay > dailyVolumeThreshold {
		result.RiskScore += dailyVolumeScore
		result.Reasons = append(result.Reasons, "high volume of access in the last 24 hours")
	}
	if window.PHILastHour > hourlyPHIThreshold {
		result.RiskScore += hourlyPHIScore
		result.Reasons = append(result.Reasons, "unusually many PHI records touched in the last hour")
	}
	if result.RiskScore > maxRiskScore {
		result.RiskScore = maxRiskScore
	}
	result.Unusual = len(result.Reasons) > 0
	if result.Unusual && s.metrics != nil {
		s.metrics.AnomaliesFlagged.Inc()
	}
	return result, nil
}
