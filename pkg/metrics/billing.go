package metrics

import "github.com/prometheus/client_golang/prometheus"

// BillingMetrics tracks subscription workflow outcomes and ledger drift.
type BillingMetrics struct {
	workflows    *prometheus.CounterVec
	settlement   *prometheus.CounterVec
	balanceDrift *prometheus.GaugeVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	workflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_workflows_total",
		Help: "Subscription workflow executions by workflow and outcome.",
	}, []string{"workflow", "outcome"})
	settlement := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_warnings_total",
		Help: "Post-commit settlement steps that failed and require manual follow-up.",
	}, []string{"step"})
	balanceDrift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "token_balance_drift",
		Help: "Difference in tokens between the local ledger sum and the wallet balance.",
	}, []string{"user_id"})
	reg.MustRegister(workflows, settlement, balanceDrift)
	return &BillingMetrics{
		workflows:    workflows,
		settlement:   settlement,
		balanceDrift: balanceDrift,
	}
}

// IncWorkflow increments the outcome counter for the named workflow.
func (b *BillingMetrics) IncWorkflow(workflow, outcome string) {
	if b == nil || b.workflows == nil {
		return
	}
	b.workflows.WithLabelValues(normalizeLabel(workflow), normalizeLabel(outcome)).Inc()
}

// IncSettlementWarning records a failed post-commit settlement step.
func (b *BillingMetrics) IncSettlementWarning(step string) {
	if b == nil || b.settlement == nil {
		return
	}
	b.settlement.WithLabelValues(normalizeLabel(step)).Inc()
}

// SetBalanceDrift records the token drift observed for a user during reconciliation.
func (b *BillingMetrics) SetBalanceDrift(userID string, tokens float64) {
	if b == nil || b.balanceDrift == nil {
		return
	}
	b.balanceDrift.WithLabelValues(normalizeLabel(userID)).Set(tokens)
}
