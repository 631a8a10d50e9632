package retrieval

import (
	"log/slog"

	"github.com/poiesic/docrag/core"
)

// Monitor observes the progress of a retrieval.
type Monitor interface {
	Start(query string, documents []*core.Document)
	TierSkipped(tier Tier, reason string)
	TierFailed(tier Tier, err error)
	TierHit(tier Tier, evidence []core.Source)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ []*core.Document) {}
func (n *noopMonitor) TierSkipped(_ Tier, _ string)       {}
func (n *noopMonitor) TierFailed(_ Tier, _ error)         {}
func (n *noopMonitor) TierHit(_ Tier, _ []core.Source)    {}
func (n *noopMonitor) Finish(_ *Result)                   {}

// LogMonitor reports every retrieval step at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query string, documents []*core.Document) {
	m.logger().Debug("retrieval started", "query", query, "documents", len(documents))
}

func (m *LogMonitor) TierSkipped(tier Tier, reason string) {
	m.logger().Debug("tier skipped", "tier", tier, "reason", reason)
}

func (m *LogMonitor) TierFailed(tier Tier, err error) {
	m.logger().Debug("tier failed", "tier", tier, "err", err)
}

func (m *LogMonitor) TierHit(tier Tier, evidence []core.Source) {
	m.logger().Debug("tier hit", "tier", tier, "evidence", len(evidence))
}

func (m *LogMonitor) Finish(result *Result) {
	m.logger().Debug("retrieval finished", "tier", result.Tier, "evidence", len(result.Evidence))
}
