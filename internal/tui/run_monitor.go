package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/services"
)

var _ services.Observer = (*RunMonitor)(nil)

// RunMonitor renders a valuation run. It implements services.Observer.
type RunMonitor struct {
	program *tea.Program
}

func NewRunMonitor(roots []models.OrganizationRoot, opts ...tea.ProgramOption) *RunMonitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &RunMonitor{program: tea.NewProgram(NewModel(roots), opts...)}
}

func (rm *RunMonitor) send(msg tea.Msg) {
	if rm.program != nil {
		rm.program.Send(msg)
	}
}

func (rm *RunMonitor) AddLog(message string) {
	rm.send(LogMessage{Message: message})
}

func (rm *RunMonitor) OrganizationStarted(root models.OrganizationRoot) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageDiscovering})
	rm.AddLog(fmt.Sprintf("🔍 Discovering treasuries of %s", root.Label()))
}

func (rm *RunMonitor) OrganizationCached(root models.OrganizationRoot, v models.OrganizationValuation) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageCached, Total: v.TotalValueUSD})
	rm.AddLog(fmt.Sprintf("📦 Stored TVL reused for %s", root.Label()))
}

func (rm *RunMonitor) TreasuriesDiscovered(root models.OrganizationRoot, count int) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageValuating, Treasuries: count, Total: decimal.Zero})
	rm.AddLog(fmt.Sprintf("🏦 Found %d treasuries for %s", count, root.Label()))
}

func (rm *RunMonitor) TreasuryValued(root models.OrganizationRoot, done, total int, v models.TreasuryValuation) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageValuating, Treasuries: total, Valued: done, Total: v.Total})
	if n := v.UnpricedCount(); n > 0 {
		rm.AddLog(fmt.Sprintf("⚠️ %d holdings of %s priced as zero", n, v.Address))
	}
}

func (rm *RunMonitor) OrganizationDone(root models.OrganizationRoot, total decimal.Decimal) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageDone, Total: total})
	rm.AddLog(fmt.Sprintf("✅ %s: $%s", root.Label(), total.StringFixed(2)))
}

func (rm *RunMonitor) OrganizationFailed(root models.OrganizationRoot, err error) {
	rm.send(OrganizationUpdate{ProgramID: root.ProgramID, Stage: StageFailed, Error: err})
	rm.AddLog(fmt.Sprintf("❌ %s failed: %v", root.Label(), err))
}

// Run executes job while rendering the monitor and returns the job's outcome.
// Quitting the monitor cancels the job.
func (rm *RunMonitor) Run(ctx context.Context, job func(ctx context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		total decimal.Decimal
		err   error
	}
	result := make(chan outcome, 1)

	go func() {
		total, err := job(ctx)
		rm.send(RunFinished{Total: total, Error: err})
		if err != nil {
			rm.AddLog(fmt.Sprintf("❌ Run failed: %v", err))
		} else {
			rm.AddLog(fmt.Sprintf("🎉 Total TVL: $%s", total.StringFixed(2)))
		}
		result <- outcome{total: total, err: err}
		rm.program.Quit()
	}()

	if _, err := rm.program.Run(); err != nil {
		cancel()
		return decimal.Zero, fmt.Errorf("failed to run TUI: %w", err)
	}

	// The user may have quit before the job finished.
	cancel()
	res := <-result
	return res.total, res.err
}
