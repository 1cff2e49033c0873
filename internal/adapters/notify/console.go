// Package notify prints cycle status and PnL reports to the console.
package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Console escribe el estado de la simulación a stdout.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// CycleStatusInput bundles everything PrintCycleStatus needs.
type CycleStatusInput struct {
	Cycle     int
	Ticks     int
	Proposed  int
	Admitted  int
	Rejected  int
	Closed    int
	State     domain.PortfolioState
	FeedStale bool
}

// PrintCycleStatus imprime una línea compacta por ciclo.
func (c *Console) PrintCycleStatus(in CycleStatusInput) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][SIM] cycle %d | %d ticks | %d proposed | +%d open | -%d closed | %d rejected | pos %d | real $%.4f | unreal $%.4f",
		now, in.Cycle, in.Ticks, in.Proposed, in.Admitted, in.Closed, in.Rejected,
		in.State.OpenCount, in.State.RealizedPnLUSD, in.State.UnrealizedPnLUSD)
	if in.FeedStale {
		sb.WriteString(" | !! stale feed")
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintPnLReport imprime el informe periódico: snapshot del portfolio y
// tabla de posiciones abiertas.
func (c *Console) PrintPnLReport(snap domain.PortfolioSnapshot, positions []domain.Position) {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  PNL REPORT  %s\n", snap.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  Open positions:   %d\n", snap.OpenCount)
	fmt.Fprintf(c.out, "  Realized PnL:     $%.4f\n", snap.RealizedPnLUSD)
	fmt.Fprintf(c.out, "  Unrealized PnL:   $%.4f\n", snap.UnrealizedPnLUSD)
	fmt.Fprintf(c.out, "  Total PnL:        $%.4f\n", snap.TotalPnLUSD)
	if snap.ClosedTotal > 0 {
		fmt.Fprintf(c.out, "  Success rate:     %.1f%% (%d/%d winners)\n",
			snap.SuccessRate*100, snap.ClosedWinners, snap.ClosedTotal)
	} else {
		fmt.Fprintf(c.out, "  Success rate:     n/a (no closed trades yet)\n")
	}

	if len(positions) > 0 {
		fmt.Fprintln(c.out)
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Asset", "Entry", "Now", "Target", "Stop", "Size$", "uPnL$", "Conf")
		for _, p := range positions {
			tbl.Append(
				compactName(p.AssetID, 22),
				fmt.Sprintf("%.4f", p.EntryOdds.Float64()),
				fmt.Sprintf("%.4f", p.CurrentOdds.Float64()),
				fmt.Sprintf("%.4f", p.TargetOdds.Float64()),
				fmt.Sprintf("%.4f", p.StopOdds.Float64()),
				fmt.Sprintf("%.2f", p.SizeUSD),
				fmt.Sprintf("%+.4f", p.UnrealizedPnLUSD),
				fmt.Sprintf("%d%%", p.Confidence),
			)
		}
		tbl.Render()
	}
	fmt.Fprintln(c.out)
}

// PrintRunSummary imprime el resumen final al terminar la simulación.
func (c *Console) PrintRunSummary(cycles int, snap domain.PortfolioSnapshot, state domain.PortfolioState, closed []domain.Position) {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  SIMULATION SUMMARY\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  Cycles completed:  %d\n", cycles)
	fmt.Fprintf(c.out, "  Trades attempted:  %d\n", state.TradesAttempted)
	fmt.Fprintf(c.out, "  Trades admitted:   %d\n", state.TradesAdmitted)
	fmt.Fprintf(c.out, "  Trades rejected:   %d\n", state.TradesRejected)
	fmt.Fprintf(c.out, "  Positions closed:  %d\n", state.ClosedTotal)
	fmt.Fprintf(c.out, "  Realized PnL:      $%.4f\n", snap.RealizedPnLUSD)
	fmt.Fprintf(c.out, "  Total PnL:         $%.4f\n", snap.TotalPnLUSD)
	if state.ClosedTotal > 0 {
		fmt.Fprintf(c.out, "  Success rate:      %.1f%% (%d/%d winners)\n",
			snap.SuccessRate*100, state.ClosedWinners, state.ClosedTotal)
	}

	if len(closed) > 0 {
		fmt.Fprintln(c.out)
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Asset", "Entry", "Exit", "Size$", "PnL$", "Reason")
		for _, p := range closed {
			tbl.Append(
				compactName(p.AssetID, 22),
				fmt.Sprintf("%.4f", p.EntryOdds.Float64()),
				fmt.Sprintf("%.4f", p.ExitOdds.Float64()),
				fmt.Sprintf("%.2f", p.SizeUSD),
				fmt.Sprintf("%+.4f", p.RealizedPnLUSD),
				p.CloseReason,
			)
		}
		tbl.Render()
	}
	fmt.Fprintln(c.out)
}

// PnLHistoryRow es una fila del histórico para el modo -report.
type PnLHistoryRow struct {
	RecordedAt       time.Time
	OpenCount        int
	RealizedPnLUSD   float64
	UnrealizedPnLUSD float64
	TotalPnLUSD      float64
	SuccessRate      float64
}

// PrintPnLHistory imprime el histórico de informes guardados en la base.
func (c *Console) PrintPnLHistory(reports []PnLHistoryRow) {
	if len(reports) == 0 {
		fmt.Fprintln(c.out, "\n  No PnL history yet. Run a simulation first.")
		return
	}

	fmt.Fprintf(c.out, "\n  PNL HISTORY (%d reports)\n\n", len(reports))
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Time", "Open", "Realized$", "Unrealized$", "Total$", "Win%")
	for _, r := range reports {
		tbl.Append(
			r.RecordedAt.Format("01-02 15:04"),
			fmt.Sprintf("%d", r.OpenCount),
			fmt.Sprintf("%+.4f", r.RealizedPnLUSD),
			fmt.Sprintf("%+.4f", r.UnrealizedPnLUSD),
			fmt.Sprintf("%+.4f", r.TotalPnLUSD),
			fmt.Sprintf("%.1f", r.SuccessRate*100),
		)
	}
	tbl.Render()

	first, last := reports[0], reports[len(reports)-1]
	fmt.Fprintf(c.out, "\n  Net change: $%+.4f over %s\n\n",
		last.TotalPnLUSD-first.TotalPnLUSD,
		last.RecordedAt.Sub(first.RecordedAt).Round(time.Minute))
}

// compactName recorta un identificador largo para la tabla.
func compactName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-2] + ".."
}
