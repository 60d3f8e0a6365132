package render

import (
	"fmt"
	"strings"
	"time"

	"qihuo/internal/pkg/text"
	"qihuo/internal/types"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	argumentWidth  = 160
	rationaleWidth = 60
)

// Report 输出一次运行的完整文字报告：模块结果、合成信号、辩论、交易方案、风控、最终决定与元数据。
func Report(rec types.DecisionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s 决策报告\n", rec.Request.Instrument, rec.Request.AsOfDate())
	fmt.Fprintf(&b, "结果: %s", outcomeLabel(rec))
	if rec.Abort != nil {
		fmt.Fprintf(&b, " (%s)", rec.Abort)
	}
	b.WriteString("\n\n")

	section(&b, "分析模块", producersTable(rec.Producers))
	if rec.Composite != nil {
		c := rec.Composite
		section(&b, "合成信号", fmt.Sprintf("方向 %s  score=%.3f  confidence=%.3f  参与 %d 个\n%s",
			c.Direction(), c.Score, c.Confidence, c.Contributors, contributionsTable(*c)))
	}
	if len(rec.Debate) > 0 || rec.Verdict != nil {
		section(&b, "多空辩论", debateText(rec))
	}
	if len(rec.Proposals) > 0 {
		section(&b, "交易方案与风控", revisionsTable(rec.Proposals, rec.RiskChain))
	}
	if rec.Authority != nil {
		verdict := "否决"
		if rec.Authority.Accepted {
			verdict = "接受"
		}
		section(&b, "最终决定", fmt.Sprintf("%s: %s", verdict, rec.Authority.Reason))
	}
	if rec.Accepted != nil {
		p := rec.Accepted
		section(&b, "执行方案", fmt.Sprintf("%s size=%.2f%% entry=%s stop=%s\n%s",
			p.Side, p.SizeFraction*100, price(p.Entry), price(p.Stop), p.Rationale))
	}
	section(&b, "运行信息", metadata(rec))
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n%s\n\n", title, body)
}

func outcomeLabel(rec types.DecisionRecord) string {
	if rec.Executed() {
		return "EXECUTED"
	}
	return "ABORTED"
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func producersTable(results []types.ProducerResult) string {
	if len(results) == 0 {
		return ""
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Producer", "Status", "Signal", "Confidence", "Elapsed", "Detail"})
	for _, r := range results {
		detail := r.Rationale
		if !r.Succeeded() {
			detail = r.Error
		}
		tw.AppendRow(table.Row{
			r.ProducerID, r.Status, r.Signal, fmt.Sprintf("%.2f", r.Confidence),
			r.Elapsed.Truncate(time.Millisecond), text.Truncate(detail, rationaleWidth),
		})
	}
	return tw.Render()
}

func contributionsTable(c types.CompositeSignal) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Producer", "Weight", "Normalized", "Signal", "Confidence"})
	for _, ct := range c.Contributions {
		tw.AppendRow(table.Row{ct.ProducerID, fmt.Sprintf("%.3f", ct.OriginalWeight), fmt.Sprintf("%.4f", ct.Weight), ct.Signal, fmt.Sprintf("%.2f", ct.Confidence)})
	}
	for _, ex := range c.Excluded {
		tw.AppendRow(table.Row{ex.ProducerID, "-", "excluded", "-", text.Truncate(ex.Reason, rationaleWidth)})
	}
	return tw.Render()
}

func debateText(rec types.DecisionRecord) string {
	var b strings.Builder
	notes := make(map[int]types.ModeratorNote, len(rec.ModeratorNotes))
	for _, n := range rec.ModeratorNotes {
		notes[n.Round] = n
	}
	round := 0
	for _, arg := range rec.Debate {
		if arg.Round != round {
			if n, ok := notes[round]; ok && round > 0 {
				fmt.Fprintf(&b, "  主持人: conclude=%v %s\n", n.Conclude, n.Rationale)
			}
			round = arg.Round
			fmt.Fprintf(&b, "第 %d 轮\n", round)
		}
		fmt.Fprintf(&b, "  [%s %.2f] %s\n", arg.Role, arg.Confidence, text.Truncate(arg.Text, argumentWidth))
	}
	if n, ok := notes[round]; ok && round > 0 {
		fmt.Fprintf(&b, "  主持人: conclude=%v %s\n", n.Conclude, n.Rationale)
	}
	if v := rec.Verdict; v != nil {
		fmt.Fprintf(&b, "裁决: %s confidence=%.2f rounds=%d termination=%s", v.Direction, v.Confidence, v.RoundsUsed, v.Termination)
		if v.LowConfidence {
			b.WriteString(" [LOW CONFIDENCE]")
		}
		if v.Rationale != "" {
			fmt.Fprintf(&b, "\n%s", v.Rationale)
		}
	}
	return b.String()
}

func revisionsTable(proposals []types.Proposal, risk []types.RiskDecision) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Rev", "Side", "Size", "Entry", "Stop", "Risk", "Violations"})
	for i, p := range proposals {
		outcome, reason := "-", ""
		if i < len(risk) {
			outcome = string(risk[i].Outcome)
			reason = risk[i].Reason()
		}
		tw.AppendRow(table.Row{p.Revision, p.Side, fmt.Sprintf("%.4f", p.SizeFraction), price(p.Entry), price(p.Stop), outcome, text.Truncate(reason, rationaleWidth)})
	}
	return tw.Render()
}

func metadata(rec types.DecisionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run_id: %s\n", rec.RunID)
	fmt.Fprintf(&b, "producers: %s\n", strings.Join(rec.Request.Producers, ","))
	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(&b, "started: %s elapsed: %s\n", rec.StartedAt.Format(time.RFC3339), rec.FinishedAt.Sub(rec.StartedAt).Truncate(time.Millisecond))
	}
	for _, st := range rec.Stages {
		fmt.Fprintf(&b, "  %-15s %s\n", st.Stage, st.FinishedAt.Sub(st.StartedAt).Truncate(time.Millisecond))
	}
	return b.String()
}

func price(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// RecordsTable 以表格列出多条记录，用于 show 命令。
func RecordsTable(recs []types.DecisionRecord) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Run", "Instrument", "As Of", "Outcome", "Side", "Size", "Verdict", "Abort"})
	for _, rec := range recs {
		side, size := "-", "-"
		if rec.Accepted != nil {
			side = string(rec.Accepted.Side)
			size = fmt.Sprintf("%.4f", rec.Accepted.SizeFraction)
		}
		verdict := "-"
		if rec.Verdict != nil {
			verdict = fmt.Sprintf("%s %.2f", rec.Verdict.Direction, rec.Verdict.Confidence)
		}
		tw.AppendRow(table.Row{rec.RunID, rec.Request.Instrument, rec.Request.AsOfDate(), rec.Outcome, side, size, verdict, rec.AbortReasonText()})
	}
	return tw.Render()
}
