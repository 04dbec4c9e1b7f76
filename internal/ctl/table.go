package ctl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/types"
)

// PrintStandings renders a market's ranked rows.
func PrintStandings(w io.Writer, st types.Standings) error {
	fmt.Fprintf(w, "market %s (%s, %s) pot %.2f", st.MarketID, st.Status, st.Mode, st.Pot)
	if st.FrozenPools > 0 {
		fmt.Fprintf(w, ", %d pool(s) below minimum", st.FrozenPools)
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Participant", "Horse", "Predicted", "Stake", "Score", "Payout", "Net")
	for _, r := range st.Rows {
		if err := table.Append(
			strconv.Itoa(r.Rank),
			r.ParticipantID,
			r.Horse,
			r.PredictedDate,
			money(r.Stake),
			fmt.Sprintf("%.3f", r.Score),
			money(r.Payout),
			money(r.Net),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintOutcome renders an offline engine run in rank order.
func PrintOutcome(w io.Writer, out resolve.Outcome, participants map[string]string) error {
	fmt.Fprintf(w, "pot %.2f across %d pool(s), %d frozen\n", out.Pot, out.Pools, out.FrozenPools)

	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Entry", "Participant", "Pool", "Stake", "Score", "Payout", "Net")
	for _, r := range resolve.Standings(out.Results) {
		if err := table.Append(row(r, participants[r.EntryID])...); err != nil {
			return err
		}
	}
	return table.Render()
}

func row(r model.PayoutResult, participant string) []any {
	pool := r.Pool
	if pool == "" {
		pool = "-"
	}
	return []any{
		strconv.Itoa(r.Rank),
		r.EntryID,
		participant,
		pool,
		money(r.Stake),
		fmt.Sprintf("%.3f", r.Score),
		money(r.Payout),
		money(r.Net),
	}
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
