package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var decisionHeader = []string{
	"id", "session_id", "time", "iteration", "kind", "symbol", "side", "quantity", "price",
	"allowed", "code", "reason", "status", "order_id", "error", "daily_pnl", "open_positions",
}

// WriteDecisionsCSV exports decisions with a header row.
func WriteDecisionsCSV(w io.Writer, recs []DecisionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(decisionHeader); err != nil {
		return err
	}
	for _, d := range recs {
		err := cw.Write([]string{
			d.ID,
			d.SessionID,
			d.Time.Format(time.RFC3339),
			strconv.Itoa(d.Iteration),
			d.Kind,
			d.Symbol,
			d.Side,
			strconv.Itoa(d.Quantity),
			f(d.Price),
			strconv.FormatBool(d.Allowed),
			d.Code,
			d.Reason,
			d.Status,
			d.OrderID,
			d.Error,
			f(d.DailyPnL),
			strconv.Itoa(d.OpenPositions),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}
