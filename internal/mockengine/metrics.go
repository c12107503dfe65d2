package mockengine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// metricFunc computes one metric from the posted transaction rows
type metricFunc func(rows []map[string]interface{}) interface{}

// knowledgeDef is one catalog entry together with its computation
type knowledgeDef struct {
	ID          string
	Description string
	InputField  string
	Compute     metricFunc
}

// knowledgeBase is the deterministic catalog served by the mock engine.
// Descriptions double as resolver fodder, so they spell out the business
// terms the scoring tier keys on.
var knowledgeBase = []knowledgeDef{
	{
		ID:          "metric-total-income",
		Description: "total income: sum of all inflow transaction amounts",
		InputField:  "transactions",
		Compute:     totalByDirection("in"),
	},
	{
		ID:          "metric-total-expense",
		Description: "total expense: sum of all outflow transaction amounts",
		InputField:  "transactions",
		Compute:     totalByDirection("out"),
	},
	{
		ID:          "metric-transaction-count",
		Description: "count of transactions in the data set, split by direction",
		InputField:  "transactions",
		Compute:     transactionCount,
	},
	{
		ID:          "metric-account-count",
		Description: "count of distinct accounts appearing in the transactions",
		InputField:  "transactions",
		Compute:     distinctCount("txAccount"),
	},
	{
		ID:          "metric-top3-counterparty-income",
		Description: "ranking of the top 3 counterparties by income received",
		InputField:  "transactions",
		Compute:     topCounterparties(3, "in"),
	},
	{
		ID:          "metric-top3-counterparty-expense",
		Description: "ranking of the top 3 counterparties by expense paid",
		InputField:  "transactions",
		Compute:     topCounterparties(3, "out"),
	},
	{
		ID:          "metric-income-expense-ratio",
		Description: "ratio of total income to total expense over the period",
		InputField:  "transactions",
		Compute:     incomeExpenseRatio,
	},
	{
		ID:          "metric-monthly-income-trend",
		Description: "monthly income trend: total income grouped by calendar month",
		InputField:  "transactions",
		Compute:     monthlyTrend("in"),
	},
	{
		ID:          "metric-time-range",
		Description: "time range: earliest and latest transaction dates and the span of activity",
		InputField:  "transactions",
		Compute:     timeRange,
	},
	{
		ID:          "metric-average-transaction",
		Description: "average transaction amount across the whole data set",
		InputField:  "transactions",
		Compute:     averageAmount,
	},
}

func rowAmount(row map[string]interface{}) float64 {
	switch v := row["txAmount"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func rowString(row map[string]interface{}, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

func totalByDirection(direction string) metricFunc {
	return func(rows []map[string]interface{}) interface{} {
		total := 0.0
		n := 0
		for _, row := range rows {
			if rowString(row, "txDirection") == direction {
				total += rowAmount(row)
				n++
			}
		}
		return map[string]interface{}{"total": total, "transactions": n}
	}
}

func transactionCount(rows []map[string]interface{}) interface{} {
	in, out := 0, 0
	for _, row := range rows {
		switch rowString(row, "txDirection") {
		case "in":
			in++
		case "out":
			out++
		}
	}
	return map[string]interface{}{"total": len(rows), "inflow": in, "outflow": out}
}

func distinctCount(key string) metricFunc {
	return func(rows []map[string]interface{}) interface{} {
		seen := map[string]bool{}
		for _, row := range rows {
			if v := rowString(row, key); v != "" {
				seen[v] = true
			}
		}
		return map[string]interface{}{"count": len(seen)}
	}
}

func topCounterparties(n int, direction string) metricFunc {
	return func(rows []map[string]interface{}) interface{} {
		totals := map[string]float64{}
		for _, row := range rows {
			if rowString(row, "txDirection") != direction {
				continue
			}
			if cp := rowString(row, "txCounterparty"); cp != "" {
				totals[cp] += rowAmount(row)
			}
		}
		type entry struct {
			Counterparty string  `json:"counterparty"`
			Total        float64 `json:"total"`
		}
		ranked := make([]entry, 0, len(totals))
		for cp, total := range totals {
			ranked = append(ranked, entry{cp, total})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Total != ranked[j].Total {
				return ranked[i].Total > ranked[j].Total
			}
			return ranked[i].Counterparty < ranked[j].Counterparty
		})
		if len(ranked) > n {
			ranked = ranked[:n]
		}
		return map[string]interface{}{"ranking": ranked}
	}
}

func incomeExpenseRatio(rows []map[string]interface{}) interface{} {
	income := totalByDirection("in")(rows).(map[string]interface{})["total"].(float64)
	expense := totalByDirection("out")(rows).(map[string]interface{})["total"].(float64)
	ratio := 0.0
	if expense > 0 {
		ratio = income / expense
	}
	return map[string]interface{}{"income": income, "expense": expense, "ratio": ratio}
}

func monthlyTrend(direction string) metricFunc {
	return func(rows []map[string]interface{}) interface{} {
		byMonth := map[string]float64{}
		for _, row := range rows {
			if rowString(row, "txDirection") != direction {
				continue
			}
			date := rowString(row, "txDate")
			if len(date) < 7 {
				continue
			}
			byMonth[date[:7]] += rowAmount(row)
		}
		months := make([]string, 0, len(byMonth))
		for m := range byMonth {
			months = append(months, m)
		}
		sort.Strings(months)
		trend := make([]map[string]interface{}, 0, len(months))
		for _, m := range months {
			trend = append(trend, map[string]interface{}{"month": m, "total": byMonth[m]})
		}
		return map[string]interface{}{"trend": trend}
	}
}

func timeRange(rows []map[string]interface{}) interface{} {
	var dates []string
	for _, row := range rows {
		if d := rowString(row, "txDate"); d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return map[string]interface{}{"from": "", "to": "", "days": 0}
	}
	sort.Strings(dates)
	return map[string]interface{}{"from": dates[0], "to": dates[len(dates)-1], "days": spanDays(dates[0], dates[len(dates)-1])}
}

func averageAmount(rows []map[string]interface{}) interface{} {
	if len(rows) == 0 {
		return map[string]interface{}{"average": 0.0}
	}
	total := 0.0
	for _, row := range rows {
		total += rowAmount(row)
	}
	return map[string]interface{}{"average": total / float64(len(rows))}
}

// spanDays gives an inclusive day count for YYYY-MM-DD bounds, 0 when the
// dates do not parse
func spanDays(from, to string) int {
	parse := func(s string) (int, bool) {
		parts := strings.SplitN(s, "-", 3)
		if len(parts) != 3 {
			return 0, false
		}
		y, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		d, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, false
		}
		return y*372 + m*31 + d, true
	}
	a, ok1 := parse(from)
	b, ok2 := parse(to)
	if !ok1 || !ok2 || b < a {
		return 0
	}
	return b - a + 1
}

func findKnowledge(id string) (knowledgeDef, error) {
	for _, k := range knowledgeBase {
		if k.ID == id {
			return k, nil
		}
	}
	return knowledgeDef{}, fmt.Errorf("unknown knowledge id %q", id)
}
