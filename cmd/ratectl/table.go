package main

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
)

const timeLayout = "2006-01-02 15:04"

func renderRates(w io.Writer, list []rates.Record) error {
	return render(w, []string{"Rate ID", "Gold/g", "Silver/g", "Active", "Updated By", "Created"}, rateRows(list))
}

func renderOrders(w io.Writer, list []orders.Order) error {
	return render(w, []string{"Order", "Customer", "Status", "Priority", "Payment", "Total", "Created"}, orderRows(list))
}

func renderStats(w io.Writer, st orders.Stats) error {
	return render(w, []string{"Metric", "Value"}, statsRows(st))
}

func render(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func rateRows(list []rates.Record) [][]string {
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		id := r.RateID
		if id == "" {
			id = "(none recorded)"
		}
		rows = append(rows, []string{
			id,
			money(r.GoldRate),
			money(r.SilverRate),
			strconv.FormatBool(r.IsActive),
			r.UpdatedBy,
			stamp(r.CreatedAt),
		})
	}
	return rows
}

func orderRows(list []orders.Order) [][]string {
	rows := make([][]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, []string{
			o.OrderNumber,
			o.CustomerName,
			string(o.Status),
			string(o.Priority),
			string(o.PaymentStatus),
			money(o.Total),
			stamp(o.CreatedAt),
		})
	}
	return rows
}

func statsRows(st orders.Stats) [][]string {
	rows := [][]string{
		{"total", strconv.Itoa(st.Total)},
		{"today", strconv.Itoa(st.Today)},
		{"attention", strconv.Itoa(st.Attention)},
		{"revenue", money(st.Revenue)},
	}
	for _, s := range orders.AllStatuses {
		rows = append(rows, []string{string(s), strconv.Itoa(st.ByStatus[s])})
	}
	return rows
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
