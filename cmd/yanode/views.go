package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"yanode/internal/api"
	"yanode/internal/daemonctl"
)

var titleCase = cases.Title(language.English)

func renderStatus(out io.Writer, snap *daemonctl.Snapshot, colorize bool) {
	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range snap.Checks {
		fmt.Fprintln(out, renderStatusLine(check.Label, statusKindFromSeverity(check.Severity), check.Detail, colorize))
	}
	if !snap.Reachable {
		return
	}
	node := snap.Status.Node

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Node", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", nodeStatusKind(node.Status), titleCase.String(node.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Node ID", statusInfo, valueOr(node.NodeID, "unknown"), colorize))
	fmt.Fprintln(out, renderStatusLine("Wallet", statusInfo, valueOr(node.WalletAddress, "unknown"), colorize))
	fmt.Fprintln(out, renderStatusLine("Network", statusInfo, valueOr(node.Network, "unknown"), colorize))
	fmt.Fprintln(out, renderStatusLine("Pricing", statusInfo, formatPrice(node.Price), colorize))
	if snap.Status.APIAddr != "" {
		fmt.Fprintln(out, renderStatusLine("API", statusInfo, "http://"+snap.Status.APIAddr, colorize))
	}

	if len(node.Daemons) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(node.Daemons))
		for _, d := range node.Daemons {
			rows = append(rows, []string{d.Role, strconv.Itoa(d.PID), d.StartedAt})
		}
		fmt.Fprint(out, renderTable([]string{"Daemon", "PID", "Started"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Current Job", colorize) {
		fmt.Fprintln(out, line)
	}
	if node.Job == nil {
		fmt.Fprintln(out, "No job running")
	} else {
		fmt.Fprint(out, renderTable([]string{"Field", "Value"}, jobRows(node.Job), nil))
	}

	if len(node.Counters) > 0 {
		fmt.Fprintln(out)
		states := slices.Sorted(maps.Keys(node.Counters))
		rows := make([][]string, 0, len(states))
		for _, state := range states {
			rows = append(rows, []string{state, strconv.Itoa(node.Counters[state])})
		}
		fmt.Fprint(out, renderTable([]string{"Activity State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

func jobRows(job *api.Job) [][]string {
	rows := [][]string{
		{"Job", job.ID},
		{"Requestor", job.RequestorID},
		{"Status", job.Status},
		{"Reward", job.Reward + " GLM"},
		{"Paid", job.PaidTotal + " GLM"},
		{"Started", job.StartedAt},
	}
	if job.ActivityID != "" {
		rows = slices.Insert(rows, 1, []string{"Activity", job.ActivityID})
	}
	if ps := job.PaymentStatus; ps != nil {
		rows = append(rows, []string{"Invoice", fmt.Sprintf("%s (%s GLM)", ps.State, ps.Amount)})
	}
	return rows
}

func renderJobs(out io.Writer, records []api.JobRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No jobs recorded")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		finished := r.FinishedAt
		if finished == "" {
			finished = "running"
		}
		rows = append(rows, []string{
			r.Job.ID,
			r.Job.RequestorID,
			r.Job.Status,
			r.Job.Reward,
			r.Job.PaidTotal,
			r.Job.StartedAt,
			finished,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Job", "Requestor", "Status", "Reward", "Paid", "Started", "Finished"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func renderPayment(out io.Writer, p api.PaymentStatus) {
	token := valueOr(p.Token, "GLM")
	fmt.Fprintf(out, "Account: %s\n", valueOr(p.Account, "unknown"))
	fmt.Fprintf(out, "Network: %s (%s)\n", valueOr(p.Network, "unknown"), valueOr(p.Driver, "unknown"))
	fmt.Fprintf(out, "Balance: %s %s (reserved %s)\n", p.Amount, token, p.Reserved)
	rows := [][]string{
		{"Incoming", p.Incoming.Requested, p.Incoming.Accepted, p.Incoming.Confirmed},
		{"Outgoing", p.Outgoing.Requested, p.Outgoing.Accepted, p.Outgoing.Confirmed},
	}
	fmt.Fprint(out, renderTable(
		[]string{"Direction", "Requested", "Accepted", "Confirmed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
}

func formatPrice(p api.Price) string {
	parts := make([]string, 0, len(p.UsageVector)+1)
	if p.Fixed != "" {
		parts = append(parts, "start "+p.Fixed)
	}
	for i, name := range p.UsageVector {
		if i < len(p.Coefficients) {
			parts = append(parts, fmt.Sprintf("%s %s", name, p.Coefficients[i]))
		}
	}
	if len(parts) == 0 {
		return "not configured"
	}
	return strings.Join(parts, ", ") + " GLM"
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
