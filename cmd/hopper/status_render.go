package main

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"hopper/internal/ipc"
)

var ruleTitle = cases.Title(language.English)

func renderStatus(resp *ipc.StatusResponse, colored bool) string {
	var b strings.Builder

	state := "stopped"
	if resp.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Daemon: %s (pid %d)\n", state, resp.PID)

	if resp.Processing {
		fmt.Fprintf(&b, "Pipeline: processing batch %s\n", resp.CurrentBatch)
	} else {
		b.WriteString("Pipeline: idle\n")
	}
	fmt.Fprintf(&b, "Queued files: %d\n", resp.QueuedFiles)
	fmt.Fprintf(&b, "Database: %s\n", resp.DatabasePath)
	fmt.Fprintf(&b, "API: http://%s\n", resp.APIBind)
	return b.String()
}

func renderProgress(resp *ipc.ProgressResponse) string {
	if !resp.Processing {
		return "No workflow currently running.\n"
	}
	if !resp.Available {
		return fmt.Sprintf("Pipeline is running but progress is unavailable: %s\n", resp.Error)
	}

	snap := resp.Progress
	var b strings.Builder
	fmt.Fprintf(&b, "Jobs: %d total, %d completed, %d running, %d pending, %d failed\n",
		snap.TotalJobs, snap.CompletedJobs, snap.RunningJobs, snap.PendingJobs, snap.FailedJobs)

	if len(snap.Rules) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(snap.Rules))
	for name := range snap.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rule := snap.Rules[name]
		done := fmt.Sprintf("%d/%d", rule.Completed, rule.Total)
		satisfied := ""
		if rule.AlreadySatisfied != nil {
			satisfied = fmt.Sprintf("%d", *rule.AlreadySatisfied)
		}
		rows = append(rows, []string{
			ruleTitle.String(strings.ReplaceAll(name, "_", " ")),
			done,
			fmt.Sprintf("%d", rule.Running),
			fmt.Sprintf("%d", rule.Failed),
			satisfied,
		})
	}

	b.WriteString(renderTable(
		[]string{"Stage", "Done", "Running", "Failed", "Cached"},
		rows, 1, 2, 3, 4,
	))
	b.WriteString("\n")
	return b.String()
}
