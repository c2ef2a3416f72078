package output

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/valuegraph/engine/pkg/analysis"
	"github.com/valuegraph/engine/pkg/model"
)

// PrintGraphReport prints a colorized summary of a snapshot: counts per
// kind and stage, plus any structural issues.
func PrintGraphReport(path string, snap model.Snapshot, issues []analysis.Issue) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("Living Value Graph - Snapshot Report")
	bold.Println("====================================")
	fmt.Printf("File: %s\n", path)
	fmt.Printf("Revision: %d\n", snap.Revision)
	fmt.Printf("Nodes: %d  Edges: %d\n", len(snap.Nodes), len(snap.Edges))
	fmt.Println()

	byKind := make(map[model.NodeKind]int)
	byStage := make(map[model.Stage]int)
	for _, n := range snap.Nodes {
		byKind[n.Kind]++
		byStage[n.Stage]++
	}

	cyan.Println("By kind:")
	printCounts(byKind)
	cyan.Println("By stage:")
	printCounts(byStage)

	if len(issues) == 0 {
		green.Println("No structural issues found")
		return
	}
	yellow.Printf("%d issue(s):\n", len(issues))
	for _, issue := range issues {
		line := fmt.Sprintf("  [%s] %s", issue.Kind, issue.Message)
		if issue.Severity == "warning" {
			red.Println(line)
		} else {
			yellow.Println(line)
		}
	}
}

func printCounts[K ~string](counts map[K]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-14s %d\n", k, counts[K(k)])
	}
}
