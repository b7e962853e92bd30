package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Report formats a loading result as markdown.
func Report(source string, res *domain.LoadingResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", source)

	if res.Success() {
		sb.WriteString("**Result:** ready to start\n\n")
	} else {
		sb.WriteString("**Result:** blocked\n\n")
	}

	if errs := slices.Concat(res.LoadErrors, res.ConfigErrors); len(errs) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, err := range errs {
			fmt.Fprintf(&sb, "- %s\n", oneLine(err.Error()))
		}
		sb.WriteString("\n")
	}

	if len(res.Validation.Findings) > 0 {
		sb.WriteString("## Findings\n\n")
		sb.WriteString("| Severity | Kind | State | Event | Message |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, f := range res.Validation.Findings {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				f.Severity, f.Kind, cell(f.StateID), cell(f.Event), cell(f.Message))
		}
		sb.WriteString("\n")
	}

	if len(res.Outcomes) > 0 {
		sb.WriteString("## Outcomes\n\n")
		ids := make([]string, 0, len(res.Outcomes))
		for id := range res.Outcomes {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			names := make([]string, 0, len(res.Outcomes[id]))
			for _, s := range res.Outcomes[id] {
				names = append(names, "`"+s.String()+"`")
			}
			fmt.Fprintf(&sb, "- **%s**: %s\n", id, strings.Join(names, ", "))
		}
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "; ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", "\\|")
}
