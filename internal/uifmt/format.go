package uifmt

import (
	"fmt"
	"strings"
)

func Ratio(used, total int) string {
	return fmt.Sprintf("%d/%d", used, total)
}

func Percent(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v)
}

func Hours(v float64) string {
	return fmt.Sprintf("%.1fh", v)
}

// NodeList joins the first show node names and summarizes the rest.
func NodeList(nodes []string, show int) string {
	if len(nodes) == 0 {
		return "-"
	}
	if show <= 0 || len(nodes) <= show {
		return strings.Join(nodes, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(nodes[:show], ", "), len(nodes)-show)
}
