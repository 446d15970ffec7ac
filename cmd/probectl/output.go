package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"
)

// CheckReport is the result of a check command.
type CheckReport struct {
	Results  []CheckResult `json:"results"`
	Rejected int           `json:"rejected"`
	Total    int           `json:"total"`
}

// CheckResult is the verdict for one manifest document.
type CheckResult struct {
	Manifest ManifestInfo `json:"manifest"`
	Allowed  bool         `json:"allowed"`
	Message  string       `json:"message,omitempty"`
}

// ManifestInfo describes the checked manifest document.
type ManifestInfo struct {
	File      string `json:"file"`
	Kind      string `json:"kind,omitempty"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// outputResult outputs the result in the specified format.
func outputResult(result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	default:
		return outputTable(result)
	}
}

func outputJSON(result interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func outputTable(result interface{}) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case CheckReport:
		return outputCheckTable(w, r)
	default:
		// Fall back to JSON for unknown types
		return outputJSON(result)
	}
}

func outputCheckTable(w *tabwriter.Writer, r CheckReport) error {
	fmt.Fprintln(w, "FILE\tKIND\tNAME\tNAMESPACE\tRESULT\tDETAIL")
	for _, res := range r.Results {
		status := "ACCEPTED"
		if !res.Allowed {
			status = "REJECTED"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Manifest.File,
			orDash(res.Manifest.Kind),
			orDash(res.Manifest.Name),
			orDash(res.Manifest.Namespace),
			status,
			firstLine(res.Message),
		)
	}
	fmt.Fprintf(w, "\nTOTAL\t%d\nREJECTED\t%d\n", r.Total, r.Rejected)
	return nil
}

// firstLine truncates an aggregated violation message to its first line for
// table output. The full message is available in json and yaml formats.
func firstLine(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.SplitN(s, "\n", 2)
	if len(lines) > 1 {
		return lines[0] + " ..."
	}
	return lines[0]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
