package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/nlamirault/probes-policy/internal/policy"
	"github.com/nlamirault/probes-policy/internal/util"
)

var (
	checkFiles []string
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Pre-check whether manifests would be admitted",
		Long: `Evaluate manifest files against the probes policy.

Examples:
  # Check a manifest file
  probectl check -f deployment.yaml

  # Check several files and output as JSON
  probectl check -f deployment.yaml -f job.yaml -o json`,
		RunE: runCheck,
	}

	cmd.Flags().StringArrayVarP(&checkFiles, "filename", "f", nil, "Manifest file to check (required, repeatable)")
	cmd.MarkFlagRequired("filename")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	evaluator := policy.NewEvaluator(nil)
	report := CheckReport{}

	for _, file := range checkFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}

		for _, doc := range splitDocuments(data) {
			report.Results = append(report.Results, checkDocument(evaluator, file, doc))
		}
	}

	report.Total = len(report.Results)
	for _, r := range report.Results {
		if !r.Allowed {
			report.Rejected++
		}
	}

	if err := outputResult(report, outputFmt); err != nil {
		return err
	}

	if report.Rejected > 0 {
		return fmt.Errorf("%d of %d manifests would be rejected", report.Rejected, report.Total)
	}
	return nil
}

// checkDocument evaluates one YAML document and describes the outcome.
func checkDocument(evaluator *policy.Evaluator, file string, doc []byte) CheckResult {
	result := CheckResult{
		Manifest: ManifestInfo{File: file},
	}

	raw, err := yaml.YAMLToJSON(doc)
	if err != nil {
		// The webhook rejects what it cannot parse; so does the checker.
		result.Message = policy.RejectionMessageUnparsable
		return result
	}

	var manifest map[string]interface{}
	if err := yaml.Unmarshal(raw, &manifest); err == nil {
		result.Manifest.Kind = util.SafeStringFromMap(manifest, "kind")
		result.Manifest.Name = util.SafeNestedString(manifest, "metadata", "name")
		result.Manifest.Namespace = util.SafeNestedString(manifest, "metadata", "namespace")
	}

	decision := evaluator.Evaluate(raw)
	result.Allowed = decision.Allowed
	result.Message = decision.Message
	return result
}

// splitDocuments splits a manifest file into its YAML documents.
// Empty documents are dropped.
func splitDocuments(data []byte) [][]byte {
	parts := strings.Split("\n"+string(data), "\n---")

	var docs [][]byte
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		docs = append(docs, []byte(part))
	}
	return docs
}
