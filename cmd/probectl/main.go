// probectl is a CLI tool for checking workloads against the probes
// admission policy without a cluster.
//
// Installation:
//
//	go build -o probectl ./cmd/probectl
//	mv probectl /usr/local/bin/
//
// Usage:
//
//	probectl check -f deployment.yaml
//	probectl check -f pod.yaml -f job.yaml -o json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	outputFmt string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "probectl",
		Short: "Check workloads against the probes admission policy",
		Long: `probectl evaluates Kubernetes manifests against the probes policy:
every container must declare both a liveness and a readiness probe.

It runs the same rule the admission webhook enforces, so a manifest that
passes here will be admitted by the webhook.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
