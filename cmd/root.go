package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var BuildNumber = "unknown"

var rootCmd = &cobra.Command{
	Use:   "pol",
	Short: "pol - peer-to-peer proof of latency",
	Long: `pol measures a cryptographically attestable lower bound on the
latency between two peers. Each peer runs a verifiable delay function from
a jointly derived starting point and caps the other's computation; the
difference in sequential squarings is the latency estimate, and both peers
sign the result.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
