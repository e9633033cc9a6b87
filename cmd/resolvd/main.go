// Command resolvd is the recursive, DNSSEC-validating resolver's CLI,
// replacing the teacher's bare cmd/solvere and cmd/solvd mains with a
// cobra command tree (serve, query, flush-cache).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "resolvd",
	Short: "A recursive, DNSSEC-validating DNS resolver",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (defaults built in if omitted)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(flushCacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
