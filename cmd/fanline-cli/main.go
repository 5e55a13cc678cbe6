// Fanline CLI — инструмент командной строки для управления
// instances и кампаниями рассылок через HTTP API.
//
// Использование:
//
//	fanline [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	instance  Управление instances
//	campaign  Управление кампаниями
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fanline/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "fanline",
		Short:         "Fanline CLI — bulk messaging fleet tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewInstanceCmd(clientFn, outputFn),
		cli.NewCampaignCmd(clientFn, outputFn),
		cli.NewMediaCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
