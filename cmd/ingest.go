package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/chargelog/internal/app"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the database schema",
	Long:    `Create the database and any missing tables, indexes and views. Existing data is never touched.`,
	Example: `  chargelog init --db ./data/db/charging.db`,
	Args:    cobra.NoArgs,
	GroupID: "ingest",
	RunE:    runInit,
}

// ingest command flags
var ingestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <locations|availability|prices> <file>",
	Short: "Ingest a saved JSON document",
	Long: `Ingest a JSON document previously fetched from the upstream API.

  locations     map of locationId to location record
  availability  map of locationId to {"data": location record}
  prices        map of locationId to price record`,
	Example: `  chargelog ingest locations locations.json
  chargelog ingest availability rapid.json --json`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{app.KindLocations, app.KindAvailability, app.KindPrices},
	GroupID:   "ingest",
	RunE:      runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Print the run result as JSON")
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	created := a.Store().CreatedTables()
	out := cmd.OutOrStdout()
	if len(created) == 0 {
		fmt.Fprintf(out, "Database %s is up to date\n", a.Store().Path())
		return nil
	}
	fmt.Fprintf(out, "Database %s: created %d tables\n", a.Store().Path(), len(created))
	for _, t := range created {
		fmt.Fprintf(out, "  %s\n", t)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.IngestFile(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if ingestJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	return printResult(cmd.OutOrStdout(), res)
}
