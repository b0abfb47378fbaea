package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/chargelog/internal/config"
)

var scrapeCmd = &cobra.Command{
	Use:     "scrape",
	Short:   "Scrape the upstream API once",
	Long:    `Fetch documents from the upstream API and ingest them immediately.`,
	GroupID: "ingest",
}

var scrapeLocationsCmd = &cobra.Command{
	Use:     "locations",
	Short:   "Scrape the location list",
	Example: `  chargelog scrape locations`,
	Args:    cobra.NoArgs,
	RunE:    runScrapeLocations,
}

// availability subcommand flags
var scrapeSpeed string

var scrapeAvailabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Scrape live availability for one speed",
	Long: `Scrape availability for every location whose latest revision has a
connector group of the given speed. Run "scrape locations" first.`,
	Example: `  chargelog scrape availability --speed Rapid`,
	Args:    cobra.NoArgs,
	RunE:    runScrapeAvailability,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured scraper",
	Long: `Scrape the location list, then run the scraper named by the
configuration (SCRAPER_TYPE, RUN_MODE). In scheduled mode it runs until
interrupted.`,
	Example: `  RUN_MODE=scheduled SCRAPER_TYPE=rapid MINUTE_INTERVAL=5 chargelog run`,
	Args:    cobra.NoArgs,
	GroupID: "service",
	RunE:    runSchedule,
}

func init() {
	scrapeAvailabilityCmd.Flags().StringVarP(&scrapeSpeed, "speed", "s", "",
		"Charging speed: Standard, Fast, Rapid (default: scraper type from config)")

	scrapeCmd.AddCommand(scrapeLocationsCmd)
	scrapeCmd.AddCommand(scrapeAvailabilityCmd)
}

func runScrapeLocations(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.RunLocations(ctx)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}

func runScrapeAvailability(cmd *cobra.Command, args []string) error {
	speed := cfg.Scraper.Type
	if scrapeSpeed != "" {
		speed = config.NormalizeType(scrapeSpeed)
	}
	if !(config.ScraperConfig{Type: speed}).IsAvailability() {
		return fmt.Errorf("%w: %q is not a charging speed", config.ErrInvalidScraperType, speed)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.RunAvailability(ctx, speed)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.RunSchedule(ctx)
}
