package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/Zerofisher/chargelog/pkg/ingest"
)

type stat struct {
	name  string
	value int
}

// printResult writes the counters of a pipeline run as an aligned table.
func printResult(w io.Writer, res *ingest.Result) error {
	stats := []stat{
		{"records", res.Records},
		{"rows", res.Total},
		{"inserted", res.Success},
		{"duplicates", res.Duplicates},
		{"failed", res.Failed},
		{"healed", res.Healed},
		{"skipped", res.Skipped},
	}
	switch res.Pipeline {
	case "locations":
		stats = append(stats, stat{"plugType fallbacks", res.FallbackPlugTypes})
	case "availability":
		stats = append(stats, stat{"plugs", res.Plugs}, stat{"aggregates", res.Aggregated})
	case "prices":
		stats = append(stats, stat{"price groups created", res.PriceGroupsCreated})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s run %s\n", res.Pipeline, res.RunID)
	for _, s := range stats {
		fmt.Fprintf(tw, "  %s\t%s\n", s.name, humanize.Comma(int64(s.value)))
	}
	fmt.Fprintf(tw, "  duration\t%s\n", res.Duration.Round(time.Millisecond))
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
