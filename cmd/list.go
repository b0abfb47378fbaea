package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/chargelog/internal/config"
	"github.com/Zerofisher/chargelog/pkg/model"
	"github.com/Zerofisher/chargelog/pkg/query"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored locations and connector groups",
	Long:    `List the latest revision of stored locations and their connector groups.`,
	GroupID: "query",
}

// locations subcommand flags
var listSpeed string

var listLocationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List location ids",
	Example: `  chargelog list locations
  chargelog list locations --speed Rapid`,
	Args: cobra.NoArgs,
	RunE: runListLocations,
}

// groups subcommand flags
var (
	listWhere    string
	listLocation string
)

var listGroupsCmd = &cobra.Command{
	Use:     "groups",
	Aliases: []string{"connector-groups"},
	Short:   "List connector groups of the latest revisions",
	Long: `List connector groups of the latest revisions, optionally filtered by an
expression over locationId, revision, connectorGroup, plugType, speed and count.`,
	Example: `  chargelog list groups --where 'speed == "Rapid" && count >= 2'
  chargelog list groups --location L1`,
	Args: cobra.NoArgs,
	RunE: runListGroups,
}

// resolve command flags
var (
	resolvePlugType string
	resolveSpeed    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <locationId>",
	Short: "Find the latest connector group for a plug type and speed",
	Long: `Print the revision and connector group of the latest revision of a
location that carries the given plug type and speed. An unresolved lookup
prints found=false with revision and connector group 0.`,
	Example: `  chargelog resolve L1 --plug-type CCS --speed Fast`,
	Args:    cobra.ExactArgs(1),
	GroupID: "query",
	RunE:    runResolve,
}

func init() {
	listLocationsCmd.Flags().StringVarP(&listSpeed, "speed", "s", "",
		"Only locations with a connector group of this speed")

	listGroupsCmd.Flags().StringVarP(&listWhere, "where", "w", "",
		"Filter expression")
	listGroupsCmd.Flags().StringVarP(&listLocation, "location", "l", "",
		"Only this location")

	resolveCmd.Flags().StringVarP(&resolvePlugType, "plug-type", "p", "", "Plug type, e.g. CCS")
	resolveCmd.Flags().StringVarP(&resolveSpeed, "speed", "s", "", "Speed, e.g. Fast")
	_ = resolveCmd.MarkFlagRequired("plug-type")
	_ = resolveCmd.MarkFlagRequired("speed")

	listCmd.AddCommand(listLocationsCmd)
	listCmd.AddCommand(listGroupsCmd)
}

func runListLocations(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	r := a.Pipeline().Resolver()
	var ids []string
	if listSpeed != "" {
		ids, err = r.LocationsBySpeed(cmd.Context(), a.Store().DB(), config.NormalizeType(listSpeed))
	} else {
		ids, err = r.AllLocations(cmd.Context(), a.Store().DB())
	}
	if err != nil {
		return err
	}

	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runListGroups(cmd *cobra.Command, args []string) error {
	match, err := query.CompileFilter(listWhere)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	r := a.Pipeline().Resolver()
	var groups []*model.ConnectorGroupRow
	if listLocation != "" {
		groups, err = r.ConnectorGroupsFor(cmd.Context(), a.Store().DB(), listLocation)
	} else {
		groups, err = r.LatestConnectorGroups(cmd.Context(), a.Store().DB())
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tREVISION\tGROUP\tPLUG TYPE\tSPEED\tCOUNT")
	for _, g := range groups {
		if match != nil && !match(g) {
			continue
		}
		count := "-"
		if g.Count != nil {
			count = fmt.Sprint(*g.Count)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			g.LocationID, g.Revision, g.ConnectorGroup, deref(g.PlugType), deref(g.Speed), count)
	}
	return tw.Flush()
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Pipeline().Resolver().MatchingConnectorGroup(cmd.Context(), a.Store().DB(),
		args[0], resolvePlugType, config.NormalizeType(resolveSpeed))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), m)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
