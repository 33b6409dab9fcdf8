package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/identity"
)

var listParams identity.ListParams

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List observed identities",
	Long: `Lists observed identities with the same filters and sort fields the dashboard
uses. Filters: pendingReview, highRisk, activeTemporal, expired.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listParams.SearchTerm, "search", "", "match id, status or zone")
	f.StringVar(&listParams.FilterType, "filter", "", "filter type")
	f.StringVar(&listParams.SortField, "sort", "", "sort field, e.g. lastSeenAt or accessCount")
	f.StringVar(&listParams.SortDirection, "direction", "desc", "asc or desc")
	f.IntVar(&listParams.Page, "page", 1, "page number")
	f.IntVar(&listParams.PageSize, "page-size", 20, "rows per page")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	page, q, err := identity.NewDirectory(store, cfg.Observed.HighRiskDenials).List(ctx, listParams)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	c := page.Counts
	fmt.Fprintf(out, "total %d | pending review %d | high risk %d | active %d | expired %d\n\n",
		c.AbsoluteTotal, c.PendingReview, c.HighRisk, c.ActiveTemporal, c.Expired)

	fmt.Fprintf(out, "%-36s  %-15s  %6s  %6s  %-20s  %s\n", "ID", "STATUS", "SEEN", "DENIED", "EXPIRES", "ZONES")
	for _, o := range page.Items {
		fmt.Fprintf(out, "%-36s  %-15s  %6d  %6d  %-20s  %s\n",
			o.ID, o.Status, o.AccessCount, o.ConsecutiveDeniedAccesses,
			o.ExpiresAt.Format(time.RFC3339), strings.Join(o.LastAccessedZones, ","))
	}
	fmt.Fprintf(out, "\npage %d, %d of %d matching\n", q.Page, len(page.Items), page.FilteredTotal)
	return nil
}
