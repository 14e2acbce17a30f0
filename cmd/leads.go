package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-finder/internal/model"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Review and update leads",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads by descending score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := leadFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads patch --

var leadsPatchCmd = &cobra.Command{
	Use:   "patch <lead-id>",
	Short: "Set a lead's status, notes or tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid lead id %q", args[0])
		}
		var patch model.LeadPatch
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			status := model.LeadStatus(s)
			patch.Status = &status
		}
		if cmd.Flags().Changed("notes") {
			n, _ := cmd.Flags().GetString("notes")
			patch.Notes = &n
		}
		if cmd.Flags().Changed("tags") {
			tags, _ := cmd.Flags().GetStringSlice("tags")
			patch.Tags = &tags
		}
		if patch.Empty() {
			return eris.New("nothing to update: pass --status, --notes or --tags")
		}
		if err := patch.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.PatchLead(ctx, id, patch)
		if err != nil {
			return eris.Wrap(err, "leads patch")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	f := leadsListCmd.Flags()
	f.String("q", "", "free-text match over name, handle and website")
	f.String("status", "", "filter by status")
	f.String("source", "", "filter by source (x, instagram, google_maps, manual)")
	f.Int("min-score", -1, "minimum lead score")
	f.String("website-verdict", "", "filter by website verdict (good, weak, broken, unknown)")
	f.Int("max-website-score", -1, "maximum website score")
	f.Int("limit", 50, "max number of leads")
	f.Int("offset", 0, "leads to skip")
	f.Bool("json", false, "print JSON instead of a table")

	leadsPatchCmd.Flags().String("status", "", "new status ("+statusList()+")")
	leadsPatchCmd.Flags().String("notes", "", "replacement notes")
	leadsPatchCmd.Flags().StringSlice("tags", nil, "replacement tags, comma separated (empty clears)")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsPatchCmd)
	rootCmd.AddCommand(leadsCmd)
}

func leadFilterFromFlags(cmd *cobra.Command) (model.LeadFilter, error) {
	f := cmd.Flags()
	q, _ := f.GetString("q")
	status, _ := f.GetString("status")
	src, _ := f.GetString("source")
	verdict, _ := f.GetString("website-verdict")
	minScore, _ := f.GetInt("min-score")
	maxWebsite, _ := f.GetInt("max-website-score")
	limit, _ := f.GetInt("limit")
	offset, _ := f.GetInt("offset")

	filter := model.LeadFilter{
		Query:          q,
		Status:         model.LeadStatus(status),
		Source:         model.Source(src),
		WebsiteVerdict: model.WebsiteVerdict(verdict),
		Limit:          limit,
		Offset:         offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, model.Validationf("unknown lead status %q", status)
	}
	if minScore >= 0 {
		filter.MinScore = &minScore
	}
	if maxWebsite >= 0 {
		filter.MaxWebsiteScore = &maxWebsite
	}
	return filter, nil
}

func statusList() string {
	names := make([]string, len(model.LeadStatuses))
	for i, st := range model.LeadStatuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// formatLeadsList writes a tabular list of leads to w.
func formatLeadsList(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCORE\tSOURCE\tNAME\tSTATUS\tWEBSITE\tPHONE")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t----\t------\t-------\t-----")

	for _, l := range leads {
		name := l.Name
		if name == "" {
			name = l.Handle
		}
		site := "-"
		if l.Website != "" {
			site = truncate(l.Website, 40)
			if l.WebsiteVerdict != "" {
				site += " (" + string(l.WebsiteVerdict) + ")"
			}
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Score, l.Source, truncate(name, 30), l.Status, site, l.Phone)
	}
	_ = w.Flush()
}
