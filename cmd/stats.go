package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-finder/internal/model"
)

var statsSource string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts per pipeline status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx, model.Source(statsSource))
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		formatStats(os.Stdout, counts)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsSource, "source", "", "restrict counts to one source")
	rootCmd.AddCommand(statsCmd)
}

// formatStats writes the booked-appointment KPI and per-status counts to w.
func formatStats(out io.Writer, counts map[model.LeadStatus]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Appointments booked:\t%d\n", counts[model.LeadStatusAppointmentBooked])
	total := 0
	for _, s := range model.LeadStatuses {
		total += counts[s]
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, counts[s])
	}
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", total)
	_ = w.Flush()
}
