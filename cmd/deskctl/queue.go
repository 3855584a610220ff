package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogogo1024/campus-desk/internal/queue"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Inspect and repair office queues"}
	cmd.AddCommand(newQueueShowCmd(), newQueueRenumberCmd())
	return cmd
}

func newQueueShowCmd() *cobra.Command {
	var office, status string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one office queue, or per-office counts without --office",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()
			m, err := e.manager(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if office == "" {
				rows, err := m.StatsAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "OFFICE\tNAME\tTOTAL\tPENDING\tIN REVIEW\tCOMPLETED")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", r.OfficeID, r.OfficeName, r.Total, r.Pending, r.InReview, r.Completed)
				}
				return nil
			}

			var statuses []string
			for _, s := range strings.Split(status, ",") {
				if s = strings.TrimSpace(s); s != "" {
					statuses = append(statuses, s)
				}
			}
			v, err := m.GetQueue(ctx, office, statuses)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s (%s): %d queued\n", v.OfficeName, v.OfficeID, len(v.Tickets))
			fmt.Fprintln(w, "#\tTICKET\tSTATUS\tPRIORITY\tQUEUED AT\tTITLE")
			for _, t := range v.Tickets {
				pos, at := "-", "-"
				if t.QueueNumber != nil {
					pos = fmt.Sprint(*t.QueueNumber)
				}
				if t.QueuedAt != nil {
					at = time.UnixMilli(*t.QueuedAt).UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", pos, t.TicketNumber, t.Status, t.Priority, at, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&office, "office", "", "office id")
	cmd.Flags().StringVar(&status, "status", "", "comma separated statuses (default Pending,In Review)")
	return cmd
}

func newQueueRenumberCmd() *cobra.Command {
	var office string
	var all bool
	cmd := &cobra.Command{
		Use:   "renumber",
		Short: "Compact queue numbers to 1..N",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (office == "") == !all {
				return errors.New("exactly one of --office or --all is required")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()
			m, err := e.manager(ctx)
			if err != nil {
				return err
			}
			var results []queue.RenumberResult
			if all {
				if results, err = m.RenumberAll(ctx); err != nil {
					return err
				}
			} else {
				res, err := m.Renumber(ctx, office)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d queued, %d renumbered\n", r.OfficeID, r.Total, r.Renumbered)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&office, "office", "", "office id")
	cmd.Flags().BoolVar(&all, "all", false, "every office, including orphaned ones")
	return cmd
}
