package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enricher/internal/store"
)

var (
	leadsCompany    string
	leadsLimit      int
	leadsOffset     int
	leadsProfileURL string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored lead records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("leads"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if leadsProfileURL != "" {
			rec, err := st.Get(ctx, leadsProfileURL)
			if err != nil {
				return err
			}
			return writeIndented(rec)
		}

		recs, err := st.List(ctx, store.ListFilter{
			Company: leadsCompany,
			Limit:   leadsLimit,
			Offset:  leadsOffset,
		})
		if err != nil {
			return err
		}
		return writeIndented(recs)
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsCompany, "company", "", "only leads at this company")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", store.DefaultListLimit, "max records to return")
	leadsCmd.Flags().IntVar(&leadsOffset, "offset", 0, "records to skip")
	leadsCmd.Flags().StringVar(&leadsProfileURL, "profile-url", "", "show a single lead")
	rootCmd.AddCommand(leadsCmd)
}
