package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/model"
)

var processLead model.Lead

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Enrich a single lead",
	Example: `  lead-enricher process --profile-url https://www.linkedin.com/in/jane-doe \
    --first-name Jane --last-name Doe --title CTO --company ExampleCo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Service.Process(ctx, processLead)
		var dup *leads.DuplicateLeadError
		if errors.As(err, &dup) {
			zap.L().Info("lead already processed", zap.String("profile_url", dup.ProfileURL))
			return writeIndented(map[string]any{
				"profile_url": dup.ProfileURL,
				"is_new_lead": false,
			})
		}
		if err != nil {
			return err
		}
		return writeIndented(result)
	},
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processLead.ProfileURL, "profile-url", "", "profile URL of the lead (required)")
	f.StringVar(&processLead.FirstName, "first-name", "", "first name")
	f.StringVar(&processLead.LastName, "last-name", "", "last name")
	f.StringVar(&processLead.Title, "title", "", "job title")
	f.StringVar(&processLead.Company, "company", "", "company name")
	_ = processCmd.MarkFlagRequired("profile-url")
	rootCmd.AddCommand(processCmd)
}

func writeIndented(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
