package cli

import (
	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [category...]",
		Short: "Download recent recalls and their details",
		Long:  "Download the recent recall listing and every recall's details, staging both under the data directory. Categories: 1 food, 2 vehicles, 3 health products, 4 consumer products.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.categories(args)
			if err != nil {
				return err
			}
			return a.forEach(cmd.Context(), cmd.OutOrStdout(), cats, a.fetchStep)
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [category...]",
		Short: "Strip HTML markup from fetched recalls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.categories(args)
			if err != nil {
				return err
			}
			return a.forEach(cmd.Context(), cmd.OutOrStdout(), cats, a.cleanStep)
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var dryRun, assumeYes bool
	cmd := &cobra.Command{
		Use:   "upload [category...]",
		Short: "Load cleaned recalls into the DynamoDB table",
		Long:  "Load the cleaned recalls of each category into the table, retrying items DynamoDB leaves unprocessed. With --dry-run the batch requests are written to {category}-DEBUG.json instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.categories(args)
			if err != nil {
				return err
			}
			return a.forEach(cmd.Context(), cmd.OutOrStdout(), cats, a.uploadStep(dryRun, assumeYes))
		},
	}
	addUploadFlags(cmd, &dryRun, &assumeYes)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var dryRun, assumeYes bool
	cmd := &cobra.Command{
		Use:   "run [category...]",
		Short: "Fetch, clean and upload in one go",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.categories(args)
			if err != nil {
				return err
			}
			return a.forEach(cmd.Context(), cmd.OutOrStdout(), cats,
				a.fetchStep, a.cleanStep, a.uploadStep(dryRun, assumeYes))
		},
	}
	addUploadFlags(cmd, &dryRun, &assumeYes)
	return cmd
}

func addUploadFlags(cmd *cobra.Command, dryRun, assumeYes *bool) {
	cmd.Flags().BoolVar(dryRun, "dry-run", false, "write the batch requests to a debug file instead of sending them")
	cmd.Flags().BoolVarP(assumeYes, "yes", "y", false, "create the table without asking if it is missing")
}
