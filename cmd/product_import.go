package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"skald/internal/clix"
	"skald/internal/services"
)

var importAsync bool

var productImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Bulk import products from a JSON or YAML file",
	Long: `Imports every product in the file, embedding and charging each one.
Rows that fail are reported and skipped; the rest are still imported.
With --async the file is handed to the worker and a job ID is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		drafts, err := clix.ReadProductFile(args[0])
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if importAsync {
			if appInstance.JobClient == nil {
				return fmt.Errorf("--async requires redis.addr to be configured")
			}
			id, err := appInstance.JobClient.EnqueueImport(cmd.Context(), tenant, drafts)
			if err != nil {
				return fmt.Errorf("failed to enqueue import: %w", err)
			}
			fmt.Fprintf(out, "Enqueued import of %d products as job %s\n", len(drafts), id)
			return nil
		}

		bar := progressbar.NewOptions(len(drafts),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Importing[reset]"),
		)
		res, err := appInstance.ImportService.BulkAdd(cmd.Context(), tenant, drafts, services.BulkOptions{
			OnProgress: func(done, total int) { _ = bar.Set(done) },
		})
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return describeError(err)
		}

		for _, msg := range res.Errors {
			fmt.Fprintf(out, "  - %s: %s\n", color.RedString("ERROR"), msg)
		}
		fmt.Fprintf(out, "%s %d of %d products. Balance: $%s\n", color.GreenString("Imported"), len(res.Added), len(drafts), res.Balance)
		if res.Cancelled {
			fmt.Fprintln(out, color.YellowString("Import was cancelled before finishing."))
		}
		return nil
	},
}

func init() {
	productCmd.AddCommand(productImportCmd)
	productImportCmd.Flags().BoolVar(&importAsync, "async", false, "Run the import on the background worker")
}
