package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skald/internal/clix"
	"skald/internal/models"
	"skald/internal/services"
)

var (
	addName          string
	addDescription   string
	addImageURL      string
	addProductURL    string
	addSkipEmbedding bool
	searchCount      int
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage and search a project's products",
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add one product, embedding it and charging the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		tags, err := clix.ParseTags(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		res, err := appInstance.ImportService.AddProduct(cmd.Context(), tenant, services.AddProductParams{
			Draft: models.ProductDraft{
				Name:        addName,
				Description: addDescription,
				Tags:        tags,
				ImageURL:    addImageURL,
				ProductURL:  addProductURL,
			},
			SkipEmbedding: addSkipEmbedding,
		})
		if err != nil {
			return describeError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s product %s (%s)\n", color.GreenString("Added"), res.Product.Name, res.Product.ID)
		if res.Charge != nil {
			fmt.Fprintf(out, "Charged $%s for %d tokens\n", res.Charge.Amount, res.Charge.Tokens)
		}
		fmt.Fprintf(out, "Balance: $%s\n", res.Balance)
		return nil
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's products",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		products, err := appInstance.CatalogService.List(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(products) == 0 {
			fmt.Fprintln(out, "No products found.")
			return nil
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"ID", "Name", "Tags", "Embedded", "Created At"})
		table.SetBorder(true)
		for _, p := range products {
			table.Append([]string{
				p.ID.String(),
				p.Name,
				strings.Join(p.Tags, ", "),
				strconv.FormatBool(p.HasEmbedding()),
				p.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		fmt.Fprintf(out, "Displayed %d products.\n", len(products))
		return nil
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete [product_id]",
	Short: "Delete one of the project's products",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid product ID provided: '%s'", args[0])
		}
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		deleted, err := appInstance.CatalogService.Delete(cmd.Context(), tenant, id)
		if err != nil {
			return fmt.Errorf("failed to delete product %s: %w", id, err)
		}
		if !deleted {
			return fmt.Errorf("product %s not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully deleted product %s\n", id)
		return nil
	},
}

var productSearchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Rank the project's products by similarity to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{"query": query, "count": searchCount}).Debug("Starting product search")
		results, err := appInstance.SearchService.Search(cmd.Context(), tenant, services.SearchParams{Query: query, Count: searchCount})
		if err != nil {
			return describeError(err)
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No products found.")
			return nil
		}
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"#", "Similarity", "Name", "Product URL"})
		for i, r := range results {
			table.Append([]string{
				strconv.Itoa(i + 1),
				strconv.FormatFloat(r.Similarity, 'f', 4, 64),
				r.Product.Name,
				r.Product.ProductURL,
			})
		}
		table.Render()
		return nil
	},
}

// describeError adds the ledger numbers to balance rejections and the
// field list to validation failures.
func describeError(err error) error {
	var (
		ierr *models.InsufficientBalanceError
		verr *models.ValidationError
	)
	switch {
	case errors.As(err, &ierr):
		return fmt.Errorf("%s: remaining $%s, estimated $%s", color.RedString("insufficient balance"), ierr.Remaining, ierr.Estimated)
	case errors.As(err, &verr):
		lines := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			lines = append(lines, "  - "+f.Field+": "+f.Message)
		}
		return fmt.Errorf("%s\n%s", color.RedString("invalid product"), strings.Join(lines, "\n"))
	}
	return err
}

func init() {
	rootCmd.AddCommand(productCmd)
	productCmd.AddCommand(productAddCmd, productListCmd, productDeleteCmd, productSearchCmd)

	productAddCmd.Flags().StringVar(&addName, "name", "", "Product name")
	productAddCmd.Flags().StringVar(&addDescription, "description", "", "Product description (HTML is reduced to text)")
	productAddCmd.Flags().StringP("tags", "T", "", "Comma-separated list of tags")
	productAddCmd.Flags().StringVar(&addImageURL, "image-url", "", "Product image URL")
	productAddCmd.Flags().StringVar(&addProductURL, "product-url", "", "Product page URL")
	productAddCmd.Flags().BoolVar(&addSkipEmbedding, "skip-embedding", false, "Store without an embedding; the product is never charged and ranks last")

	productSearchCmd.Flags().IntVarP(&searchCount, "count", "n", 0, "Number of results (default from search.default_count)")
}
