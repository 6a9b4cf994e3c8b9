package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"stockpilot/internal/models"
)

// Product commands talk to a running server over its HTTP API so that every
// quantity mutation goes through the alert pipeline.
func newProductCmd(app *App) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage inventory products",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8385", "server base URL")

	cmd.AddCommand(newProductAddCmd(&serverURL))
	cmd.AddCommand(newProductAdjustCmd(&serverURL))
	cmd.AddCommand(newProductListCmd(&serverURL))

	return cmd
}

func newProductAddCmd(serverURL *string) *cobra.Command {
	var quantity, reorderLevel int
	var avgPerDay float64

	cmd := &cobra.Command{
		Use:   "add <sku> <name>",
		Short: "Add a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Product{
				SKU:                 args[0],
				Name:                args[1],
				Quantity:            quantity,
				ReorderLevel:        reorderLevel,
				AvgDailyConsumption: avgPerDay,
			}

			var created models.Product
			if err := postJSON(*serverURL+"/api/products", p, &created); err != nil {
				return err
			}

			fmt.Printf("created product %d: %s (%s), quantity %d\n",
				created.ID, created.Name, created.SKU, created.Quantity)
			return nil
		},
	}

	cmd.Flags().IntVar(&quantity, "quantity", 0, "initial stock on hand")
	cmd.Flags().IntVar(&reorderLevel, "reorder-level", 0, "reorder threshold (0 = use default)")
	cmd.Flags().Float64Var(&avgPerDay, "daily-consumption", 0, "average units consumed per day (0 = use default)")

	return cmd
}

func newProductAdjustCmd(serverURL *string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "adjust <id> <delta>",
		Short: "Adjust a product's quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}

			var updated models.Product
			url := fmt.Sprintf("%s/api/products/%d/adjust", *serverURL, id)
			body := map[string]any{"delta": delta, "reason": reason}
			if err := postJSON(url, body, &updated); err != nil {
				return err
			}

			fmt.Printf("product %d (%s) now at quantity %d\n", updated.ID, updated.Name, updated.Quantity)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual adjustment", "reason recorded with the movement")

	return cmd
}

func newProductListCmd(serverURL *string) *cobra.Command {
	var belowReorder bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := *serverURL + "/api/products"

			resp, err := http.Get(url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			var products []models.Product
			if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
				return err
			}

			for _, p := range products {
				if belowReorder && p.Quantity > p.ReorderLevel {
					continue
				}
				fmt.Printf("%4d  %-12s  %-30s  qty %5d  reorder %4d\n",
					p.ID, p.SKU, p.Name, p.Quantity, p.ReorderLevel)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&belowReorder, "below-reorder", false, "only show products at or below reorder level")

	return cmd
}

func postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
