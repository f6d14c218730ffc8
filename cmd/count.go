package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/element-counter/internal/api"
)

func newCountCmd() *cobra.Command {
	var rawURL, element string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Counts one element on one page and prints the JSON response",
		Example: `  element-counter count --url https://example.com --element div`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			res, err := appInstance.GetCounter().Count(cmd.Context(), rawURL, element)
			if err != nil {
				failure := api.NewFailureResponse(err)
				if encErr := enc.Encode(failure); encErr != nil {
					return fmt.Errorf("encode response: %w", encErr)
				}
				return errors.New(failure.Message)
			}
			if err := enc.Encode(api.NewCountResponse(res, appInstance.Config().Location())); err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rawURL, "url", "", "page to fetch (http or https)")
	cmd.Flags().StringVar(&element, "element", "", "HTML element name to count")
	return cmd
}
