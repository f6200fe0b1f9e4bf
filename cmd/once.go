package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single scan cycle and print its result as JSON",
		RunE:  runOnce,
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	result, runErr := appInstance.RunOnce(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		appInstance.Logger().Warn("encode cycle result failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("scan cycle %s: %w", result.Status, runErr)
	}
	return nil
}
