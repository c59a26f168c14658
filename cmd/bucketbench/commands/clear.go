package commands

import (
	"fmt"
	"net/http"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/marmos91/bucketcache/pkg/benchconfig"
)

var (
	clearForce bool
	clearPort  int
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Evict every block from a running bucketbench instance",
	Long: `clear sends a POST to the admin server's /clear endpoint, which
evicts every cached block. Destructive: prompts for confirmation unless
--force is given.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "skip confirmation prompt")
	clearCmd.Flags().IntVarP(&clearPort, "port", "p", 0, "admin server port (default: from config)")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearForce {
		confirmed, err := confirm("This will evict every cached block. Continue?", false)
		if err != nil {
			return err
		}
		if !confirmed {
			cmd.Println("aborted")
			return nil
		}
	}

	cfg, err := benchconfig.Load(GetConfigFile())
	if err != nil {
		return err
	}
	port := cfg.Metrics.Port
	if clearPort != 0 {
		port = clearPort
	}

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/clear", port), "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to reach admin server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clear request failed: %s", resp.Status)
	}

	cmd.Println("cache cleared")
	return nil
}

// confirm prompts the user for a yes/no answer, mirroring bucketbench's
// interactive destructive-operation gate.
func confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}
	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}
	return true, nil
}
