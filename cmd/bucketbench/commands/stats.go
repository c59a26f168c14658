package commands

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marmos91/bucketcache/pkg/benchconfig"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a running bucketbench instance's stats as a table",
	Long: `stats queries a running bucketbench admin server's /stats endpoint
and renders the snapshot as a table. It does not run the workload itself;
use 'bucketbench run' for that.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsPort, "port", "p", 0, "admin server port (default: from config)")
}

var statsPort int

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := benchconfig.Load(GetConfigFile())
	if err != nil {
		return err
	}
	port := cfg.Metrics.Port
	if statsPort != 0 {
		port = statsPort
	}

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/stats")
	if err != nil {
		return fmt.Errorf("failed to query admin server: %w", err)
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := decodeJSON(resp.Body, &stats); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, key := range []string{
		"Total", "UsedSize", "CacheSize", "Accesses", "Hits", "HitRatio",
		"CachingHitRatio", "Evictions", "Evicted", "BlockCount", "HeapSize",
		"IOHitsPerSecond", "FailedBlockAdditions",
	} {
		if v, ok := stats[key]; ok {
			table.Append([]string{key, fmt.Sprintf("%v", v)})
		}
	}
	table.Render()
	return nil
}
