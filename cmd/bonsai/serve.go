package main

import (
	"github.com/CentralLabFacilities/bonsai-sub000/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [chart]",
	Short: "Expose the engine over HTTP, websocket and MQTT",
	Long: `Loads the chart and serves the control API. Metrics are exposed on
/metrics; MQTT, Redis and tracing are enabled through the BONSAI_MQTT_BROKER,
BONSAI_REDIS_ADDR and OTEL_EXPORTER_OTLP_ENDPOINT environment variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.ServeOptions{RunOptions: runOptions(cmd, args)}
		opts.Addr, _ = cmd.Flags().GetString("addr")
		opts.AutoStart, _ = cmd.Flags().GetBool("start")
		return cli.Serve(signals.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default from BONSAI_HTTP_ADDR)")
	serveCmd.Flags().Bool("start", false, "Start the chart once it is loaded")
}
