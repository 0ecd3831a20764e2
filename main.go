package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/krau/maskpredict/config"
	"github.com/krau/maskpredict/label"
	"github.com/krau/maskpredict/onnx"
	"github.com/krau/maskpredict/pipeline"
	"github.com/krau/maskpredict/service"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "maskpredict",
	Short:         "Predict mask, gender and age classes for a test set",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		destroy, err := onnx.Init(cfg)
		if err != nil {
			return err
		}
		defer destroy()

		_, err = pipeline.Run(cmd.Context(), cfg, service.NewOpener(cfg), time.Now())
		return err
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the compound class table",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "class\tmask\tgender\tage\tdescription")
		for i, t := range label.Triples() {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n", i, t.Mask, t.Gender, t.Age, label.Describe(t))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(labelsCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}
