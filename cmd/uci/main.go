// Command uci speaks the UCI protocol subset (§6): <binary> [model-path],
// defaulting to model.pt, serving one engine instance over stdin/stdout.
package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/sigmazero/sigmazero/boardimage"
	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/uci"
)

const (
	boardWidth     = 8
	boardHeight    = 8
	actionSpace    = 4672
	defaultModel   = "model.pt"
	engineHistoryD = 1
)

var banner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render("sigmazero · uci")

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := &cobra.Command{
		Use:   "uci [model-path]",
		Short: "Speak the UCI protocol against a running checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}
	root.Flags().String("config", "", "optional YAML config file layered under flags")

	must.M(viper.BindPFlags(root.Flags()))
	viper.SetEnvPrefix("SIGMAZERO")
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		klog.Fatalf("uci: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		must.M(viper.ReadInConfig())
	}

	modelPath := defaultModel
	if len(args) > 0 {
		modelPath = args[0]
	}

	// Banner goes to stderr only: stdout is reserved for the UCI protocol
	// stream itself.
	os.Stderr.WriteString(banner + "\n")

	nnConf := dual.DefaultConf(boardHeight, boardWidth, actionSpace)
	nnConf.Features = boardimage.Channels(engineHistoryD)
	nnConf.BatchSize = 1
	nnConf.FwdOnly = true

	engine, err := uci.NewEngine(nnConf, modelPath)
	if err != nil {
		return err
	}

	return engine.Run(os.Stdin, os.Stdout)
}
