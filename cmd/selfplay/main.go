// Command selfplay runs the batched self-play driver (§4.3): <binary>
// <model-path>, writing replay records to stdout.
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
	"github.com/sigmazero/sigmazero/selfplay"
)

const (
	boardWidth  = 8
	boardHeight = 8
	actionSpace = 4672
)

var banner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render("sigmazero · selfplay")

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := &cobra.Command{
		Use:   "selfplay <model-path>",
		Short: "Generate self-play replay records from a running checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().Int("workers", 256, "number of lockstep self-play workers (B)")
	root.Flags().Int("history-depth", 1, "ply history depth in the position image")
	root.Flags().Float64("fast-probability", selfplay.DefaultFastProbability, "probability an iteration is a fast, unrecorded search")
	root.Flags().Int("fast-sims", selfplay.DefaultFastSimulations, "simulations for a fast iteration")
	root.Flags().Int("full-sims", selfplay.DefaultFullSimulations, "simulations for a full, recorded iteration")
	root.Flags().Int("fill-window-size", 0, "while fewer than this many moves have been recorded, every iteration records (warmup)")
	root.Flags().Int("iterations", 0, "stop after this many outer iterations (0 = run forever)")
	root.Flags().Bool("verbose-moves", false, "log each worker's top-3 visited moves per commit (to stderr, never the replay stream)")
	root.Flags().String("config", "", "optional YAML config file layered under flags")

	must.M(viper.BindPFlags(root.Flags()))
	viper.SetEnvPrefix("SIGMAZERO")
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		klog.Fatalf("selfplay: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		must.M(viper.ReadInConfig())
	}
	os.Stderr.WriteString(banner + "\n")

	checkpointPath := args[0]
	conf := selfplay.DefaultConfig(viper.GetInt("workers"), checkpointPath)
	conf.HistoryDepth = viper.GetInt("history-depth")
	conf.FastProbability = viper.GetFloat64("fast-probability")
	conf.FastSims = viper.GetInt("fast-sims")
	conf.FullSims = viper.GetInt("full-sims")
	conf.FillWindowSize = viper.GetInt("fill-window-size")
	conf.VerboseMoves = viper.GetBool("verbose-moves")

	nnConf := dual.DefaultConf(boardHeight, boardWidth, actionSpace)
	nnConf.Features = boardimage.Channels(conf.HistoryDepth)

	driver, err := selfplay.New(conf, nnConf, os.Stdout)
	if err != nil {
		return err
	}

	iterations := viper.GetInt("iterations")
	if iterations <= 0 {
		iterations = 1 << 30 // "run forever" in practical terms without an infinite-loop flag value
	}
	return driver.RunIterations(iterations)
}
