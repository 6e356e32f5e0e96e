// Command train runs the online training loop (§4.4): <binary> <model-path>
// [replay-file]..., reading replay records from the given files or, with
// none given, from stdin.
package main

import (
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-multierror"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/sigmazero/sigmazero/boardimage"
	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/replay"
	"github.com/sigmazero/sigmazero/trainer"
)

const (
	boardWidth  = 8
	boardHeight = 8
	actionSpace = 4672
)

var banner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")).Render("sigmazero · train")

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := &cobra.Command{
		Use:   "train <model-path> [replay-file]...",
		Short: "Run the online training loop against one or more replay streams",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	root.Flags().Int("window", 0, "sliding replay window size (0 = default)")
	root.Flags().Int("minibatch", 0, "minibatch size (0 = default)")
	root.Flags().Int("save-rate", trainer.DefaultSaveRate, "training steps between checkpoint saves")
	root.Flags().Int("checkpoint-rate", trainer.DefaultCheckpointRate, "saves between timestamped historical copies")
	root.Flags().Int("history-depth", 1, "ply history depth in the position image")
	root.Flags().String("monitor-addr", "", "if set, serve /stats and /ws on this address")
	root.Flags().String("config", "", "optional YAML config file layered under flags")

	must.M(viper.BindPFlags(root.Flags()))
	viper.SetEnvPrefix("SIGMAZERO")
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		klog.Fatalf("train: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		must.M(viper.ReadInConfig())
	}
	os.Stderr.WriteString(banner + "\n")

	modelPath := args[0]
	streamArgs := args[1:]

	conf := trainer.DefaultConfig(modelPath)
	if w := viper.GetInt("window"); w > 0 {
		conf.Window = w
	}
	if m := viper.GetInt("minibatch"); m > 0 {
		conf.Minibatch = m
	}
	conf.SaveRate = viper.GetInt("save-rate")
	conf.CheckpointRate = viper.GetInt("checkpoint-rate")

	historyDepth := viper.GetInt("history-depth")
	nnConf := dual.DefaultConf(boardHeight, boardWidth, actionSpace)
	nnConf.Features = boardimage.Channels(historyDepth)

	t, err := trainer.New(conf, nnConf)
	if err != nil {
		return err
	}

	if addr := viper.GetString("monitor-addr"); addr != "" {
		mon := trainer.NewMonitor()
		t.OnSnapshot(mon.Publish)
		go func() {
			klog.Infof("train: serving stats on %s", addr)
			if err := http.ListenAndServe(addr, mon.Handler()); err != nil {
				klog.Warningf("train: monitor server stopped: %v", err)
			}
		}()
	}

	streams, closeStreams, err := openStreams(streamArgs)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStreams(); cerr != nil {
			klog.Warningf("train: closing replay streams: %v", cerr)
		}
	}()

	done := make(chan struct{})
	defer close(done)

	queue := replay.ReadStreams(done, streams...)
	return t.Run(queue)
}

func openStreams(paths []string) ([]io.Reader, func() error, error) {
	if len(paths) == 0 {
		return []io.Reader{os.Stdin}, func() error { return nil }, nil
	}

	files := make([]*os.File, 0, len(paths))
	streams := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			var merr *multierror.Error
			merr = multierror.Append(merr, err)
			for _, opened := range files {
				merr = multierror.Append(merr, opened.Close())
			}
			return nil, nil, merr.ErrorOrNil()
		}
		files = append(files, f)
		streams = append(streams, f)
	}
	return streams, func() error {
		var merr *multierror.Error
		for _, f := range files {
			merr = multierror.Append(merr, f.Close())
		}
		return merr.ErrorOrNil()
	}, nil
}
