package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/config"
	"github.com/Tutortoise/vision-inference/detections"
	"github.com/Tutortoise/vision-inference/logging"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	appConfig  *config.AppConfig
	logger     *zap.Logger
	closeLog   func() error
)

var rootCmd = &cobra.Command{
	Use:           "vision-inference",
	Short:         "Pose and face detection on ONNX Runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg

		logger, closeLog, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the detection HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var detectKind string

var detectCmd = &cobra.Command{
	Use:   "detect IMAGE",
	Short: "Run one detector on an image file and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetect(detectKind, args[0])
	},
}

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List the registered operators",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry()
		if err != nil {
			return err
		}
		return printJSON(reg.List())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (settings may also come from VISION_* variables)")
	detectCmd.Flags().StringVar(&detectKind, "kind", KindPose, "detector to run: pose or face")
	rootCmd.AddCommand(serveCmd, detectCmd, operatorsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRegistry() (*chain.Registry, error) {
	reg := chain.NewRegistry()
	if err := detections.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func initRuntime(cfg *config.AppConfig) error {
	libPath, err := resolveLibraryPath(cfg.Runtime.LibraryPath)
	if err != nil {
		return err
	}
	return detections.InitRuntime(detections.RuntimeConfig{
		LibraryPath:    libPath,
		IntraOpThreads: cfg.Runtime.IntraOpThreads,
		InterOpThreads: cfg.Runtime.InterOpThreads,
	}, logger)
}

// newPools builds a worker pool for every detector that has a model configured.
func newPools(cfg *config.AppConfig, loader detections.SessionLoader, logger *zap.Logger) (map[string]*WorkerPool, error) {
	models := map[string]string{
		KindPose: cfg.Pose.ModelPath,
		KindFace: cfg.Face.ModelPath,
	}

	pools := make(map[string]*WorkerPool)
	for kind, path := range models {
		if path == "" {
			logger.Info("detector disabled, no model configured", zap.String("kind", kind))
			continue
		}
		kind := kind
		factory := func() (*Worker, error) {
			return NewWorker(cfg, kind, loader, logger.Named(kind))
		}
		pool, err := NewWorkerPool(cfg.Server.PoolSize, factory, logger)
		if err != nil {
			destroyPools(pools)
			return nil, errors.Wrapf(err, "%s pool", kind)
		}
		pools[kind] = pool
	}
	if len(pools) == 0 {
		return nil, errors.New("no model configured, set pose.modelpath or face.modelpath")
	}
	return pools, nil
}

func destroyPools(pools map[string]*WorkerPool) {
	for _, p := range pools {
		p.Destroy()
	}
}

func runServe(ctx context.Context) error {
	cfg := appConfig
	if err := initRuntime(cfg); err != nil {
		return err
	}
	defer detections.DestroyRuntime()

	pools, err := newPools(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer destroyPools(pools)

	reg, err := newRegistry()
	if err != nil {
		return err
	}

	state := &AppState{
		Pools:    pools,
		Registry: reg,
		Logger:   logger,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Server.Addr,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.Bool("readback", cfg.Server.Readback))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runDetect(kind, imagePath string) error {
	cfg := appConfig
	if err := initRuntime(cfg); err != nil {
		return err
	}
	defer detections.DestroyRuntime()

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return errors.Wrapf(err, "open %s", imagePath)
	}

	w, err := NewWorker(cfg, kind, nil, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Run(img); err != nil {
		return err
	}

	var result any
	switch kind {
	case KindPose:
		result, err = poseResult(w)
	default:
		result, err = faceResult(w)
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
