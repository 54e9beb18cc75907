package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/CZERTAINLY/Herder/internal/job"
	"github.com/CZERTAINLY/Herder/internal/log"
	"github.com/CZERTAINLY/Herder/internal/model"
	"github.com/CZERTAINLY/Herder/internal/shell"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	userConfigPath string // /default/config/path/herder on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag
	flagCommand        string // value of -c flag
	exitCode           int
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "herder")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is herder.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or text")
	rootCmd.Flags().StringVarP(&flagCommand, "command", "c", "", "evaluate a single line and exit")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initHerder
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}

	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("herder failed", "err", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:          "herder",
	Short:        "Interactive command shell with job control",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         doShell,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a herder",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("herder: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("herder: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doShell(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("herder",
		slog.String("session", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	if cmd.Flags().Changed("command") {
		sh := shell.New(config.Shell, shell.WithInteractive(false))
		if err := sh.Eval(ctx, flagCommand); err != nil {
			fmt.Fprintf(os.Stderr, "herder: %v\n", err)
		}
		exitCode = sh.ExitCode()
		return nil
	}

	sh := shell.New(config.Shell)
	slog.DebugContext(ctx, "shell started", "interactive", sh.Interactive())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if sh.Interactive() {
		// installed before the first spawn, children must see the handlers
		shield := job.NewShield()
		g.Go(func() error {
			return shield.Run(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return sh.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	exitCode = sh.ExitCode()
	return nil
}

func initHerder(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("HERDERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "herder.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "herder.yaml")
		if err := storeConfig(configPath, config); err != nil {
			return err
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		cfg, err := model.LoadConfig(f)
		if err != nil {
			for _, d := range model.ErrorDetails(err) {
				slog.Error("invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *cfg
	}

	// flags and HERDER_* variables have a precedence over config file
	v := viper.New()
	v.SetEnvPrefix("herder")
	v.AutomaticEnv()
	if err := v.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
		return err
	}
	if err := v.BindPFlag("log_format", cmd.Flags().Lookup("log-format")); err != nil {
		return err
	}
	if v.IsSet("verbose") {
		config.Log.Verbose = v.GetBool("verbose")
	}
	if v.IsSet("log_format") && v.GetString("log_format") != "" {
		config.Log.Format = v.GetString("log_format")
	}

	// initialize logging
	logger, closer, err := log.New(log.Options{
		Verbose: config.Log.Verbose,
		Format:  config.Log.Format,
		Output:  config.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCloser = closer
	slog.SetDefault(logger)

	slog.Debug("herder run", "configPath", configPath)
	slog.Debug("herder run", "config", config)
	return nil
}

func storeConfig(path string, cfg model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
