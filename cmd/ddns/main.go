package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/CZERTAINLY/ddns/internal/listener"
	"github.com/CZERTAINLY/ddns/internal/log"
	"github.com/CZERTAINLY/ddns/internal/model"
	"github.com/CZERTAINLY/ddns/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const configName = "ddns.yaml"

var (
	userConfigPath string // /default/config/path/ddns on given OS
	configPath     string // actual config file used (if loaded)
	config         *model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagForce          bool   // value of config init --force flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "ddns")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in "+userConfigPath+" or in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	initCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing config file")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		setupLogging(flagVerbose)
	}

	for _, cmd := range []*cobra.Command{runCmd, updateCmd, checkCmd} {
		cmd.PreRunE = loadConfig
		rootCmd.AddCommand(cmd)
	}
	configCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("ddns failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "ddns",
	Short:        "Keeps a Cloudflare DNS A record pointed at the public IP address",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the daemon, the record is refreshed periodically",
	RunE:  doRun,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "update the record once and exit",
	RunE:  doUpdate,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "validate the configuration and print it",
	RunE:  doCheck,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "manage the configuration file",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "write a configuration template",
	RunE:  doInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a ddns",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("ddns: version info not available")
			return
		}

		fmt.Printf("ddns:   %s\n", info.Main.Version)
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

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("ddns",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	signals := listener.ProcessSignals()
	d := &service.Daemon{
		ConfigPath: configPath,
		Console:    listener.Stdin(),
		Signals:    signals,
	}
	code, err := service.Run(ctx, d.Epoch, config.BackoffInterval(), service.WithPause(signals.Pause))
	if err != nil {
		return err
	}
	os.Exit(int(code))
	return nil
}

func doUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("ddns",
		slog.String("cmd", "update"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	res, err := service.Update(ctx, config)
	if err != nil {
		return err
	}
	if res.Changed {
		fmt.Printf("%s: %s -> %s\n", res.Record.Name, res.Record.IP, res.IP)
	} else {
		fmt.Printf("%s: %s (unchanged)\n", res.Record.Name, res.IP)
	}
	return nil
}

func doCheck(cmd *cobra.Command, args []string) error {
	fmt.Printf("# config: %s\n", configPath)
	fmt.Printf("# interval: %s, backoff: %s\n", config.UpdateInterval(), config.BackoffInterval())
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return err
	}
	return enc.Close()
}

func doInit(cmd *cobra.Command, args []string) error {
	path := flagConfigFilePath
	if path == "" {
		path = filepath.Join(userConfigPath, configName)
	}
	if exists(path) && !flagForce {
		return fmt.Errorf("config file %s already exists, use --force to overwrite it", path)
	}
	err := os.MkdirAll(filepath.Dir(path), 0o755)
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
	enc.SetIndent(2)
	if err := enc.Encode(model.DefaultConfig()); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	fmt.Printf("config written to %s\n", path)
	return nil
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	configPath = findConfig()
	if configPath == "" {
		return errors.New("no config file found, create one with `ddns config init`")
	}

	var err error
	config, err = model.LoadConfigFile(configPath)
	if err != nil {
		for _, d := range model.ConfigErrDetails(err) {
			slog.Error(d.Message, d.Attr("detail"))
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// --verbose has a precedence over config file
	setupLogging(flagVerbose || model.Get(config.Verbose))

	slog.Debug("ddns", "configPath", configPath)
	slog.Debug("ddns", "config", config)
	return nil
}

func findConfig() string {
	if envConfig, ok := os.LookupEnv("DDNSCONFIG"); ok {
		return envConfig
	}
	if flagConfigFilePath != "" {
		return flagConfigFilePath
	}
	for _, d := range []string{userConfigPath, "."} {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path
		}
	}
	return ""
}

func setupLogging(verbose bool) {
	slog.SetDefault(log.New(verbose, os.Stderr))
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && info.Mode().IsRegular()
}
