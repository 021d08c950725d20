package cli

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"avular-robenv/internal/app"
	"avular-robenv/internal/types"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "ROBENV"

const (
	exitFailed       = 1
	exitAborted      = 2
	exitPrecondition = 3
)

type RootConfig struct {
	ConfigFile string
	LogLevel   string
	Root       string
}

func Execute() {
	root := newRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Debug().Err(err).Msg("command failed")
		log.Error().Msg(errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "robenv",
		Short:         "Build and install ROS packages into a sandboxed environment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	cmd.PersistentFlags().StringVar(&cfg.Root, "root", "", "Sandbox directory (default: search upwards for robenv/)")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("root", cmd.PersistentFlags().Lookup("root"))

	cmd.AddCommand(newInstallCommand())
	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newRemoveCommand())
	cmd.AddCommand(newInfoCommand())
	cmd.AddCommand(newClearCacheCommand())
	cmd.AddCommand(newRosdepCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("robenv")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/robenv")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func newAppService() app.Service {
	service := app.NewService()
	if codename := viper.GetString("codename"); codename != "" {
		service.Codename = codename
	}
	if arch := viper.GetString("arch"); arch != "" {
		service.Arch = arch
	}
	return service
}

func rootDir() string {
	return viper.GetString("root")
}

func exitCodeForError(err error) int {
	var aborted *types.CommandAbortedError
	var cancelled *types.CancelledError
	if errors.As(err, &aborted) || errors.As(err, &cancelled) {
		return exitAborted
	}
	var failed *types.CommandFailedError
	if errors.As(err, &failed) {
		return exitFailed
	}
	var (
		notInstalled *types.NotInstalledError
		unknown      *types.UnknownDistroError
		format       *types.UnrecognizedPackageFormatError
		unresolved   *types.UnresolvedDependencyError
		cycle        *types.DependencyCycleError
	)
	if errors.As(err, &notInstalled) || errors.As(err, &unknown) || errors.As(err, &format) ||
		errors.As(err, &unresolved) || errors.As(err, &cycle) {
		return exitPrecondition
	}
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument,
		errbuilder.CodeFailedPrecondition,
		errbuilder.CodeNotFound,
		errbuilder.CodeAlreadyExists,
		errbuilder.CodePermissionDenied:
		return exitPrecondition
	default:
		return exitFailed
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
