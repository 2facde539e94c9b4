// Package cli implements paintctl, a command line client for the atelier API.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"atelier/pkg/client"
)

const (
	keyServer    = "server"
	keyToken     = "token"
	keyStateFile = "state-file"
	keyOutput    = "output"
	keyVerbose   = "verbose"
	keyJWTSecret = "jwt-secret"
	keyJWTIssuer = "jwt-issuer"
)

// app is the state shared by every command of one invocation.
type app struct {
	v *viper.Viper
}

// NewRootCommand builds the paintctl command tree. Settings come from flags,
// ATELIER_* environment variables and an optional paintctl.yaml, in that
// order of precedence.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "paintctl",
		Short:         "Generate and watch batches of paintings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/atelier/paintctl.yaml)")
	flags.String(keyServer, "http://localhost:8080", "API base URL")
	flags.String(keyToken, "", "bearer token for the API")
	flags.String(keyStateFile, defaultStateFile(), "where in-flight batches and the last title are remembered")
	flags.StringP(keyOutput, "o", "table", "output format: table, json or yaml")
	flags.BoolP(keyVerbose, "v", false, "log poll errors")

	root.AddCommand(
		a.newTitlesCommand(),
		a.newGenerateCommand(),
		a.newStatusCommand(),
		a.newRetryCommand(),
		a.newRegenerateCommand(),
		a.newWatchCommand(),
		a.newTokenCommand(),
	)
	return root
}

// Execute runs paintctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	a.v.SetDefault(keyJWTIssuer, "atelier")

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("paintctl")
		a.v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(dir, "atelier"))
		}
		a.v.AddConfigPath(".")
	}

	a.v.SetEnvPrefix("ATELIER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	switch a.v.GetString(keyOutput) {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.v.GetString(keyOutput))
	}
	return nil
}

func (a *app) client() *client.Client {
	return client.New(a.v.GetString(keyServer), client.WithToken(a.v.GetString(keyToken)))
}

func (a *app) store() *client.FileStore {
	return client.NewFileStore(a.v.GetString(keyStateFile))
}

func (a *app) logger() *zap.Logger {
	if !a.v.GetBool(keyVerbose) {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// resolveTitle returns the explicit title or falls back to the last one used.
func (a *app) resolveTitle(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	last, err := a.store().LastTitle()
	if err != nil {
		return "", err
	}
	if last == "" {
		return "", errors.New("no title given and no previous title remembered; pass --title")
	}
	return last, nil
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".paintctl-state.json"
	}
	return filepath.Join(dir, "atelier", "state.json")
}
