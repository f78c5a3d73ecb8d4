// ftpfetch lists and downloads files from FTP servers over unreliable
// links, retrying and falling back between transports as needed.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/ftpclient"
)

const envPrefix = "FTPFETCH"

var (
	flagUsername string
	flagPassword string
	flagRetries  uint
	flagTimeout  time.Duration
	flagCooldown time.Duration
	flagDebug    bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ftpfetch",
		Short:        "Resilient FTP listing and download client",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&flagUsername, "username", "u", "", "login username (or FTPFETCH_USERNAME)")
	flags.StringVarP(&flagPassword, "password", "p", "", "login password (or FTPFETCH_PASSWORD)")
	flags.UintVar(&flagRetries, "retries", 0, "attempts per network operation (0 = single try)")
	flags.DurationVar(&flagTimeout, "timeout", 30*time.Second, "deadline per network operation (0 = none)")
	flags.DurationVar(&flagCooldown, "cooldown", 0, "minimum spacing between network actions")
	flags.BoolVarP(&flagDebug, "debug", "d", false, "verbose console logging")

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	_ = viper.BindPFlag("username", flags.Lookup("username"))
	_ = viper.BindPFlag("password", flags.Lookup("password"))

	root.AddCommand(newListCommand(), newGetCommand())
	return root
}

func buildLogger() (*zap.Logger, error) {
	if flagDebug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildClient(address string, logger *zap.Logger) (*ftpclient.Client, error) {
	return ftpclient.New(&ftpclient.Config{
		Address:  address,
		Username: viper.GetString("username"),
		Password: viper.GetString("password"),
		Retries:  flagRetries,
		Timeout:  flagTimeout,
		Cooldown: flagCooldown,
	}, logger)
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <address>",
		Short: "List directories, files and links under the remote path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := buildClient(args[0], logger)
			if err != nil {
				return err
			}
			defer client.Close()

			directories, err := client.GetDirectoryNames("")
			if err != nil {
				return err
			}
			files, err := client.GetFileNames("")
			if err != nil {
				return err
			}
			links, err := client.GetLinkNames("")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Remote root directory: %s\n", client.RootPath())
			printNames(out, "Directories", directories)
			printNames(out, "Files", files)
			printNames(out, "Links", links)
			return nil
		},
	}
}

func printNames(out io.Writer, label string, names []string) {
	fmt.Fprintf(out, "%s (%d):\n", label, len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <address> <remote> <dest>",
		Short: "Download one remote file to a local path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := buildClient(args[0], logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.Download(args[1], args[2], flagTimeout) {
				return fmt.Errorf("download of %s failed", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", args[2])
			return nil
		},
	}
}
