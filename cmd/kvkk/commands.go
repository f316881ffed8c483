package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kvkk-permits/internal/console"
	"kvkk-permits/internal/consent/domain"
	"kvkk-permits/internal/phone"
)

var (
	errRecordMissing = errors.New("no consent record for this phone")
	errRecordExists  = errors.New("a consent record already exists for this phone")
)

type rootFlags struct {
	envFile string
	verbose bool
	logFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "kvkk",
		Short: "Look up and edit customer KVKK consent records",
		Long: `kvkk manages a customer's KVKK consent record in the directory service.

Run without arguments to open the operator console. The host token and requester phone come from
HOST_BUNDLE_FILE or HOST_TOKEN / HOST_REQUESTER_PHONE.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, flags, "")
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Env file read before the environment")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Write logs to this file instead of stderr")

	root.AddCommand(
		newConsoleCmd(flags),
		newLookupCmd(flags),
		newSetCmd(flags),
		newCreateCmd(flags),
		newNormalizeCmd(),
	)
	return root
}

func newConsoleCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console [PHONE]",
		Short: "Open the operator console, optionally searching PHONE first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var requester string
			if len(args) == 1 {
				requester = args[0]
			}
			return runConsole(cmd, flags, requester)
		},
	}
}

func runConsole(cmd *cobra.Command, flags *rootFlags, requesterPhone string) error {
	logFile := flags.logFile
	if logFile == "" {
		// The TUI owns the terminal.
		logFile = filepath.Join(os.TempDir(), "kvkk-console.log")
	}
	a, err := newApp(cmd.Context(), appOptions{
		EnvFile:        flags.envFile,
		Verbose:        flags.verbose,
		LogFile:        logFile,
		RequesterPhone: requesterPhone,
	})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())
	return console.Run(cmd.Context(), a.session)
}

func newLookupCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup PHONE",
		Short: "Show the consent record for PHONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.appOptions())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			snap, err := a.session.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newSetCmd(flags *rootFlags) *cobra.Command {
	var permit bool
	cmd := &cobra.Command{
		Use:   "set PHONE --permit=true|false",
		Short: "Set the consent flag of an existing record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.appOptions())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			snap, err := a.session.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if snap.Record == nil {
				return errRecordMissing
			}
			snap, err = a.session.SetPermitted(cmd.Context(), permit)
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&permit, "permit", false, "Consent flag to store")
	_ = cmd.MarkFlagRequired("permit")
	return cmd
}

func newCreateCmd(flags *rootFlags) *cobra.Command {
	var (
		name   string
		permit bool
	)
	cmd := &cobra.Command{
		Use:   "create PHONE --name NAME [--permit]",
		Short: "Create a consent record for a phone with none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.appOptions())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			snap, err := a.session.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !snap.ShowCreateForm {
				printSnapshot(cmd.OutOrStdout(), snap)
				return errRecordExists
			}
			if _, err := a.session.SetDraftPermitted(permit); err != nil {
				return err
			}
			snap, err = a.session.Create(cmd.Context(), name)
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Customer full name (required)")
	cmd.Flags().BoolVar(&permit, "permit", false, "Record consent as given")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize PHONE",
		Short: "Print the 10-digit national form of PHONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := phone.Normalize(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (f *rootFlags) appOptions() appOptions {
	return appOptions{EnvFile: f.envFile, Verbose: f.verbose, LogFile: f.logFile}
}

func printSnapshot(w io.Writer, snap domain.Snapshot) {
	if rec := snap.Record; rec != nil {
		fmt.Fprintf(w, "code:      %s\nname:      %s\nphone:     %s\npermitted: %t\n",
			rec.Code, rec.FullName, rec.Phone, snap.Permitted)
	}
	if n := snap.Notice; n != nil {
		fmt.Fprintln(w, n.Message)
	}
}
