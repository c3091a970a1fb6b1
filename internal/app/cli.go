package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, out io.Writer, errOut io.Writer) int {
	app := App{Out: out, Err: errOut}
	flags := GlobalFlags{}
	var showVersion bool

	root := &cobra.Command{
		Use:           "staffcount",
		Short:         "Export hourly staff availability from a scheduling page",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "version")
	root.PersistentFlags().StringVarP(&flags.Profile, "profile", "p", "", "profile name")
	root.PersistentFlags().StringVarP(&flags.ProfileDir, "profile-dir", "D", "", "profile directory")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&flags.NoStart, "no-start", "N", false, "do not auto-start")
	root.PersistentFlags().StringVarP(&flags.Engine, "engine", "e", "", "browser engine (playwright or rod)")
	root.PersistentFlags().StringVarP(&flags.Browser, "browser", "b", "", "browser type")
	root.PersistentFlags().StringVarP(&flags.Channel, "channel", "c", "", "browser channel")
	root.PersistentFlags().BoolVarP(&flags.Headless, "headless", "H", false, "run headless")
	root.PersistentFlags().BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	root.PersistentFlags().IntVarP(&flags.Tab, "tab", "T", 0, "tab id")
	root.PersistentFlags().StringVarP(&flags.TTL, "ttl", "L", "", "profile ttl")
	root.PersistentFlags().StringVarP(&flags.OutputDir, "output-dir", "O", "", "directory for relative output files")
	root.PersistentFlags().StringVarP(&flags.Timeout, "timeout", "t", "", "action timeout")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		app.Log = newLogger(flags.Verbose, errOut)
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code := app.runInstall(flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check install and environment health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runDoctor(cfg, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "start [URL]",
		Short: "Start a profile, optionally opening the scheduling page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startURL := ""
			if len(args) == 1 {
				startURL = args[0]
			}
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runStart(store, mgr, flags, startURL)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop a profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runStop(mgr, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "ps",
		Short: "List running profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runPs(mgr, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runList(store, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runShow(store, flags, args)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runRemove(store, mgr, flags, args)
			return exitOrNil(code)
		},
	})

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			force, _ := cmd.Flags().GetBool("force")
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runPrune(store, mgr, flags, dryRun, force)
			return exitOrNil(code)
		},
	}
	pruneCmd.Flags().BoolP("dry-run", "n", false, "preview")
	pruneCmd.Flags().BoolP("force", "f", false, "force removal")
	root.AddCommand(pruneCmd)

	tabCmd := &cobra.Command{
		Use:   "tab",
		Short: "Manage tabs",
	}
	tabNewCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new tab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runTabNew(store, mgr, flags, url)
			return exitOrNil(code)
		},
	}
	tabNewCmd.Flags().StringP("url", "u", "", "navigate url")
	tabCmd.AddCommand(tabNewCmd)

	tabCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tabs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runTabList(store, mgr, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(tabCmd)

	root.AddCommand(&cobra.Command{
		Use:   "goto URL",
		Short: "Navigate the active tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runGoto(store, mgr, flags, args[0])
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "Check that the page exposes the expected elements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runProbe(cfg, store, mgr, flags)
			return exitOrNil(code)
		},
	})

	var dayFlags RunFlags
	dayCmd := &cobra.Command{
		Use:   "day",
		Short: "Sample the 24 hour slots of the displayed day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runDay(cfg, store, mgr, flags, dayFlags)
			return exitOrNil(code)
		},
	}
	dayCmd.Flags().StringVarP(&dayFlags.Output, "output", "o", "", "output file (.csv or .xlsx)")
	root.AddCommand(dayCmd)

	var weekFlags RunFlags
	weekCmd := &cobra.Command{
		Use:   "week",
		Short: "Sample seven consecutive days, advancing the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runWeek(cfg, store, mgr, flags, markChanged(cmd, weekFlags))
			return exitOrNil(code)
		},
	}
	weekCmd.Flags().StringVarP(&weekFlags.Output, "output", "o", "", "output file (.csv or .xlsx)")
	weekCmd.Flags().DurationVar(&weekFlags.Settle, "settle", 0, "delay after a page change before sampling")
	weekCmd.Flags().DurationVar(&weekFlags.NavTimeout, "nav-timeout", 0, "max wait for a page change")
	weekCmd.Flags().BoolVar(&weekFlags.NoPrime, "no-prime", false, "wait for a page change before sampling the first day")
	root.AddCommand(weekCmd)

	root.AddCommand(&cobra.Command{
		Use:   "eval JS",
		Short: "Evaluate JavaScript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runEval(store, mgr, flags, strings.Join(args, " "))
			return exitOrNil(code)
		},
	})

	serveCmd := &cobra.Command{
		Use:    "serve",
		Short:  "Internal daemon entrypoint",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runServe(store, mgr, flags)
			return exitOrNil(code)
		},
	}
	root.AddCommand(serveCmd)

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

// markChanged records which timing flags were given explicitly.
func markChanged(cmd *cobra.Command, run RunFlags) RunFlags {
	run.SettleSet = cmd.Flags().Changed("settle")
	run.NavTimeoutSet = cmd.Flags().Changed("nav-timeout")
	return run
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}
