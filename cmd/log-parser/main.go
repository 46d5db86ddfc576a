package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liliang-cn/logparser/pkg/config"
	"github.com/liliang-cn/logparser/pkg/hostfeed"
	"github.com/liliang-cn/logparser/pkg/logger"
	"github.com/liliang-cn/logparser/pkg/report"
	"github.com/liliang-cn/logparser/pkg/search"
	logssh "github.com/liliang-cn/logparser/pkg/ssh"
	"github.com/liliang-cn/logparser/pkg/tui"
)

var (
	Version = "dev" // Set at build time

	configPath string
	flags      config.Flags
)

var errInterrupted = errors.New("interrupted")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status: 2 for invalid
// configuration, 1 for anything else.
func exitCode(err error) int {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "log-parser [flags] SEARCH_TERM",
		Short:   "Search the log files of many hosts over SSH",
		Version: Version,
		Long: `log-parser - Search the .log files of remote hosts for a regular expression

Hosts are read one per line from --servers or standard input; the list ends
at the first empty line. Without --execute only the candidate files are
listed.

Examples:
  log-parser -s hosts.txt -x "connection refused"
  cat hosts.txt | log-parser -u deploy -d /var/log -x -i "error|fatal"
  log-parser -s hosts.txt -p 8 --tui -x timeout`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			flags.Term = args[0]
			return run(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&flags.Servers, "servers", "s", "", "File with one host per line (default: standard input)")
	f.StringVarP(&flags.User, "user", "u", "", "Remote user (default: local user)")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Echo commands, file lists and every match; print the full report")
	f.BoolVarP(&flags.IgnoreCase, "ignore-case", "i", false, "Case-insensitive matching")
	f.BoolVarP(&flags.Execute, "execute", "x", false, "Read the files; without it only list them")
	f.StringVarP(&configPath, "config", "c", "", "Config file path (default: ~/.logparser/config.toml)")
	f.StringVarP(&flags.Dir, "dir", "d", "", "Remote directory to search (default: .)")
	f.IntVarP(&flags.Parallel, "parallel", "p", 0, "Hosts searched at once (default: 1)")
	f.IntVarP(&flags.Port, "port", "P", 0, "SSH port (default: 22)")
	f.StringVarP(&flags.KeyPath, "key", "k", "", "Private key file")
	f.StringVar(&flags.KnownHostsPath, "known-hosts", "", "known_hosts file (default: ~/.ssh/known_hosts)")
	f.BoolVar(&flags.StrictHostKey, "strict-host-key", false, "Reject unknown host keys instead of adding them")
	f.BoolVar(&flags.AskPass, "ask-pass", false, "Prompt for a password when key authentication fails")
	f.DurationVar(&flags.Timeout, "timeout", 0, "SSH connect timeout (default: 30s)")
	f.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	f.BoolVar(&flags.TUI, "tui", false, "Show a live progress table when stdout is a terminal")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	return rootCmd
}

func run(parent context.Context, fl config.Flags, stdin io.Reader, stdout io.Writer) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	opts, err := config.Build(fl, settings.File(), stdin)
	if err != nil {
		return err
	}
	defer opts.Hosts.Close()

	log := logger.New(&logger.Config{
		Level:      opts.Log.Level,
		Output:     opts.Log.Output,
		NoColor:    opts.Log.NoColor,
		ShowTime:   opts.Log.ShowTime,
		MaxSizeMB:  opts.Log.MaxSizeMB,
		MaxBackups: opts.Log.MaxBackups,
		MaxAgeDays: opts.Log.MaxAgeDays,
		Compress:   opts.Log.Compress,
	})
	defer log.Close()
	logger.SetDefault(log)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientOpts := []logssh.ClientOption{
		logssh.WithKnownHosts(opts.SSH.KnownHostsPath),
		logssh.WithStrictHostKey(opts.SSH.StrictHostKey),
		logssh.WithTimeout(opts.SSH.Timeout),
	}
	if opts.SSH.AskPass {
		clientOpts = append(clientOpts, logssh.WithPasswordPrompt(ttyPrompt()))
	}
	client, err := logssh.NewClient(opts.SSH.KeyPath, clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to create SSH client: %w", err)
	}

	searcher := search.New(&search.SSHTransport{
		Client:  client,
		Port:    opts.SSH.Port,
		KeyPath: opts.SSH.KeyPath,
		UserSet: opts.UserSet,
		PortSet: opts.SSH.PortSet,
	}, opts.Term, opts.Pattern, search.Options{
		User:     opts.User,
		Dir:      opts.Dir,
		Execute:  opts.Execute,
		Verbose:  opts.Verbose,
		Parallel: opts.Parallel,
	})
	searcher.SetLogger(log)

	log.Debug("reading hosts from %s", opts.HostsName)

	useTUI := opts.TUI && isTerminal(stdout)
	if useTUI && opts.SSH.AskPass {
		log.Warn("--tui is disabled when --ask-pass is set")
		useTUI = false
	}

	var rep *report.Report
	var runErr error
	if useTUI {
		keys := stdin
		if opts.FromStdin {
			// The host list came from stdin, so there is no keyboard to read.
			keys = nil
		}
		rep, runErr = runWithTUI(ctx, searcher, opts, keys, stdout, log)
	} else {
		searcher.SetOutput(stdout)
		rep, runErr = searcher.Run(ctx, hostfeed.New(opts.Hosts))
	}

	if err := report.Print(stdout, rep, opts.Term, opts.Verbose); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return errInterrupted
		}
		return runErr
	}
	return nil
}

// runWithTUI runs the search behind the progress table, reading key
// presses from keys (none when nil). The host list is read up front so that
// every row is known from the start. Quitting the table cancels the search.
func runWithTUI(ctx context.Context, searcher *search.Searcher, opts *config.Options, keys io.Reader, stdout io.Writer, log *logger.Logger) (*report.Report, error) {
	feed := hostfeed.New(opts.Hosts)
	entries := feed.Entries()
	if err := feed.Err(); err != nil {
		return report.New(), fmt.Errorf("failed to read host list: %w", err)
	}
	hosts := make([]string, len(entries))
	lines := make([]string, len(entries))
	for i, e := range entries {
		hosts[i] = e.Host
		lines[i] = e.Line
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewSearchModel(hosts, opts.Term, opts.Execute)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithContext(ctx), tea.WithInput(keys))

	var textOut bytes.Buffer
	searcher.SetOutput(&textOut)
	searcher.OnProgress(func(p search.Progress) {
		program.Send(tui.StatusFromProgress(p))
	})

	var rep *report.Report
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep, runErr = searcher.Run(ctx, hostfeed.FromList(lines))
		program.Send(tui.DoneMsg{})
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Warn("progress display failed: %v", err)
	}
	if !model.Finished() {
		cancel()
	}
	<-done

	fmt.Fprintln(stdout, model.GetFinalSummary())
	if opts.Verbose {
		stdout.Write(textOut.Bytes())
	}
	if runErr == nil && !model.Finished() {
		runErr = context.Canceled
	}
	return rep, runErr
}

// ttyPrompt reads answers from the controlling terminal, so it works even
// when the host list is piped in. Prompts are serialized.
func ttyPrompt() logssh.PasswordPrompt {
	var mu sync.Mutex
	return func(user, host, question string) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err != nil {
			return "", fmt.Errorf("no terminal to prompt on: %w", err)
		}
		defer tty.Close()

		if question == "" {
			question = fmt.Sprintf("%s@%s's password: ", user, host)
		}
		fmt.Fprint(tty, question)
		answer, err := term.ReadPassword(int(tty.Fd()))
		fmt.Fprintln(tty)
		if err != nil {
			return "", err
		}
		return string(answer), nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
