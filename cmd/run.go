package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/connection"
	"github.com/spigell/jobpilot/internal/orchestrator"
	"github.com/spigell/jobpilot/internal/portal"
	"github.com/spigell/jobpilot/internal/projection"
	"github.com/spigell/jobpilot/internal/report"
	"github.com/spigell/jobpilot/internal/utils"
)

const (
	PromptYes             = "Start matching run"
	PromptNo              = "Exit"
	PromptRetry           = "Retry"
	PromptReportByCompany = "Report by company"
	PromptViewToFile      = "Dump current view to file"
	stdinMarker           = "-"
	maxRetryDelay         = 2 * time.Minute
)

var (
	errExit      = errors.New("exit requested")
	errBack      = errors.New("back to menu")
	errRunFailed = errors.New("run failed")
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit a resume and follow the matching run",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("resume", "r", "", "resume text file, - reads stdin. Asked interactively when unset")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before starting the run")
	runCmd.Flags().Bool("dump", false, "dump the final view to a temporary json file")
	runCmd.Flags().Int("retries", 0, "with --auto-approve, how many times a failed run is started again")
	runCmd.Flags().Duration("retry-delay", 5*time.Second, "pause before the first retry, doubled for every next one")

	viper.BindPFlag("resume", runCmd.Flags().Lookup("resume"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup("")
	logger.Info("starting the jobpilot", zap.String("version", resolveVersion()), zap.String("server", config.Server))

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	dump, _ := cmd.Flags().GetBool("dump")
	retries, _ := cmd.Flags().GetInt("retries")
	retryDelay, _ := cmd.Flags().GetDuration("retry-delay")

	client := portal.New(logger, config.Server)
	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}

	manager := connection.New(logger, connection.Config{
		URL:              client.MatchURL(),
		HandshakeTimeout: config.Stream.HandshakeTimeout,
		WriteTimeout:     config.Stream.WriteTimeout,
		ReadLimit:        config.Stream.ReadLimit,
		UserAgent:        client.UserAgent,
	})

	controller := orchestrator.New(orchestrator.Config{
		Logger:  logger,
		Tokens:  tokenSource(config),
		Catalog: client,
		Dialer:  orchestrator.ManagerDialer(manager),
	})
	defer controller.Close()

	reporter := report.New(logger)
	controller.Subscribe(reporter.Render)

	if err := controller.LoadCatalog(ctx); err != nil {
		logger.Warn("could not load job catalog", zap.Error(err))
	} else {
		logger.Info("current list of jobs", zap.Int("count", len(controller.View().Jobs)))
	}

	resume, err := readResume(viper.GetString("resume"))
	if err != nil {
		logger.Fatal("reading resume", zap.Error(err))
	}

	label, start := "Proceed?", PromptYes
	for attempt := 1; ; attempt++ {
		action := start
		if !autoApprove {
			action, err = selectAction(label, start)
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}

		err = handleAction(ctx, action, controller, logger, resume, dump)
		switch {
		case err == nil:
			return
		case errors.Is(err, errExit):
			logger.Info("exiting", zap.String("reason", "got exit from prompt"))
			return
		case errors.Is(err, errBack):
			continue
		case errors.Is(err, errRunFailed) && !autoApprove:
			logger.Error("run failed", zap.Error(err))
			label, start = "Run failed. Retry?", PromptRetry
		case errors.Is(err, errRunFailed) && attempt <= retries:
			delay := utils.Backoff(attempt, retryDelay, maxRetryDelay)
			logger.Warn("run failed, retrying", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := utils.WaitFor(ctx, delay); err != nil {
				logger.Info("exiting", zap.String("reason", "interrupted"))
				return
			}
		default:
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func selectAction(label, start string) (string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: []string{start, PromptNo, PromptReportByCompany, PromptViewToFile},
	}
	_, action, err := prompt.Run()
	return action, err
}

// handleAction returns nil once the session is over.
func handleAction(ctx context.Context, action string, controller *orchestrator.Controller, logger *zap.Logger, resume string, dump bool) error {
	switch action {
	case PromptYes, PromptRetry:
		return startRun(ctx, controller, logger, resume, dump)
	case PromptNo:
		return errExit
	case PromptReportByCompany:
		vm := controller.View()
		pretty, _ := json.MarshalIndent(report.ByCompany(vm), "", "  ")
		logger.Info(string(pretty), zap.Int("jobs count", len(vm.Jobs)))
		return errBack
	case PromptViewToFile:
		filename, err := report.Dump(controller.View())
		if err != nil {
			return fmt.Errorf("dump view to file: %w", err)
		}
		logger.Info("dumping view to file", zap.String("filename", filename))
		return errBack
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func startRun(ctx context.Context, controller *orchestrator.Controller, logger *zap.Logger, resume string, dump bool) error {
	runID, err := controller.StartRun(ctx, resume)
	if errors.Is(err, orchestrator.ErrPrecondition) {
		logger.Fatal("cannot start a run",
			zap.Error(err),
			zap.String("hint", "set JOBPILOT_TOKEN_FILE or JOBPILOT_TOKEN, or the 'token-file' key in the configuration file"),
		)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errRunFailed, err)
	}

	vm, err := controller.Wait(ctx)
	if err != nil {
		controller.CancelRun()
		logger.Info("exiting", zap.String("reason", "interrupted"), zap.String("run_id", runID))
		return nil
	}

	summarize(logger, vm)

	if dump {
		filename, err := report.Dump(vm)
		if err != nil {
			return fmt.Errorf("dump view to file: %w", err)
		}
		logger.Info("dumping view to file", zap.String("filename", filename))
	}

	if vm.Phase == "errored" {
		return fmt.Errorf("%w: %s", errRunFailed, vm.Error)
	}
	return nil
}

func summarize(logger *zap.Logger, vm projection.ViewModel) {
	pretty, _ := json.MarshalIndent(report.ByCompany(vm), "", "  ")
	logger.Info(string(pretty))
	logger.Info("run summary",
		zap.String("run_id", vm.RunID),
		zap.String("phase", vm.Phase),
		zap.Int("applied", vm.Counts.Applied),
		zap.Int("blocked", vm.Counts.Violations),
		zap.Int("in progress", vm.Counts.InProgress),
		zap.Int("not selected", vm.Counts.Listed),
	)
}

// readResume loads the resume text from path, stdin for "-", or asks for a path.
func readResume(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		prompt := promptui.Prompt{
			Label: "Resume file",
			Validate: func(input string) error {
				if _, err := os.Stat(strings.TrimSpace(input)); err != nil {
					return errors.New("file not found")
				}
				return nil
			},
		}
		input, err := prompt.Run()
		if err != nil {
			return "", err
		}
		path = strings.TrimSpace(input)
	}

	var (
		data []byte
		err  error
	)
	if path == stdinMarker {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read resume %q: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("resume %q is empty", path)
	}
	return text, nil
}
