package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/logger"
	"github.com/spigell/jobpilot/internal/portal"
)

const descriptionPreview = 80

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the job catalog of the portal",
	Run: func(cmd *cobra.Command, _ []string) {
		listJobs(cmd)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().Bool("raw", false, "print the catalog as json")
}

func listJobs(cmd *cobra.Command) {
	raw, _ := cmd.Flags().GetBool("raw")

	// Keep stdout clean for the json output.
	output := ""
	if raw {
		output = "stderr"
	}
	log, config := setup(output)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client := portal.New(log, config.Server)
	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}

	jobs, err := client.ListJobs(ctx)
	if err != nil {
		log.Fatal("getting job catalog", zap.Error(err))
	}

	if raw {
		pretty, _ := json.MarshalIndent(jobs.Items, "", "  ")
		fmt.Println(string(pretty))
		return
	}

	for _, job := range jobs.Items {
		log.Info(job.Title,
			zap.String("id", job.ID),
			zap.String("company", job.Company),
			zap.String("description", logger.TruncateForLog(job.Description, descriptionPreview)),
		)
	}
	log.Info("job catalog", zap.Int("count", jobs.Len()))
}
