package portal

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const jobsPath = "/jobs"

type Jobs struct {
	Items []*Job
}

// Job is an unranked catalog entry.
type Job struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Company      string `json:"company"`
	Description  string `json:"description"`
	Requirements string `json:"requirements,omitempty"`
}

// ListJobs fetches the public job catalog.
func (c *Client) ListJobs(ctx context.Context) (*Jobs, error) {
	var items []map[string]any
	if err := c.getJSON(ctx, jobsPath, "", &items); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []*Job
	cfg := &mapstructure.DecoderConfig{
		Result:           &jobs,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	c.logger.Debug("got job catalog", zap.Int("count", len(jobs)))

	return &Jobs{Items: jobs}, nil
}

func (j *Jobs) Len() int {
	return len(j.Items)
}

func (j *Jobs) FindByID(id string) *Job {
	for _, job := range j.Items {
		if job.ID == id {
			return job
		}
	}
	return nil
}
