// Package report turns view model changes into log lines.
package report

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/logger"
	"github.com/spigell/jobpilot/internal/projection"
)

// Reporter logs what changed between consecutive view models.
type Reporter struct {
	logger *zap.Logger

	mu   sync.Mutex
	prev *projection.ViewModel
}

func New(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{logger: log}
}

// Render logs the difference between vm and the previously rendered view model.
func (r *Reporter) Render(vm projection.ViewModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := projection.ViewModel{}
	if r.prev != nil {
		prev = *r.prev
	}
	if vm.RunID != prev.RunID {
		// New run: compare against an empty view so every job is reported fresh.
		prev = projection.ViewModel{Phase: prev.Phase}
	}

	log := logger.WithFields(r.logger, logger.StringFields(logger.StringField{Key: logger.FieldRunID, Value: vm.RunID})...)

	if vm.Phase != prev.Phase {
		log.Info("run phase changed", zap.String(logger.FieldPhase, vm.Phase), zap.String("previous", prev.Phase))
	}
	if vm.Message != "" && vm.Message != prev.Message {
		log.Info(vm.Message)
	}
	if vm.ListLabel == projection.LabelRanked && prev.ListLabel != projection.LabelRanked && vm.RunID != "" {
		log.Info("jobs ranked", zap.Int("count", len(vm.Jobs)))
	}
	if vm.Artifact != nil && prev.Artifact == nil {
		log.Info("identity artifact",
			zap.Strings("tags", vm.Artifact.Tags),
			zap.Strings("achievements", vm.Artifact.Achievements),
		)
	}

	before := make(map[string]projection.JobCard, len(prev.Jobs))
	for _, card := range prev.Jobs {
		before[card.ID] = card
	}
	for _, card := range vm.Jobs {
		old, seen := before[card.ID]
		if seen && old.Stage == card.Stage {
			continue
		}
		if !seen && card.Badge() == "" {
			continue
		}
		r.renderJob(log, card)
	}

	if vm.Phase == "errored" && prev.Phase != "errored" {
		log.Error("run failed", zap.String("failure", vm.Failure), zap.String("error", vm.Error))
	}

	r.prev = &vm
}

func (r *Reporter) renderJob(log *zap.Logger, card projection.JobCard) {
	fields := append(logger.JobFields(card.ID, card.Stage),
		zap.String("title", card.Title),
		zap.String("company", card.Company),
	)
	if card.MatchLabel != "" {
		fields = append(fields, zap.String("match", card.MatchLabel))
	}

	if card.Violation != nil {
		fields = append(fields,
			zap.String("reason", card.Violation.Reason),
			zap.Strings("details", card.Violation.Details),
		)
		log.Warn("application blocked", fields...)
		return
	}

	log.Info("job stage changed", fields...)
}

// Dump writes vm as indented JSON into a temporary file and returns its name.
func Dump(vm projection.ViewModel) (string, error) {
	file, err := os.CreateTemp("", "jobpilot_run_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vm); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ByCompany groups the jobs of vm by company.
func ByCompany(vm projection.ViewModel) map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, card := range vm.Jobs {
		key := strings.TrimSpace(card.Company)
		if key == "" {
			key = "unknown company"
		}

		entry := map[string]string{
			"title": card.Title,
			"stage": card.Stage,
		}
		if card.MatchLabel != "" {
			entry["match"] = card.MatchLabel
		}
		if card.Violation != nil {
			entry["blocked"] = card.Violation.Reason
		}
		if len(card.MissingSkills) > 0 {
			entry["missing skills"] = strings.Join(card.MissingSkills, ", ")
		}
		report[key] = append(report[key], entry)
	}
	return report
}
