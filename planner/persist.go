package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// History file names inside Options.HistoryDir.
const (
	RoutingHistoryFile  = "routing_history.yaml"
	FeedbackHistoryFile = "feedback_history.yaml"
)

// ErrNoHistoryDir is returned by Save and Load when persistence is disabled.
var ErrNoHistoryDir = errors.New("planner: no history directory configured")

// Save writes the routing and feedback histories to the history directory.
// Failures are logged and returned; planning is unaffected.
func (p *Planner) Save() error {
	if p.opts.HistoryDir == "" {
		return ErrNoHistoryDir
	}
	p.mu.Lock()
	history := append([]RoutingRecord(nil), p.history...)
	feedback := append([]FeedbackRecord(nil), p.feedback...)
	p.mu.Unlock()

	if err := os.MkdirAll(p.opts.HistoryDir, 0o755); err != nil {
		p.logger.Warn("planner history not saved", "error", err)
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := writeYAML(filepath.Join(p.opts.HistoryDir, RoutingHistoryFile), history); err != nil {
		p.logger.Warn("planner history not saved", "error", err)
		return err
	}
	if err := writeYAML(filepath.Join(p.opts.HistoryDir, FeedbackHistoryFile), feedback); err != nil {
		p.logger.Warn("planner history not saved", "error", err)
		return err
	}
	return nil
}

// Load replaces the histories with the persisted ones, keeping the newest
// MaxPlanHistory entries of each, and rebuilds performance statistics and
// learned keywords by replaying the feedback. Missing files load as empty.
func (p *Planner) Load() error {
	if p.opts.HistoryDir == "" {
		return ErrNoHistoryDir
	}
	var history []RoutingRecord
	if err := readYAML(filepath.Join(p.opts.HistoryDir, RoutingHistoryFile), &history); err != nil {
		p.logger.Warn("planner history not loaded", "error", err)
		return err
	}
	var feedback []FeedbackRecord
	if err := readYAML(filepath.Join(p.opts.HistoryDir, FeedbackHistoryFile), &feedback); err != nil {
		p.logger.Warn("planner history not loaded", "error", err)
		return err
	}
	if over := len(history) - p.opts.MaxPlanHistory; over > 0 {
		history = history[over:]
	}
	if over := len(feedback) - p.opts.MaxPlanHistory; over > 0 {
		feedback = feedback[over:]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = history
	p.feedback = feedback
	p.stats = map[string]*AgentStats{}
	p.learned = map[string][]string{}
	for _, rec := range feedback {
		p.applyFeedback(rec)
	}
	p.logger.Debug("planner history loaded", "routing", len(history), "feedback", len(feedback))
	return nil
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
