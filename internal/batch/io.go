package batch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// #region file-names

const (
	BaselineFile = "baseline_output.txt"
	FilteredFile = "filtered_output.txt"
	FlaggedFile  = "flagged_hallucinations.txt"
)

// #endregion file-names

// #region read-prompts

// ReadPrompts loads one prompt per line, trimming whitespace and skipping blank lines.
func ReadPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts %s: %w", path, err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}
	return prompts, nil
}

// #endregion read-prompts

// #region write-artifacts

// WriteArtifacts writes the baseline, filtered and flagged-sentence files into
// dir, one record per successfully processed prompt, in processing order.
func WriteArtifacts(dir string, rep Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var baseline, filtered, flagged []string
	for _, r := range rep.Results {
		baseline = append(baseline, fmt.Sprintf("PROMPT: %s\nBASELINE OUTPUT:\n%s\n", r.Prompt, r.Baseline))
		filtered = append(filtered, fmt.Sprintf("PROMPT: %s\nFILTERED OUTPUT:\n%s\n", r.Prompt, r.Filtered.Passage))
		flagged = append(flagged, fmt.Sprintf("PROMPT: %s\nFLAGGED SENTENCES: %s\n", r.Prompt, strings.Join(r.Filtered.Rejected, ", ")))
	}

	files := []struct {
		name    string
		records []string
	}{
		{BaselineFile, baseline},
		{FilteredFile, filtered},
		{FlaggedFile, flagged},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(strings.Join(f.records, "\n")), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// #endregion write-artifacts
