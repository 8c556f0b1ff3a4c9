package agentlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// WritePrompt stores the prompt for agentID in a side file under
// responsesDir/promptsDir and returns its path relative to responsesDir,
// which is what the log header's Prompt field references.
func WritePrompt(responsesDir, promptsDir, agentID, prompt string) (string, error) {
	dir := filepath.Join(responsesDir, promptsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating prompts dir: %w", err)
	}
	rel := filepath.Join(promptsDir, agentID+".txt")
	if err := os.WriteFile(filepath.Join(responsesDir, rel), []byte(prompt), 0644); err != nil {
		return "", fmt.Errorf("writing prompt file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// ReadPrompt loads the prompt side file referenced by a header.
func ReadPrompt(responsesDir string, h Header) (string, error) {
	if h.Prompt == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(filepath.Join(responsesDir, filepath.FromSlash(h.Prompt)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
