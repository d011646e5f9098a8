package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

func mkSessionDir(outputsRoot string, now time.Time) (string, error) {
	dir := filepath.Join(outputsRoot, "session_"+now.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func persist(outputsRoot string, r *Report) (string, error) {
	dir, err := mkSessionDir(outputsRoot, r.StartedAt)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report_"+r.RunID+".json")
	if err := writeJSON(path, r); err != nil {
		return "", err
	}
	return path, nil
}

func ReadReport(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r Report
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return nil, err
	}
	r.Path = path
	return &r, nil
}
