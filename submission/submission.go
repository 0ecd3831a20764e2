// Package submission writes the final predictions as a CSV file.
package submission

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TimeLayout is the timestamp format embedded in submission file names.
const TimeLayout = "20060102_150405"

var Header = []string{"ImageID", "ans"}

type Row struct {
	ImageID string
	Ans     int
}

// FileName returns "{modelName}-{timestamp}-submission.csv".
func FileName(modelName string, now time.Time) string {
	return fmt.Sprintf("%s-%s-submission.csv", modelName, now.Format(TimeLayout))
}

// Records renders rows with the directory stripped from each ImageID.
func Records(rows []Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, Header)
	for _, r := range rows {
		out = append(out, []string{filepath.Base(r.ImageID), strconv.Itoa(r.Ans)})
	}
	return out
}

// Write stores rows under dir and returns the file path. The file appears
// only once fully written.
func Write(dir, modelName string, now time.Time, rows []Row) (string, error) {
	path := filepath.Join(dir, FileName(modelName, now))
	tmp, err := os.CreateTemp(dir, ".submission-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create submission: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(Records(rows)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write submission: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close submission: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store submission: %w", err)
	}
	return path, nil
}
