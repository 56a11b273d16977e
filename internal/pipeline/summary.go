package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/utils"
)

const SummaryFile = "summary.json"

func WriteSummary(path string, s models.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

func ReadSummary(path string) (models.RunSummary, error) {
	var s models.RunSummary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode run summary %s: %w", path, err)
	}
	return s, nil
}
