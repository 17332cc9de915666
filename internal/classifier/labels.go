package classifier

import (
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads a newline-delimited label list. Blank lines are
// skipped; the resulting order must match the model's output vector.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read labels: %v", ErrInitialization, err)
	}
	var labels []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: label list is empty", ErrInitialization)
	}
	return labels, nil
}
