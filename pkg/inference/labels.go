package inference

import (
	"bufio"
	"os"
	"strings"
)

// LoadLabels reads a class table with one name per line; line i is class i.
// Blank lines are kept as empty names so indices stay aligned.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	return labels, nil
}

func labelMap(labels []string) map[int]string {
	names := make(map[int]string, len(labels))
	for i, l := range labels {
		if l != "" {
			names[i] = l
		}
	}
	return names
}
