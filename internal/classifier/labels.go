package classifier

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// maxLabelLine bounds a single line of a labels file.
const maxLabelLine = 1 << 20

// Labels maps class indices to names. It is never modified after loading.
type Labels []string

// LoadLabels reads one label per line. Interior blank lines are kept so
// that line numbers stay aligned with class indices.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ModelLoadError{Resource: "labels", Err: err}
	}
	defer f.Close()

	labels, err := ReadLabels(f)
	if err != nil {
		return nil, &model.ModelLoadError{Resource: "labels", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return labels, nil
}

// ReadLabels is LoadLabels for an open stream.
func ReadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLabelLine)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if len(labels) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("no labels")
	}
	return labels, nil
}

// scanLines splits on "\n", "\r\n" and a lone "\r".
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A trailing "\r" may be the first half of "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Label returns the name for index i.
func (l Labels) Label(i int) (string, error) {
	if i < 0 || i >= len(l) {
		return "", &model.IndexOutOfRangeError{Index: i, Labels: len(l)}
	}
	return l[i], nil
}
