package intake

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// ReadCSV reads leads from a delimited export with a header row. The
// delimiter is taken from the header line: comma unless it holds more
// semicolons or tabs.
func ReadCSV(path string) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open csv")
	}
	defer f.Close() //nolint:errcheck

	br := bufio.NewReader(f)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, eris.Wrap(err, "intake: read csv")
	}

	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(string(head))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "intake: read csv row %d", len(rows)+1)
		}
		rows = append(rows, rec)
	}
	return parseRows(rows)
}

func sniffDelimiter(head string) rune {
	line, _, _ := strings.Cut(head, "\n")
	best, n := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(line, string(d)); c > n {
			best, n = d, c
		}
	}
	return best
}
