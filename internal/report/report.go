// Package report turns a finished result set into a downloadable tabular
// document. Export is triggered only by explicit user action.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pkale/intervue/internal/interview"
)

var header = []string{"Q#", "Question", "Correct Answer", "Your Answer", "Emotion", "Accuracy %"}

// Build renders the ledger into ordered rows, one per question. Similarity
// is the stored numeric value suffixed with a percent marker.
func Build(results []interview.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Question,
			r.CorrectAnswer,
			r.UserAnswer,
			r.Emotion,
			formatSimilarity(r.Similarity),
		})
	}
	return rows
}

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write report row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

func formatSimilarity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
