package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/loopshape/internal/freq"
)

// WriteCSV writes one row per grid point: ω followed by the singular
// values in descending order.
func WriteCSV(w io.Writer, resp freq.Response) error {
	sv := freq.SingularValues(resp)
	cw := csv.NewWriter(w)
	n := min(resp.Outputs, resp.Inputs)
	header := []string{"omega"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("sigma%d", i+1))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for k, omega := range resp.Omega {
		row := []string{strconv.FormatFloat(omega, 'g', -1, 64)}
		for _, s := range sv[k] {
			row = append(row, strconv.FormatFloat(s, 'g', 10, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
