package storage

import (
	"encoding/json"
	"io"
	"os"
)

// ExportJSON writes rec as indented JSON to path.
func ExportJSON(path string, rec *Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, rec)
}

func WriteJSON(w io.Writer, rec *Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rec)
}
