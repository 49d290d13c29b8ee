// Package csvbatch validates uploaded keyword files.
//
// A batch file is a single-column CSV without a header row: each row holds one
// keyword. Blank rows are skipped and duplicates are kept in file order.
package csvbatch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Reason classifies why a batch file was rejected.
type Reason int

const (
	MissingFile Reason = iota + 1
	WrongType
	MalformedRow
)

// Code returns the stable error code exposed to API clients.
func (r Reason) Code() string {
	switch r {
	case WrongType:
		return "wrong_type"
	default:
		return "invalid_file"
	}
}

func (r Reason) String() string {
	switch r {
	case MissingFile:
		return "missing file"
	case WrongType:
		return "wrong type"
	case MalformedRow:
		return "malformed row"
	default:
		return "unknown"
	}
}

// Rejection is returned when a file cannot be accepted as a keyword batch.
type Rejection struct {
	Reason  Reason
	Details []string
}

func (r *Rejection) Error() string {
	if len(r.Details) == 0 {
		return "csv rejected: " + r.Reason.String()
	}
	return fmt.Sprintf("csv rejected: %s: %s", r.Reason, strings.Join(r.Details, "; "))
}

// Messages shown to API clients for each rejection reason.
const (
	MsgMissingFile = "A CSV file is required"
	MsgWrongType   = "File must be a CSV"
)

// File is an uploaded batch. ContentType is the declared media type and may
// carry parameters such as charset.
type File struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

var csvMediaTypes = map[string]struct{}{
	"text/csv":                    {},
	"application/csv":             {},
	"text/x-csv":                  {},
	"application/x-csv":           {},
	"text/comma-separated-values": {},
	"application/vnd.ms-excel":    {},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Validate checks f and returns the ordered keyword names it contains. Any
// rejection is returned as a *Rejection.
func Validate(f *File) ([]string, error) {
	if f == nil || f.Body == nil {
		return nil, &Rejection{Reason: MissingFile, Details: []string{MsgMissingFile}}
	}
	if !IsCSV(f.Filename, f.ContentType) {
		return nil, &Rejection{Reason: WrongType, Details: []string{MsgWrongType}}
	}

	data, err := io.ReadAll(f.Body)
	if err != nil {
		return nil, &Rejection{Reason: MalformedRow, Details: []string{fmt.Sprintf("unreadable file: %v", err)}}
	}
	return parse(bytes.TrimPrefix(data, utf8BOM))
}

// IsCSV reports whether the declared media type, or the filename when no
// useful type was declared, identifies a CSV file.
func IsCSV(filename, contentType string) bool {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return false
		}
		mediaType = strings.ToLower(mt)
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		return strings.EqualFold(filepath.Ext(filename), ".csv")
	}
	_, ok := csvMediaTypes[mediaType]
	return ok
}

func parse(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	names := []string{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &Rejection{Reason: MalformedRow, Details: []string{parseErrorDetail(err)}}
		}

		name, ok, detail := singleField(record)
		if detail != "" {
			line, _ := r.FieldPos(0)
			return nil, &Rejection{Reason: MalformedRow, Details: []string{fmt.Sprintf("row %d: %s", line, detail)}}
		}
		if ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// singleField extracts the keyword from a record. A trailing comma is
// tolerated but a second populated column is not.
func singleField(record []string) (string, bool, string) {
	name := ""
	populated := 0
	for _, field := range record {
		if v := strings.TrimSpace(field); v != "" {
			populated++
			name = v
		}
	}
	switch {
	case populated > 1:
		return "", false, fmt.Sprintf("expected 1 column, got %d", populated)
	case populated == 0:
		return "", false, ""
	}
	if strings.TrimSpace(record[0]) == "" {
		return "", false, "keyword must be in the first column"
	}
	return name, true, ""
}

func parseErrorDetail(err error) string {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Sprintf("row %d: %v", perr.StartLine, perr.Err)
	}
	return err.Error()
}
