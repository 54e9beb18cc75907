package shell

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/CZERTAINLY/Herder/internal/job"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Record is the shell visible value of a job.
type Record struct {
	ID      uint64 `json:"id" yaml:"id"`
	Command string `json:"command" yaml:"command"`
	Status  string `json:"status" yaml:"status"`
}

func records(ds []job.Descriptor) []Record {
	ret := make([]Record, 0, len(ds))
	for _, d := range ds {
		ret = append(ret, Record{
			ID:      uint64(d.ID),
			Command: d.Label,
			Status:  d.Status.String(),
		})
	}
	return ret
}

func render(w io.Writer, format string, recs []Record) error {
	switch format {
	case "", FormatTable:
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"id", "command", "status"})
		table.SetAutoWrapText(false)
		for _, r := range recs {
			table.Append([]string{strconv.FormatUint(r.ID, 10), r.Command, r.Status})
		}
		table.Render()
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(recs)
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrUsage, format)
	}
}
