package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
)

// printer renders API objects in the selected output format. Table output is
// produced by a per-command row function.
type printer struct {
	out    io.Writer
	format string
}

func (p *printer) print(v any, header []any, rows func(t *uitable.Table)) error {
	switch p.format {
	case options.OutputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case options.OutputYAML:
		// Round trip through JSON so field names match the API.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()

	default:
		t := uitable.New()
		t.MaxColWidth = 60
		t.AddRow(header...)
		rows(t)
		_, err := fmt.Fprintln(p.out, t)
		return err
	}
}
