package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
	"github.com/klauern/dxnodes/internal/ui"
)

// textHidden are envelope fields left out of text output. The tree is shown
// through displayList and the log through the diagnostics section.
var textHidden = map[string]bool{"tree": true, "log": true}

// render writes env in format and returns an error when the operation
// failed, so the process exits non-zero.
func render(w io.Writer, format, operation string, env *diagnostics.Envelope) error {
	var err error
	switch format {
	case "json":
		err = writeJSON(w, env)
	case "yaml":
		err = writeYAML(w, env)
	default:
		writeText(w, operation, env)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s output: %w", format, err)
	}
	if !env.Success {
		if env.Err != nil {
			return fmt.Errorf("%s failed: %w", operation, env.Err)
		}
		return fmt.Errorf("%s failed", operation)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeText(w io.Writer, operation string, env *diagnostics.Envelope) {
	if env.Success {
		_, _ = fmt.Fprintln(w, ui.StatusSuccess(operation))
	} else {
		_, _ = fmt.Fprintln(w, ui.StatusError(operation))
	}

	for _, f := range env.Fields {
		if textHidden[f.Name] {
			continue
		}
		label := ui.Bold(ui.FieldLabel(f.Name) + ":")
		switch v := f.Value.(type) {
		case []string:
			if len(v) == 0 {
				_, _ = fmt.Fprintf(w, "%s %s\n", label, ui.Dim("(none)"))
				continue
			}
			_, _ = fmt.Fprintln(w, label)
			for _, s := range v {
				if f.Name == "displayList" {
					_, _ = fmt.Fprintf(w, "  %s\n", s)
				} else {
					_, _ = fmt.Fprintf(w, "  - %s\n", s)
				}
			}
		default:
			_, _ = fmt.Fprintf(w, "%s %s\n", label, textValue(f.Value))
		}
	}

	if env.Diagnostics != "" {
		_, _ = fmt.Fprintln(w, ui.Header("Diagnostics:"))
		for _, line := range strings.Split(env.Diagnostics, "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", ui.DiagnosticLine(line))
		}
	}
}

func textValue(v any) string {
	switch v := v.(type) {
	case model.Exchange:
		return fmt.Sprintf("%s (%s)", v.DisplayTitle(), v.Identifier())
	case model.Identifier:
		return v.String()
	case model.Unit:
		return v.String()
	case *structure.Tree:
		return fmt.Sprintf("%d node(s)", v.Len())
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+v[k])
		}
		return strings.Join(parts, ", ")
	case string:
		if v == "" {
			return ui.Dim("(none)")
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
