package cmd

import (
	"fmt"
	"io"

	"github.com/skydoves/firebase-android-ktx/database"
	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to w.
func yamlOut(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// printEvent prints one event row, either as a YAML document or as a
// ">> KIND detail" text line.
func printEvent(w io.Writer, row map[string]any) {
	if useYAML {
		fmt.Fprintln(w, "---")
		yamlOut(w, row)
		return
	}
	kind, _ := row["event"].(string)
	line := ">> " + kind
	if prev, ok := row["previous"].(string); ok {
		line += " after=" + prev
	}
	if v, ok := row["value"]; ok {
		line += " " + formatValue(v)
	}
	if e, ok := row["error"].(string); ok {
		line += " error=" + e
	}
	fmt.Fprintln(w, line)
}

// formatValue renders a decoded value as canonical JSON, or "null".
func formatValue(v any) string {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return "null"
	}
	s, err := database.EncodeValue(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return s
}
