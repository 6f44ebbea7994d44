package tabular

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// repairJSON converts a JSON answer (array of arrays, array of objects keyed
// by column name, or an object wrapping such an array) into schema rows.
func (s Schema) repairJSON(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "[") && !strings.HasPrefix(t, "{") {
		return "", false
	}

	repaired, err := jsonrepair.JSONRepair(t)
	if err != nil {
		return "", false
	}
	var payload any
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return "", false
	}

	var rows [][]string
	for _, item := range jsonItems(payload) {
		row := s.jsonRow(item)
		if row == nil || s.matchesHeader(row) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return "", false
	}
	return s.write(rows), true
}

func jsonItems(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := v[k].([]any); ok {
				return arr
			}
		}
	}
	return nil
}

func (s Schema) jsonRow(item any) []string {
	switch v := item.(type) {
	case []any:
		row := make([]string, len(v))
		for i, cell := range v {
			row[i] = jsonCell(cell)
		}
		return row
	case map[string]any:
		row := make([]string, s.Width())
		matched := false
		for i, col := range s.Columns {
			if cell, ok := v[col]; ok {
				row[i] = jsonCell(cell)
				matched = true
			}
		}
		if !matched {
			return nil
		}
		return row
	}
	return nil
}

func jsonCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	case []any:
		parts := make([]string, len(c))
		for i, p := range c {
			parts[i] = jsonCell(p)
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
