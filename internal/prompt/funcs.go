package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"upper": strings.ToUpper,
	"join":  strings.Join,
}
