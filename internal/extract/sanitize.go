package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var numericKeys = []string{
	"EXENTO TOTAL", "SERVICIO EXENTO", "BIEN EXENTO",
	"GRAVADO TOTAL", "SERVICIO GRAVADO", "BIEN GRAVADO",
	"ITBIS TOTAL", "ITBIS SERVICIO", "ITBIS BIEN",
	"ITBIS RETENIDO", "RETENCION 30", "RETENCION 10", "RETENCION 2",
	"PROPINA", "TOTAL FACTURADO", "TOTAL A COBRAR",
	"CONF_BIEN_SERVICIO",
}

var stringKeys = []string{"RNC", "NCF", "FECHA", "RAZON_DUDA"}

// SanitizeItem normalizes one raw extraction element so the stricter schema
// can still validate:
//   - coerces numeric strings ("1,234.56") to numbers
//   - drops null / empty / "null" values
//   - coerces string booleans on FLAG_DUDOSO
//   - trims string fields
//
// It returns the cleaned JSON plus the keys it dropped.
func SanitizeItem(item map[string]any) ([]byte, []string, error) {
	m := make(map[string]any, len(item))
	for k, v := range item {
		m[k] = v
	}

	var dropped []string

	for _, k := range numericKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			// already a number
		case string:
			s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				dropped = append(dropped, k)
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				delete(m, k)
				dropped = append(dropped, k)
				continue
			}
			m[k] = f
		case nil:
			delete(m, k)
			dropped = append(dropped, k)
		default:
			delete(m, k)
			dropped = append(dropped, k)
		}
	}

	if v, ok := m["FLAG_DUDOSO"]; ok {
		switch t := v.(type) {
		case bool:
		case string:
			s := strings.ToLower(strings.TrimSpace(t))
			m["FLAG_DUDOSO"] = s == "true" || s == "si" || s == "sí"
		default:
			delete(m, "FLAG_DUDOSO")
			dropped = append(dropped, "FLAG_DUDOSO")
		}
	}

	// ID may arrive as a string; the committer matches rows by it.
	if v, ok := m["ID"].(string); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			m["ID"] = float64(n)
		}
	}

	for _, k := range stringKeys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				s := strings.TrimSpace(t)
				if s == "" || strings.EqualFold(s, "null") {
					delete(m, k)
					dropped = append(dropped, k)
				} else {
					m[k] = s
				}
			case nil:
				delete(m, k)
				dropped = append(dropped, k)
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}
