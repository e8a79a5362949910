package service

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

func configString(config map[string]interface{}, key string) string {
	if v, ok := config[key]; ok {
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s)
		case fmt.Stringer:
			return s.String()
		}
	}
	return ""
}

func configFloat(config map[string]interface{}, key string, fallback float64) float64 {
	v, ok := config[key]
	if !ok || v == nil {
		return fallback
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toStrings(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// signer is one recipient of a signature-routing step
type signer struct {
	Email string
	Name  string
	Order int
}

// parseSigners reads the signers list and orders it by signing order.
// Signers without an explicit order keep their list position.
func parseSigners(config map[string]interface{}) ([]signer, error) {
	var raw []map[string]interface{}
	switch list := config["signers"].(type) {
	case []interface{}:
		for i, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("signers[%d] is not an object", i)
			}
			raw = append(raw, m)
		}
	case []map[string]interface{}:
		raw = list
	default:
		return nil, fmt.Errorf("signers must be a list")
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one signer is required")
	}

	signers := make([]signer, 0, len(raw))
	for i, m := range raw {
		email := configString(m, "email")
		if email == "" {
			return nil, fmt.Errorf("signers[%d] has no email", i)
		}
		order := i + 1
		if f, ok := toFloat(m["order"]); ok && f >= 1 {
			order = int(math.Floor(f))
		}
		signers = append(signers, signer{
			Email: strings.ToLower(email),
			Name:  configString(m, "name"),
			Order: order,
		})
	}

	sort.SliceStable(signers, func(i, j int) bool { return signers[i].Order < signers[j].Order })
	return signers, nil
}
