package dispatcher

import (
	"net/url"
	"strconv"
	"strings"
)

// bindParams strips the API prefix from the path, splits the remainder on
// "/", discards empty segments and zips the result positionally against the
// route's declared parameter names.
func bindParams(path, prefix string, names []string) map[string]string {
	params := make(map[string]string, len(names))
	if len(names) == 0 {
		return params
	}

	trimmed := strings.TrimPrefix(path, prefix)
	segments := make([]string, 0, len(names))
	for _, s := range strings.Split(trimmed, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	// Paths following the collection/id convention bind each name to the
	// value segment of its pair; anything else zips positionally.
	if len(segments) == 2*len(names) {
		for i, name := range names {
			params[name] = segments[2*i+1]
		}
		return params
	}

	for i, name := range names {
		if i < len(segments) {
			params[name] = segments[i]
		}
	}
	return params
}

// parseQuery coerces query values: numeric strings become float64,
// "true"/"false" become bool, everything else stays a string. Repeated keys
// and comma-separated values map to arrays, coerced element-wise.
func parseQuery(values url.Values) map[string]interface{} {
	query := make(map[string]interface{}, len(values))
	for key, vals := range values {
		switch {
		case len(vals) > 1:
			query[key] = coerceAll(vals)
		case len(vals) == 1 && strings.Contains(vals[0], ","):
			query[key] = coerceAll(strings.Split(vals[0], ","))
		case len(vals) == 1:
			query[key] = coerceValue(vals[0])
		}
	}
	return query
}

func coerceAll(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = coerceValue(v)
	}
	return out
}

func coerceValue(s string) interface{} {
	if s == "" {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
