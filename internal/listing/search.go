package listing

import "strings"

// NormalizeQuery trims a title query. An empty result means no filter.
func NormalizeQuery(q string) string {
	return strings.TrimSpace(q)
}

// escapeLike escapes LIKE metacharacters so the query is matched literally.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}
