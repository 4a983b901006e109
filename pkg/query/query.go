// Package query renders MongoDB operations as shell-syntax strings for
// debug logging. The output is for humans reading logs; it is never sent
// to the database.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a collection method name as it appears in shell syntax.
type Op string

const (
	FindOne   Op = "findOne"
	Find      Op = "find"
	InsertOne Op = "insertOne"
	UpdateOne Op = "updateOne"
)

// Shell renders an operation as a MongoDB shell line, for example
// db.weather_credentials.findOne({'keyId':'ABC123'}). Each argument is
// rendered as a shell document; one that cannot be marshalled renders
// as "...".
func Shell(collection string, op Op, args ...any) string {
	rendered := make([]string, len(args))
	for i, arg := range args {
		rendered[i] = shellDoc(arg)
	}
	return fmt.Sprintf("db.%s.%s(%s)", collection, op, strings.Join(rendered, ", "))
}

// shellDoc marshals v and rewrites the JSON into shell style with single
// quotes. Escapes introduced by the marshal step are undone so the logged
// form reads like what a user would type.
func shellDoc(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "..."
	}
	s := strings.ReplaceAll(string(raw), `"`, `'`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// TruncateQuery caps a string at maxLength for logging, marking the cut
// with an ellipsis when there is room for one.
func TruncateQuery(query string, maxLength int) string {
	if len(query) <= maxLength {
		return query
	}
	if maxLength <= 3 {
		if maxLength < 0 {
			maxLength = 0
		}
		return query[:maxLength]
	}
	return query[:maxLength-3] + "..."
}
