package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablestore/internal/core"
)

// decodeJSON reads a JSON body of at most maxJSONBody bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return core.Validation("request body is empty")
		}
		return core.Validation("invalid JSON body")
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

var dispositionReplacer = strings.NewReplacer(`"`, "_", `\`, "_", "\r", "_", "\n", "_")

// contentDisposition builds an attachment header for a user supplied name.
func contentDisposition(filename string) string {
	return `attachment; filename="` + dispositionReplacer.Replace(filename) + `"`
}
