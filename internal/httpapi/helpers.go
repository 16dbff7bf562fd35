package httpapi

import (
	"encoding/json"
	"net/http"
)

// decodeJSON decodes the request body into v, factoring the inline
// json.NewDecoder(r.Body).Decode(&req) pattern each route file would
// otherwise repeat into one place.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
