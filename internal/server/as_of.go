package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/harborlight-ed/harborlight/internal/routing"
)

const asOfLayout = "2006-01-02"

// asOfFromRequest reads the optional as_of query parameter. Absent means
// now; a malformed value writes a 400 and reports !ok.
func asOfFromRequest(w http.ResponseWriter, r *http.Request, now func() time.Time) (time.Time, bool) {
	asOf := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if asOf == "" {
		return now().UTC(), true
	}
	t, err := time.Parse(asOfLayout, asOf)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return time.Time{}, false
	}
	return t.UTC(), true
}
