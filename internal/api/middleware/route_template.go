package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// requestRouteTemplate returns the gorilla/mux template that matched r, if
// any. Returns "" when r was not dispatched through a mux.Router.
func requestRouteTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}
