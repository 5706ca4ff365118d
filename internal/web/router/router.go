// Package router wraps chi with route introspection.
package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docrender/docrender/internal/web/middleware"
	"github.com/docrender/docrender/internal/web/response"
)

// Router manages HTTP routing using chi framework
type Router struct {
	mux chi.Router

	// For introspection and debugging
	registeredRoutes []RouteInfo
}

// RouteInfo provides metadata about a route for introspection
type RouteInfo struct {
	Pattern    string   `json:"pattern"`
	Method     string   `json:"method"`
	Name       string   `json:"name,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
}

// Route is returned by the registration methods so a name can be attached
type Route struct {
	router *Router
	index  []int
}

// NewRouter creates a new Router with JSON 404 and 405 handlers
func NewRouter() *Router {
	r := &Router{
		mux:              chi.NewRouter(),
		registeredRoutes: make([]RouteInfo, 0),
	}
	r.mux.NotFound(notFound)
	r.mux.MethodNotAllowed(methodNotAllowed)
	return r
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware; it must be called before any route is registered
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc) *Route {
	return r.Handle(pattern, handler, http.MethodGet)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc) *Route {
	return r.Handle(pattern, handler, http.MethodPost)
}

// Handle registers handler for every listed method
func (r *Router) Handle(pattern string, handler http.HandlerFunc, methods ...string) *Route {
	route := &Route{router: r}
	params := extractParameters(pattern)
	for _, method := range methods {
		r.mux.MethodFunc(method, pattern, handler)
		route.index = append(route.index, len(r.registeredRoutes))
		r.registeredRoutes = append(r.registeredRoutes, RouteInfo{
			Pattern:    pattern,
			Method:     method,
			Parameters: params,
		})
	}
	return route
}

// Mount attaches a sub-handler under pattern for every method
func (r *Router) Mount(pattern string, handler http.Handler) *Route {
	r.mux.Mount(pattern, handler)
	route := &Route{router: r, index: []int{len(r.registeredRoutes)}}
	r.registeredRoutes = append(r.registeredRoutes, RouteInfo{
		Pattern: pattern + "/*",
		Method:  "*",
	})
	return route
}

// Named sets a name for the route
func (route *Route) Named(name string) *Route {
	for _, i := range route.index {
		route.router.registeredRoutes[i].Name = name
	}
	return route
}

// GetRoutes returns all registered routes sorted by pattern and method
func (r *Router) GetRoutes() []RouteInfo {
	routes := make([]RouteInfo, len(r.registeredRoutes))
	copy(routes, r.registeredRoutes)
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Pattern != routes[j].Pattern {
			return routes[i].Pattern < routes[j].Pattern
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// URLParam returns a path parameter of the matched route
func URLParam(req *http.Request, name string) string {
	return chi.URLParam(req, name)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	response.RenderJSON(w, http.StatusNotFound, map[string]string{"error": "Route not found"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	response.RenderJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
}

// extractParameters extracts parameter names from a route pattern
func extractParameters(pattern string) []string {
	var params []string
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.Trim(part, "{}")
			if i := strings.IndexByte(name, ':'); i >= 0 {
				name = name[:i]
			}
			params = append(params, name)
		}
	}
	return params
}
