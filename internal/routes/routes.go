// Package routes defines the CodeCanvas page table.
//
// Each page route has a path, the view that renders it, the layout it sits
// in and an access rule. Access comes from the route itself when given, else
// from routes.yaml, else defaults to public. The server mounts the table on
// chi and wraps every route in Gate.
package routes

import (
	"strings"
)

// Layout is the page chrome a view renders inside.
type Layout string

const (
	// LayoutBare renders the view alone (auth pages, 404).
	LayoutBare Layout = "bare"
	// LayoutMain adds the header (when signed in) and the toast host.
	LayoutMain Layout = "main"
)

// View names. Each has a template set in package web.
const (
	ViewHome           = "home"
	ViewTrending       = "trending"
	ViewSearch         = "search"
	ViewEditor         = "editor"
	ViewPen            = "pen"
	ViewLogin          = "login"
	ViewSignup         = "signup"
	ViewCallback       = "callback"
	ViewError          = "error"
	ViewPromptPassword = "prompt-password"
	ViewResetPassword  = "reset-password"
	ViewNotFound       = "notfound"
)

// CatchAll is the path of the not-found route.
const CatchAll = "*"

// RouteOptions describes a route before its access rule is resolved.
type RouteOptions struct {
	Path   string // relative, e.g. "pen/:id"; ignored for index routes
	Index  bool
	View   string
	Access Access // overrides the config when set
	Layout Layout
	Meta   map[string]string
}

// Route is a resolved entry of the page table.
type Route struct {
	Path   string // "/pen/:id", "/" for the index, "*" for the catch-all
	Index  bool
	View   string
	Access Access
	Layout Layout
	Meta   map[string]string
}

// configPath is the key a route is looked up under in the access config.
func configPath(opts RouteOptions) string {
	switch {
	case opts.Index:
		return "/"
	case opts.Path == CatchAll:
		return CatchAll
	case strings.HasPrefix(opts.Path, "/"):
		return opts.Path
	default:
		return "/" + opts.Path
	}
}

// CreateRoute resolves opts against cfg.
func CreateRoute(cfg *AccessConfig, opts RouteOptions) Route {
	path := configPath(opts)

	access := opts.Access
	if access == "" {
		if rc, ok := cfg.Lookup(path); ok {
			access = rc.Allow
		}
	}
	if access == "" {
		access = Public
	}

	layout := opts.Layout
	if layout == "" {
		layout = LayoutBare
	}

	return Route{
		Path:   path,
		Index:  opts.Index,
		View:   opts.View,
		Access: access,
		Layout: layout,
		Meta:   opts.Meta,
	}
}

// Pattern converts the route path to chi syntax: ":id" becomes "{id}".
func (r Route) Pattern() string {
	if r.Path == CatchAll {
		return "/*"
	}
	segs := strings.Split(r.Path, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			segs[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

// Title is the page title from the route's meta, if any.
func (r Route) Title() string {
	return r.Meta["title"]
}

// Table returns the CodeCanvas page table.
func Table(cfg *AccessConfig) []Route {
	bare := func(path, view, title string) Route {
		return CreateRoute(cfg, RouteOptions{
			Path:   path,
			View:   view,
			Layout: LayoutBare,
			Meta:   map[string]string{"title": title},
		})
	}
	main := func(opts RouteOptions, title string) Route {
		opts.Layout = LayoutMain
		opts.Meta = map[string]string{"title": title}
		return CreateRoute(cfg, opts)
	}

	return []Route{
		// Authentication routes, outside the main layout.
		bare("login", ViewLogin, "Log in"),
		bare("signup", ViewSignup, "Sign up"),
		bare("callback", ViewCallback, "Signing in"),
		bare("error", ViewError, "Something went wrong"),
		bare("prompt-password/:appId/:emailAddress/:provider", ViewPromptPassword, "Set a password"),
		bare("reset-password/:appId/:fields", ViewResetPassword, "Reset password"),

		// Main app routes.
		main(RouteOptions{Index: true, View: ViewHome}, "Explore"),
		main(RouteOptions{Path: "trending", View: ViewTrending}, "Trending"),
		main(RouteOptions{Path: "search", View: ViewSearch}, "Search"),
		main(RouteOptions{Path: "editor", View: ViewEditor}, "New Pen"),
		main(RouteOptions{Path: "editor/:id", View: ViewEditor}, "Edit Pen"),
		main(RouteOptions{Path: "pen/:id", View: ViewPen}, "Pen"),

		bare(CatchAll, ViewNotFound, "Page not found"),
	}
}
