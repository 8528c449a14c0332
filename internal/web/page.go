package web

import (
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
)

// Page is the data every layout receives.
type Page struct {
	Title  string
	User   *model.User // nil when signed out
	Toasts []notify.Toast
	Query  string // header search box
	GitHub bool   // GitHub sign-in is configured
	AppID  string
	Data   any
}

// SignedIn reports whether the header should be shown.
func (p *Page) SignedIn() bool {
	return p.User != nil
}

// HomeData feeds the home view.
type HomeData struct {
	Pens     []*model.Pen
	Trending []*model.Pen
}

// ListData feeds the trending view.
type ListData struct {
	Pens []*model.Pen
}

// Option is one entry of a select box.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// SearchData feeds the search view.
type SearchData struct {
	Query   string
	Sorts   []Option
	Filters []Option
	Pens    []*model.Pen
}

// EditorData feeds the editor view. Pen is nil for a new pen.
type EditorData struct {
	Pen    *model.Pen
	Input  model.PenInput
	Action string
	Tags   string
	Runner bool // the JavaScript sandbox is available
}

// PenData feeds the pen detail view.
type PenData struct {
	Pen      *model.Pen
	Owner    bool
	Document string
}

// AuthFormData feeds the login and signup views.
type AuthFormData struct {
	Email     string
	FirstName string
	Redirect  string
	Error     string
}

// MessageData feeds the error, callback and not-found views.
type MessageData struct {
	Message string
}

// PasswordData feeds the prompt-password and reset-password views.
type PasswordData struct {
	Action   string
	Email    string
	Provider string
	Token    string
	Error    string
	Sent     bool // a reset link was requested
}
