// Package router maps console locations to screens.
package router

import (
	"net/url"
	"strings"
)

const (
	PathRoot   = "/"
	PathHome   = "/home"
	PathDetail = "/detail"

	TypeEdit   = "edit"
	TypeSearch = "search"
)

type View int

const (
	ViewNotFound View = iota
	ViewList
	ViewDetail
)

func (v View) String() string {
	switch v {
	case ViewList:
		return "list"
	case ViewDetail:
		return "detail"
	default:
		return "not_found"
	}
}

// Route is a resolved location. ApprovalCode and Type are only set for
// the detail view.
type Route struct {
	View         View
	Location     string
	ApprovalCode string
	Type         string
}

// Resolve parses a location such as "/detail?approval_code=A1&type=edit".
func Resolve(location string) Route {
	u, err := url.Parse(location)
	if err != nil {
		return Route{View: ViewNotFound, Location: location}
	}

	path := u.Path
	if path == "" {
		path = PathRoot
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	switch path {
	case PathRoot, PathHome:
		return Route{View: ViewList, Location: location}
	case PathDetail:
		q := u.Query()
		return Route{
			View:         ViewDetail,
			Location:     location,
			ApprovalCode: q.Get("approval_code"),
			Type:         q.Get("type"),
		}
	}
	return Route{View: ViewNotFound, Location: location}
}

// HomeLocation is where forms return after a successful save.
func HomeLocation() string {
	return PathHome
}

// DetailLocation builds a detail link. An empty code yields the create form.
func DetailLocation(approvalCode, typ string) string {
	q := url.Values{}
	if approvalCode != "" {
		q.Set("approval_code", approvalCode)
	}
	if typ != "" {
		q.Set("type", typ)
	}
	if len(q) == 0 {
		return PathDetail
	}
	return PathDetail + "?" + q.Encode()
}

// Navigator switches the console to another location in-process.
type Navigator interface {
	Navigate(location string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(location string)

func (f NavigatorFunc) Navigate(location string) {
	f(location)
}
