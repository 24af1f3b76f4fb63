/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cmdutil binds controller operations to command names and REST routes.
package cmdutil

import (
	"net/http"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command"
)

// Route is a REST endpoint. It satisfies rest.Handler.
type Route struct {
	path, method string
	handle       http.HandlerFunc
}

// NewHTTPHandler returns the route serving method requests on path.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *Route {
	return &Route{path: path, method: method, handle: handle}
}

// Path is the mux path template, e.g. /exchange/{id}.
func (r *Route) Path() string { return r.path }

// Method is the HTTP method.
func (r *Route) Method() string { return r.method }

// Handle returns the handler func.
func (r *Route) Handle() http.HandlerFunc { return r.handle }

// Binding is a controller command. It satisfies command.Handler.
type Binding struct {
	name, method string
	exec         command.Exec
}

// NewCommandHandler binds exec to the command name and method.
func NewCommandHandler(name, method string, exec command.Exec) *Binding {
	return &Binding{name: name, method: method, exec: exec}
}

// Name of the command.
func (b *Binding) Name() string { return b.name }

// Method of the command.
func (b *Binding) Method() string { return b.method }

// Handle returns the execute function.
func (b *Binding) Handle() command.Exec { return b.exec }
