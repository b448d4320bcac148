// Package gql builds the GraphQL operations the SDK sends to MOTHR. It
// embeds the API schema and resolves dotted field paths ("parameters.name")
// into nested selection sets, so an invalid field fails here, before any
// network call is made.
package gql

import (
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

// schema is the parsed MOTHR API schema. Loading happens once at package
// init; the SDL is part of the build, so a parse failure is a programming
// error, not a runtime condition.
var schema = gqlparser.MustLoadSchema(&ast.Source{
	Name:  "schema.graphql",
	Input: schemaSDL,
})

// Schema returns the embedded MOTHR API schema.
func Schema() *ast.Schema { return schema }
