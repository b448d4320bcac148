package gql

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	mothr "github.com/rs21io/mothr-go"
)

// Resolve turns a possibly dotted field path into a selection on the named
// root type. A single-segment path resolves to a leaf field; each non-final
// segment must name a field whose type is an object, and the final segment
// must name a leaf. Any unknown type, unknown field, or mis-shaped path
// returns a *mothr.FieldError — a path is never silently dropped, since a
// dropped field would corrupt the result shape the caller expects.
func Resolve(typeName, path string) (*ast.Field, error) {
	def := schema.Types[typeName]
	if def == nil {
		return nil, &mothr.FieldError{
			Type:    typeName,
			Path:    path,
			Segment: typeName,
			Reason:  "unknown type",
		}
	}
	return resolve(def, path, strings.Split(path, "."))
}

// Selections resolves every path against the root type, preserving order.
func Selections(typeName string, paths []string) (ast.SelectionSet, error) {
	sel := make(ast.SelectionSet, 0, len(paths))
	for _, p := range paths {
		f, err := Resolve(typeName, p)
		if err != nil {
			return nil, err
		}
		sel = append(sel, f)
	}
	return sel, nil
}

func resolve(def *ast.Definition, path string, segments []string) (*ast.Field, error) {
	seg := segments[0]
	fd := def.Fields.ForName(seg)
	if fd == nil {
		return nil, &mothr.FieldError{
			Type:    def.Name,
			Path:    path,
			Segment: seg,
			Reason:  "no such field",
		}
	}

	child := schema.Types[fd.Type.Name()]
	field := &ast.Field{Name: seg}

	if len(segments) == 1 {
		// Terminal segment: must be a leaf. Selecting a bare object would
		// produce an invalid query.
		if child != nil && child.Kind == ast.Object {
			return nil, &mothr.FieldError{
				Type:    def.Name,
				Path:    path,
				Segment: seg,
				Reason:  "field is an object and requires a subfield selection",
			}
		}
		return field, nil
	}

	// Intermediate segment: must decompose into subfields.
	if child == nil || child.Kind != ast.Object {
		return nil, &mothr.FieldError{
			Type:    def.Name,
			Path:    path,
			Segment: seg,
			Reason:  "field is a leaf and cannot be descended into",
		}
	}

	inner, err := resolve(child, path, segments[1:])
	if err != nil {
		return nil, err
	}
	field.SelectionSet = ast.SelectionSet{inner}
	return field, nil
}
