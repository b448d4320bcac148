package gql

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Operation is a rendered GraphQL operation ready for the transport.
type Operation struct {
	Query     string
	Variables map[string]any
}

// ResultFields is the selection used for full job records: submit
// responses, result fetches, and completion subscriptions all share it.
var ResultFields = []string{"jobId", "service", "status", "result", "error"}

// Login builds the login mutation. Credentials travel as variables, never
// interpolated into the query text.
func Login(username, password string) Operation {
	op := &ast.OperationDefinition{
		Operation: ast.Mutation,
		Name:      "Login",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "username", Type: ast.NonNullNamedType("String", nil)},
			{Variable: "password", Type: ast.NonNullNamedType("String", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name: "login",
				Arguments: ast.ArgumentList{
					variableArg("username", "username"),
					variableArg("password", "password"),
				},
				SelectionSet: ast.SelectionSet{
					&ast.Field{Name: "token"},
					&ast.Field{Name: "refresh"},
				},
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"username": username, "password": password},
	}
}

// Refresh builds the access-token refresh mutation.
func Refresh(refreshToken string) Operation {
	op := &ast.OperationDefinition{
		Operation: ast.Mutation,
		Name:      "Refresh",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "token", Type: ast.NonNullNamedType("String", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name:      "refresh",
				Arguments: ast.ArgumentList{variableArg("token", "token")},
				SelectionSet: ast.SelectionSet{
					&ast.Field{Name: "token"},
				},
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"token": refreshToken},
	}
}

// SubmitJob builds the submission mutation. The request input is assembled
// by the caller; the response selects the assigned job ID and status.
func SubmitJob(input map[string]any) Operation {
	op := &ast.OperationDefinition{
		Operation: ast.Mutation,
		Name:      "SubmitJob",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "request", Type: ast.NonNullNamedType("JobRequestInput", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name:      "submitJob",
				Arguments: ast.ArgumentList{variableArg("request", "request")},
				SelectionSet: ast.SelectionSet{
					&ast.Field{
						Name: "job",
						SelectionSet: ast.SelectionSet{
							&ast.Field{Name: "jobId"},
							&ast.Field{Name: "status"},
						},
					},
				},
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"request": input},
	}
}

// Job builds a query for a single job record, with the requested field
// paths resolved against the Job type.
func Job(jobID string, fields []string) (Operation, error) {
	sel, err := Selections("Job", fields)
	if err != nil {
		return Operation{}, err
	}
	op := &ast.OperationDefinition{
		Operation: ast.Query,
		Name:      "Job",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "jobId", Type: ast.NonNullNamedType("ID", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name:         "job",
				Arguments:    ast.ArgumentList{variableArg("jobId", "jobId")},
				SelectionSet: sel,
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"jobId": jobID},
	}, nil
}

// Service builds a query for a named service. An empty version matches all
// versions; wildcards are accepted by the server.
func Service(name, version string, fields []string) (Operation, error) {
	sel, err := Selections("Service", fields)
	if err != nil {
		return Operation{}, err
	}
	op := &ast.OperationDefinition{
		Operation: ast.Query,
		Name:      "Service",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "name", Type: ast.NonNullNamedType("String", nil)},
			{Variable: "version", Type: ast.NamedType("String", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name: "service",
				Arguments: ast.ArgumentList{
					variableArg("name", "name"),
					variableArg("version", "version"),
				},
				SelectionSet: sel,
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"name": name, "version": version},
	}, nil
}

// Services builds the full service-catalog query.
func Services(fields []string) (Operation, error) {
	sel, err := Selections("Service", fields)
	if err != nil {
		return Operation{}, err
	}
	op := &ast.OperationDefinition{
		Operation: ast.Query,
		Name:      "Services",
		SelectionSet: ast.SelectionSet{
			&ast.Field{Name: "services", SelectionSet: sel},
		},
	}
	return Operation{Query: render(op)}, nil
}

// JobComplete builds the completion subscription for a job. The server
// pushes exactly one event, the terminal job record.
func JobComplete(jobID string) Operation {
	sel := make(ast.SelectionSet, 0, len(ResultFields))
	for _, f := range ResultFields {
		sel = append(sel, &ast.Field{Name: f})
	}
	op := &ast.OperationDefinition{
		Operation: ast.Subscription,
		Name:      "JobComplete",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "jobId", Type: ast.NonNullNamedType("ID", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name:         "subscribeJobComplete",
				Arguments:    ast.ArgumentList{variableArg("jobId", "jobId")},
				SelectionSet: sel,
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"jobId": jobID},
	}
}

// JobMessages builds the intermediate-message subscription for a job. The
// server pushes one event per message until the job ends.
func JobMessages(jobID string) Operation {
	op := &ast.OperationDefinition{
		Operation: ast.Subscription,
		Name:      "JobMessages",
		VariableDefinitions: ast.VariableDefinitionList{
			{Variable: "jobId", Type: ast.NonNullNamedType("ID", nil)},
		},
		SelectionSet: ast.SelectionSet{
			&ast.Field{
				Name:      "subscribeJobMessages",
				Arguments: ast.ArgumentList{variableArg("jobId", "jobId")},
			},
		},
	}
	return Operation{
		Query:     render(op),
		Variables: map[string]any{"jobId": jobID},
	}
}

func variableArg(name, variable string) *ast.Argument {
	return &ast.Argument{
		Name:  name,
		Value: &ast.Value{Raw: variable, Kind: ast.Variable},
	}
}

func render(op *ast.OperationDefinition) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	})
	return buf.String()
}
