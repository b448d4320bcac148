// Package mothr provides a Go client SDK for MOTHR, a remote job-execution
// service driven by a GraphQL API. It covers authentication, job submission
// and lifecycle tracking, field-selection queries, and push subscriptions.
//
// The module is organized around three core concerns:
//
//   - session: token acquisition, expiry detection, and transparent refresh
//   - request: the JobRequest state machine (submit, poll, subscribe, result)
//   - gql: schema-checked resolution of dotted field paths into selections
//
// plus two supporting ones: transport (GraphQL over HTTP and WebSocket) and
// listener (a Redis pub/sub dispatch loop for broadcast job events).
//
// # Quick Start
//
//	req, err := request.New("echo-test")
//	if err != nil { ... }
//
//	req.AddInput("s3://my-bucket/input.txt").
//	    AddOutput("s3://my-bucket/output.txt").
//	    AddOutputMetadata(map[string]string{"origin": "mothr-go"})
//
//	result, err := req.Run(ctx)
//
// Configuration is resolved once at construction with the precedence
// explicit argument > environment variable > built-in default. See Config
// for the recognized environment variables.
//
// This root package holds the pieces shared by every subpackage: Config,
// the error taxonomy, and the domain types (Status, Parameter, JobResult).
package mothr
