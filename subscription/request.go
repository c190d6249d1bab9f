// Package subscription holds the caller-facing subscription model: request
// validation, deterministic identity derivation, response handlers, and the
// registry that correlates inbound frames back to their subscribers.
package subscription

import (
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/protocol"
)

// Request is an immutable subscription request: a query document, variable
// bindings, and the authorization context sent in the start frame's
// extensions block. Only its derived outputs (ID and start frame) are
// retained by the engine.
type Request struct {
	query     string
	operation string
	variables map[string]any
	token     string
	host      string
}

// NewRequest validates the query document and builds a Request. The document
// must parse and contain a subscription operation. The operation name is
// taken from the document; an anonymous subscription falls back to the name
// of its first root field.
func NewRequest(query string, variables map[string]any) (*Request, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, errors.WrapInvalid(err, "subscription", "NewRequest", "parse query document")
	}

	var op *ast.OperationDefinition
	for _, candidate := range doc.Operations {
		if candidate.Operation == ast.Subscription {
			op = candidate
			break
		}
	}
	if op == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("document contains no subscription operation"),
			"subscription", "NewRequest", "locate subscription operation")
	}

	name := op.Name
	if name == "" {
		name = firstFieldName(op.SelectionSet)
	}
	if name == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("cannot derive operation name from document"),
			"subscription", "NewRequest", "derive operation name")
	}

	return &Request{
		query:     query,
		operation: name,
		variables: variables,
	}, nil
}

func firstFieldName(set ast.SelectionSet) string {
	for _, sel := range set {
		if field, ok := sel.(*ast.Field); ok {
			return field.Name
		}
	}
	return ""
}

// WithAuthorization returns a copy of the request carrying the bearer token
// and host sent in the start frame's authorization extensions.
func (r *Request) WithAuthorization(token, host string) *Request {
	clone := *r
	clone.token = token
	clone.host = host
	return &clone
}

// OperationName returns the subscription's operation name.
func (r *Request) OperationName() string {
	return r.operation
}

// ID returns the deterministic correlation key for this request.
func (r *Request) ID() string {
	return DeriveID(r.operation, r.variables)
}

// StartFrame serializes the start frame announcing this subscription. The
// same request always serializes to the same bytes, so a stored frame can be
// replayed verbatim after a reconnect.
func (r *Request) StartFrame() ([]byte, error) {
	return protocol.EncodeStart(r.ID(), protocol.StartPayload{
		Query:     r.query,
		Variables: r.variables,
		Extensions: protocol.Extensions{
			Authorization: protocol.Authorization{
				Token: r.token,
				Host:  r.host,
			},
		},
	})
}

// ErrorFromPayload decodes the data value of an inbound error frame into a
// GraphQL error list. Payloads that are not a recognizable error list are
// wrapped as a generic subscription failure so the subscriber always
// receives a non-nil error.
func ErrorFromPayload(data json.RawMessage) error {
	var list gqlerror.List
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list
	}

	var single gqlerror.Error
	if err := json.Unmarshal(data, &single); err == nil && single.Message != "" {
		return &single
	}

	return fmt.Errorf("%w: %s", errors.ErrSubscriptionFailed, string(data))
}
