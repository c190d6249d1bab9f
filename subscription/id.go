package subscription

import (
	"fmt"
	"sort"
	"strings"
)

// DeriveID produces the stable correlation key for a subscription from its
// operation name and variable bindings. The rendering is deterministic and
// order-stable: keys are sorted, each binding is rendered "key : value," and
// the whole binding list is wrapped in braces. Two requests with the same
// operation name and variables therefore always map to the same ID, across
// calls and across process restarts, which is what lets the registry coalesce
// duplicates and lets reconnect replay resend the original start frame.
//
// With no variables the ID is the operation name alone.
func DeriveID(operationName string, variables map[string]any) string {
	if len(variables) == 0 {
		return operationName
	}

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(operationName)
	b.WriteString(":{")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s : %v,", k, variables[k])
	}
	b.WriteString("}")
	return b.String()
}
