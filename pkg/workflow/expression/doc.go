// Package expression evaluates expr-lang expressions against a workflow
// run's bindings: condition predicates (condition, switch branches),
// value expressions (merge, ai_transform config, the code step kind),
// and 3-argument filter predicates (filter's item/index/array).
//
// Expressions bind two top-level names:
//
//	inputs    map of the run's trigger/step inputs
//	context   {"outputs": map of prior step outputs, keyed by step id}
//
// filter predicates additionally bind item, index, and array for the
// element under test.
//
// Supported syntax:
//
//   - Variable access: inputs.name, context.outputs.step_id
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in array (built-in operator)
//   - Custom functions: has(array, element), includes(array, element), length(x)
//
// Example expressions:
//
//	"security" in inputs.personas
//	has(inputs.personas, "security")
//	context.outputs.classify.label == "urgent"
//	item.score > 0.5
//
// The expr library uses "contains" as a string operator (for substring
// matching), so use "in" or "has()" for array membership checks.
//
// Every evaluation runs under a wall-clock timeout (2s by default,
// overridable via SANDBOX_TIMEOUT_MS) since expr-lang has no native
// deadline support; an expression that exceeds it fails with a
// SANDBOX_TIMEOUT error.
package expression
