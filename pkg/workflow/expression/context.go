package expression

// BuildContext assembles the expression binding environment for one step
// dispatch: "inputs" holds the run's trigger/step inputs, "context" holds
// the accumulated run state ("outputs", keyed by step id).
//
//	{
//	    "inputs":  {"name": "value", ...},
//	    "context": {"outputs": {"step1": {...}, ...}},
//	}
func BuildContext(inputs map[string]interface{}, outputs map[string]interface{}) map[string]interface{} {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	if outputs == nil {
		outputs = map[string]interface{}{}
	}
	return map[string]interface{}{
		"inputs": inputs,
		"context": map[string]interface{}{
			"outputs": outputs,
		},
	}
}
