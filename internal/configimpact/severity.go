package configimpact

import "github.com/kubilitics/hqee/pkg/types"

// severity rates the blast radius of changing a property: HIGH if any
// reference sits in a critical component or is conditionally/repeatedly
// evaluated, MEDIUM if more than 5 distinct containing types/functions
// touch it, LOW otherwise.
func severity(refs []types.ConfigPropertyReference) string {
	if len(refs) == 0 {
		return types.SeverityLow
	}

	distinct := make(map[string]bool, len(refs))
	for _, ref := range refs {
		distinct[ref.ContainingFQN] = true
		if ref.Critical || ref.Kind == types.RefConditionalActivation {
			return types.SeverityHigh
		}
	}
	if len(distinct) > 5 {
		return types.SeverityMedium
	}
	return types.SeverityLow
}
