package criteria

import (
	"github.com/viant/procflow/service/dao"
)

// StatusParameter is the filter name matched by FilterByStatus.
const StatusParameter = "Status"

// FilterByStatus reports whether status satisfies every Status parameter;
// other parameters are ignored.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if status != actual {
				return false
			}
		case []string:
			if !contains(actual, status) {
				return false
			}
		}
	}
	return true
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
