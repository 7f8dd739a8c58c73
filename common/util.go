package common

import (
	"context"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// GetLogTagsForContext return a copy of the component log tags, extended with the
// request parameters stored in the context (if any)
func (c Component) GetLogTagsForContext(ctxt context.Context) log.Fields {
	result := log.Fields{}
	for k, v := range c.LogTags {
		result[k] = v
	}
	if ctxt == nil {
		return result
	}
	if v, ok := ctxt.Value(RequestParam{}).(RequestParam); ok {
		v.UpdateLogTags(result)
	}
	return result
}
