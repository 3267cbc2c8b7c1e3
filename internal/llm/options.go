package llm

import "encoding/json"

type securityContext struct {
	SourceIP        string `json:"SourceIp"`
	ApplicationName string `json:"ApplicationName"`
}

// BuildOptions returns the options for one generation request. Security
// metadata is attached only when enabled; rc may be nil.
func BuildOptions(model string, enabled bool, rc *RequestContext) Options {
	opts := Options{Model: model}
	if !enabled {
		return opts
	}
	opts.User = SecurityContextJSON(rc)
	return opts
}

func SecurityContextJSON(rc *RequestContext) string {
	var sc securityContext
	if rc != nil {
		sc = securityContext{SourceIP: rc.SourceIP, ApplicationName: rc.ApplicationName}
	}
	// Marshalling two strings cannot fail.
	b, _ := json.Marshal(sc)
	return string(b)
}
