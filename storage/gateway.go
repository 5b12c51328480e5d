package storage

import (
	"regexp"
	"strings"
)

// templateVarRe matches RFC 6570 level-1 simple-string expressions:
// {var}. This hub only ever needs to interpolate flat scalar variables
// (iscc_id, iscc_code, pubkey, datahash, controller), so a minimal level-1
// expander is sufficient; no example repo in the retrieved pack carries a
// URI-template dependency, so this is implemented directly.
var templateVarRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExpandGateway builds a resolver/gateway URL for a declaration, following
// original_source/iscc_hub/gateway.py's expand_gateway_url: substitute
// {iscc_id}/{iscc_code}/... template variables if present, otherwise
// append the ISCC-ID to the base URL.
func ExpandGateway(gatewayURL, isccID, isccCode string, vars map[string]string) string {
	all := map[string]string{"iscc_id": isccID, "iscc_code": isccCode}
	for k, v := range vars {
		all[k] = v
	}

	if strings.Contains(gatewayURL, "{") && strings.Contains(gatewayURL, "}") {
		return templateVarRe.ReplaceAllStringFunc(gatewayURL, func(m string) string {
			name := templateVarRe.FindStringSubmatch(m)[1]
			if v, ok := all[name]; ok {
				return v
			}
			return ""
		})
	}

	if !strings.HasSuffix(gatewayURL, "/") && !strings.HasSuffix(gatewayURL, "=") {
		gatewayURL += "/"
	}
	return gatewayURL + isccID
}
