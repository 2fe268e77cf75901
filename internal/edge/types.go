package edge

// Value is a single CloudFront Functions header or cookie value.
type Value struct {
	Value string `json:"value"`
}

// QueryValue is a CloudFront Functions query string entry. MultiValue lists
// every value, including the first, when a key is repeated.
type QueryValue struct {
	Value      string  `json:"value"`
	MultiValue []Value `json:"multiValue,omitempty"`
}

// Request is the request object of a CloudFront Functions viewer event.
type Request struct {
	Method      string                `json:"method"`
	URI         string                `json:"uri"`
	QueryString map[string]QueryValue `json:"querystring"`
	Headers     map[string]Value      `json:"headers"`
	Cookies     map[string]Value      `json:"cookies"`
}

// Response is a response generated at the edge instead of forwarding.
type Response struct {
	StatusCode        int              `json:"statusCode"`
	StatusDescription string           `json:"statusDescription,omitempty"`
	Headers           map[string]Value `json:"headers"`
	Cookies           map[string]Value `json:"cookies"`
}

// Event is a CloudFront Functions viewer request event.
type Event struct {
	Version string `json:"version"`
	Context struct {
		DistributionDomainName string `json:"distributionDomainName"`
		DistributionID         string `json:"distributionId"`
		EventType              string `json:"eventType"`
		RequestID              string `json:"requestId"`
	} `json:"context"`
	Viewer struct {
		IP string `json:"ip"`
	} `json:"viewer"`
	Request Request `json:"request"`
}

// Result is what the edge function returns: either the (modified) request
// to forward, or a response to send back. Exactly one is set.
type Result struct {
	Request  *Request
	Response *Response
}

// Value returns the set member, for JSON encoding.
func (r Result) Value() any {
	if r.Response != nil {
		return r.Response
	}
	return r.Request
}

// OriginHeader is one Lambda@Edge header entry.
type OriginHeader struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// OriginRequest is the request object of a Lambda@Edge viewer request.
type OriginRequest struct {
	ClientIP    string                    `json:"clientIp"`
	Method      string                    `json:"method"`
	URI         string                    `json:"uri"`
	QueryString string                    `json:"querystring"`
	Headers     map[string][]OriginHeader `json:"headers"`
}

// OriginEvent is a Lambda@Edge event.
type OriginEvent struct {
	Records []struct {
		CF struct {
			Request OriginRequest `json:"request"`
		} `json:"cf"`
	} `json:"Records"`
}
