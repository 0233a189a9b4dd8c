package edge

import (
	"net/http"
	"strconv"
	"strings"
)

// Event is the Lambda@Edge event envelope delivered by CloudFront.
type Event struct {
	Records []Record `json:"Records"`
}

type Record struct {
	CF Payload `json:"cf"`
}

type Payload struct {
	Config   Config    `json:"config"`
	Request  Request   `json:"request"`
	Response *Response `json:"response,omitempty"`
}

type Config struct {
	DistributionDomainName string `json:"distributionDomainName,omitempty"`
	DistributionID         string `json:"distributionId,omitempty"`
	EventType              string `json:"eventType,omitempty"`
	RequestID              string `json:"requestId,omitempty"`
}

type Request struct {
	ClientIP    string  `json:"clientIp,omitempty"`
	Method      string  `json:"method,omitempty"`
	URI         string  `json:"uri"`
	QueryString string  `json:"querystring"`
	Headers     Headers `json:"headers,omitempty"`
	Origin      *Origin `json:"origin,omitempty"`
}

type Origin struct {
	S3 *S3Origin `json:"s3,omitempty"`
}

type S3Origin struct {
	DomainName string  `json:"domainName"`
	Region     string  `json:"region,omitempty"`
	Path       string  `json:"path,omitempty"`
	AuthMethod string  `json:"authMethod,omitempty"`
	Headers    Headers `json:"customHeaders,omitempty"`
}

type Response struct {
	Status            string  `json:"status"`
	StatusDescription string  `json:"statusDescription,omitempty"`
	Headers           Headers `json:"headers,omitempty"`
	Body              string  `json:"body,omitempty"`
	BodyEncoding      string  `json:"bodyEncoding,omitempty"`
}

// Header is one CloudFront header entry. Key keeps the original casing,
// the map key is always lower case.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Headers map[string][]Header

func (h Headers) Get(name string) string {
	values := h[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}

func (h Headers) Set(name, value string) {
	canonical := http.CanonicalHeaderKey(name)
	h[strings.ToLower(name)] = []Header{{Key: canonical, Value: value}}
}

// StatusCode parses the textual CloudFront status, 0 when malformed.
func (r Response) StatusCode() int {
	code, err := strconv.Atoi(strings.TrimSpace(r.Status))
	if err != nil {
		return 0
	}
	return code
}

// NewResponse builds a response with a fresh header set.
func NewResponse(status int) Response {
	return Response{
		Status:            strconv.Itoa(status),
		StatusDescription: http.StatusText(status),
		Headers:           Headers{},
	}
}
