package lambda

// ForwardedHostHeader carries the viewer's Host header from the CDN to the
// function, since the CDN replaces Host with the origin's own hostname.
const ForwardedHostHeader = "x-forwarded-host"

// PrerenderedFileHeaders are attached to every prerendered page response.
var PrerenderedFileHeaders = map[string]string{
	"content-type":  "text/html",
	"cache-control": "public, max-age=0, s-maxage=31536000, must-revalidate",
}

// MethodsForPrerenderedFiles are the methods that may be answered with a
// prerendered page. Requests using them never carry a body to the app.
var MethodsForPrerenderedFiles = map[string]struct{}{
	"GET":  {},
	"HEAD": {},
}

// IsPrerenderMethod reports whether method may be served from a prerendered file.
func IsPrerenderMethod(method string) bool {
	_, ok := MethodsForPrerenderedFiles[method]
	return ok
}
