package apigateway

import (
	"reflect"
	"sort"
	"testing"
)

func TestNormalizeHeaders(t *testing.T) {
	tests := []struct {
		name    string
		single  map[string]string
		multi   map[string][]string
		cookies []string
		want    map[string]string
	}{
		{
			name:   "single values are lower-cased",
			single: map[string]string{"Content-Type": "text/plain", "X-Empty": ""},
			want:   map[string]string{"content-type": "text/plain"},
		},
		{
			name:  "multi values are joined",
			multi: map[string][]string{"Accept": {"text/html", "application/json"}, "X-None": {}},
			want:  map[string]string{"accept": "text/html,application/json"},
		},
		{
			name:   "single overwrites multi",
			single: map[string]string{"accept": "*/*"},
			multi:  map[string][]string{"Accept": {"text/html", "application/json"}},
			want:   map[string]string{"accept": "*/*"},
		},
		{
			name:    "cookie list",
			single:  map[string]string{"host": "example.com"},
			cookies: []string{"a=1", "b=2"},
			want:    map[string]string{"host": "example.com", "cookie": "a=1; b=2"},
		},
		{
			name: "nothing",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHeaders(tt.single, tt.multi, tt.cookies)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeHeaders() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeHeaders_SplitRoundTrip(t *testing.T) {
	multi := map[string][]string{
		"Accept":          {"text/html", "application/xhtml+xml", "*/*"},
		"X-Forwarded-For": {"203.0.113.1", "198.51.100.2"},
		"Single":          {"only"},
	}

	headers := NormalizeHeaders(nil, multi, nil)

	for key, values := range multi {
		got := SplitHeaderValues(headers[lower(key)])
		want := append([]string(nil), values...)
		sort.Strings(got)
		sort.Strings(want)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: values = %v, want %v", key, got, want)
		}
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name   string
		single map[string]string
		multi  map[string][]string
		want   string
	}{
		{"empty", nil, nil, ""},
		{"single", map[string]string{"q": "go lang"}, nil, "?q=go+lang"},
		{
			name:   "multi values each become a pair",
			single: map[string]string{"tag": "b"},
			multi:  map[string][]string{"tag": {"a", "b"}},
			want:   "?tag=a&tag=b",
		},
		{
			name:   "keys are sorted",
			single: map[string]string{"z": "1", "a": "2"},
			want:   "?a=2&z=1",
		},
		{
			name:   "reserved characters are escaped",
			single: map[string]string{"/enter": "a&b"},
			want:   "?%2Fenter=a%26b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.single, tt.multi); got != tt.want {
				t.Errorf("NormalizeQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitCookiesString(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "a=1; Path=/", []string{"a=1; Path=/"}},
		{"two cookies", "a=1, b=2", []string{"a=1", "b=2"}},
		{
			name:  "comma inside expires",
			value: "a=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT; Path=/, b=2; HttpOnly",
			want:  []string{"a=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT; Path=/", "b=2; HttpOnly"},
		},
		{"comma in a value", "a=x,y", []string{"a=x,y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCookiesString(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCookiesString() = %q, want %q", got, tt.want)
			}
		})
	}
}
