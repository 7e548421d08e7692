package request

// HeaderKey is a request header name. The predefined keys cover the common
// cases, OtherKey carries anything else.
type HeaderKey struct {
	name string
}

var (
	Authentication = HeaderKey{"Authorization"}
	ContentType    = HeaderKey{"Content-Type"}
	AcceptType     = HeaderKey{"Accept"}
	AcceptEncoding = HeaderKey{"Accept-Encoding"}
	RequestName    = HeaderKey{"RequestName"}
	AcceptCharset  = HeaderKey{"Accept-Charset"}
	AcceptDateTime = HeaderKey{"Accept-Datetime"}
)

// OtherKey returns a key for an arbitrary header name.
func OtherKey(name string) HeaderKey { return HeaderKey{name} }

func (k HeaderKey) String() string { return k.name }

// HeaderValue is a request header value.
type HeaderValue struct {
	value string
}

var (
	JSON     = HeaderValue{"application/json"}
	XML      = HeaderValue{"application/x-www-form-urlencoded"}
	Image    = HeaderValue{"image/png"}
	JSONUTF8 = HeaderValue{"application/json; charset=utf-8"}
	FormData = HeaderValue{"multipart/form-data"}
)

// OtherValue returns an arbitrary header value.
func OtherValue(value string) HeaderValue { return HeaderValue{value} }

func (v HeaderValue) String() string { return v.value }

// Headers maps keys to values, one value per key.
type Headers map[HeaderKey]HeaderValue
