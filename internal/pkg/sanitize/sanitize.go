// Package sanitize redacts and bounds values before they are written to the log store.
//
// Every exported method recovers from internal failures and degrades to a placeholder
// string, so a malformed payload can never break the request it was captured from.
package sanitize

import (
	"encoding"
	"encoding/json"
	"net"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	Redacted        = "[REDACTED]"
	CyclicReference = "[Cyclic Reference]"
	MaxDepthReached = "[Max Depth Reached]"
	Truncated       = "... [TRUNCATED]"
	Unserializable  = "[Unserializable Payload]"
	Failed          = "[Sanitization Failed]"

	DefaultMaxDepth       = 5
	DefaultMaxPayloadSize = 10240
	MaxUserAgentLength    = 200

	// truncateMargin is how far below the limit a payload is cut before the marker is appended.
	truncateMargin = 50
)

type Options struct {
	SensitiveFields []string
	MaxDepth        int
	MaxPayloadSize  int
	Enabled         bool
	MaskIP          bool
}

type Sanitizer struct {
	fragments  []string
	maxDepth   int
	maxPayload int
	enabled    bool
	maskIP     bool
}

func New(opts Options) *Sanitizer {
	s := &Sanitizer{
		maxDepth:   opts.MaxDepth,
		maxPayload: opts.MaxPayloadSize,
		enabled:    opts.Enabled,
		maskIP:     opts.MaskIP,
	}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxDepth
	}
	if s.maxPayload <= truncateMargin {
		s.maxPayload = DefaultMaxPayloadSize
	}
	for _, f := range opts.SensitiveFields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			s.fragments = append(s.fragments, f)
		}
	}
	return s
}

// IsSensitiveKey reports whether the lowercase key contains any configured fragment.
func (s *Sanitizer) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, f := range s.fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of value with sensitive keys redacted. Maps, slices, arrays,
// pointers and structs are walked; types with their own JSON encoding go through it.
// The input is never mutated.
func (s *Sanitizer) Sanitize(value any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed
		}
	}()
	return s.walk(reflect.ValueOf(value), 0, map[uintptr]struct{}{})
}

func (s *Sanitizer) walk(v reflect.Value, depth int, seen map[uintptr]struct{}) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return s.walk(v.Elem(), depth, seen)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return CyclicReference
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return s.walk(v.Elem(), depth, seen)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if depth > s.maxDepth {
			return MaxDepthReached
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return CyclicReference
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := keyString(iter.Key())
			if s.IsSensitiveKey(key) {
				out[key] = Redacted
				continue
			}
			out[key] = s.walk(iter.Value(), depth+1, seen)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes())
		}
		if depth > s.maxDepth {
			return MaxDepthReached
		}
		if v.Len() > 0 {
			ptr := v.Pointer()
			if _, ok := seen[ptr]; ok {
				return CyclicReference
			}
			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}
		return s.walkList(v, depth, seen)

	case reflect.Array:
		if depth > s.maxDepth {
			return MaxDepthReached
		}
		return s.walkList(v, depth, seen)

	case reflect.Struct:
		if depth > s.maxDepth {
			return MaxDepthReached
		}
		if m, ok := marshaler(v); ok {
			generic, err := toGeneric(m)
			if err != nil {
				return Unserializable
			}
			return s.walk(reflect.ValueOf(generic), depth, seen)
		}
		return s.walkStruct(v, depth, seen)

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil

	default:
		return scalar(v)
	}
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// marshaler returns the value to hand to encoding/json when the struct encodes itself
// (time.Time, datatypes.JSON and the like).
func marshaler(v reflect.Value) (any, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return v.Interface(), true
	}
	if v.CanAddr() {
		pt := reflect.PointerTo(t)
		if pt.Implements(jsonMarshalerType) || pt.Implements(textMarshalerType) {
			return v.Addr().Interface(), true
		}
	}
	return nil, false
}

// walkStruct mirrors the encoding/json field rules: tag names, "-", omitempty and
// promotion of untagged embedded structs. Redaction uses the encoded name.
func (s *Sanitizer) walkStruct(v reflect.Value, depth int, seen map[uintptr]struct{}) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, omitEmpty, skip := jsonField(f)
		if skip {
			continue
		}
		fv := v.Field(i)

		if f.Anonymous && f.Tag.Get("json") == "" {
			ev := fv
			if ev.Kind() == reflect.Pointer {
				if ev.IsNil() {
					continue
				}
				ptr := ev.Pointer()
				if _, ok := seen[ptr]; ok {
					continue
				}
				ev = ev.Elem()
			}
			if ev.Kind() == reflect.Struct {
				for k, val := range s.walkStruct(ev, depth, seen) {
					if _, taken := out[k]; !taken {
						out[k] = val
					}
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if omitEmpty && isEmptyValue(fv) {
			continue
		}
		if s.IsSensitiveKey(name) {
			out[name] = Redacted
			continue
		}
		out[name] = s.walk(fv, depth+1, seen)
	}
	return out
}

func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

// scalar reads a leaf value, including ones reached through unexported embedded structs.
func scalar(v reflect.Value) any {
	if v.CanInterface() {
		return v.Interface()
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	}
	return nil
}

func (s *Sanitizer) walkList(v reflect.Value, depth int, seen map[uintptr]struct{}) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = s.walk(v.Index(i), depth+1, seen)
	}
	return out
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if b, err := json.Marshal(scalar(k)); err == nil {
		return strings.Trim(string(b), `"`)
	}
	return ""
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SanitizeHeaders applies key redaction to one level only. Multi-value headers are joined.
func (s *Sanitizer) SanitizeHeaders(headers http.Header) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			out = map[string]any{"error": Failed}
		}
	}()
	out = make(map[string]any, len(headers))
	for k, vals := range headers {
		key := strings.ToLower(k)
		if s.IsSensitiveKey(key) {
			out[key] = Redacted
			continue
		}
		out[key] = strings.Join(vals, ", ")
	}
	return out
}

// TruncatePayload serializes value and bounds it to the configured size.
func (s *Sanitizer) TruncatePayload(value any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = Unserializable
		}
	}()

	var str string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		str = v
	case []byte:
		str = string(v)
	case json.RawMessage:
		str = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Unserializable
		}
		str = string(b)
	}

	if len(str) <= s.maxPayload {
		return str
	}
	cut := s.maxPayload - truncateMargin
	for cut > 0 && !utf8.RuneStart(str[cut]) {
		cut--
	}
	return str[:cut] + Truncated
}

// SanitizeRequestPayload redacts then truncates a captured body. Raw JSON is decoded first
// so its keys are subject to redaction; other bodies are only truncated.
func (s *Sanitizer) SanitizeRequestPayload(payload any) string {
	return s.sanitizePayload(payload)
}

func (s *Sanitizer) SanitizeResponsePayload(payload any) string {
	return s.sanitizePayload(payload)
}

func (s *Sanitizer) sanitizePayload(payload any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed
		}
	}()
	if !s.enabled {
		return s.TruncatePayload(payload)
	}

	switch v := payload.(type) {
	case nil:
		return ""
	case []byte:
		return s.sanitizeRaw(v)
	case json.RawMessage:
		return s.sanitizeRaw(v)
	case string:
		return s.sanitizeRaw([]byte(v))
	}
	return s.TruncatePayload(s.Sanitize(payload))
}

func (s *Sanitizer) sanitizeRaw(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return s.TruncatePayload(raw)
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return s.TruncatePayload(s.Sanitize(decoded))
	default:
		return s.TruncatePayload(raw)
	}
}

// SanitizeIP optionally masks the host part of an address: last IPv4 octet, or
// everything past the /64 prefix for IPv6.
func (s *Sanitizer) SanitizeIP(ip string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ip
		}
	}()
	if !s.maskIP || ip == "" {
		return ip
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		v4 = v4.Mask(net.CIDRMask(24, 32))
		return v4.String()
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String()
}

var (
	uaParenthetical = regexp.MustCompile(`\([^)]*\)`)
	uaVersion       = regexp.MustCompile(`/[0-9][0-9A-Za-z._-]*`)
	uaSpaces        = regexp.MustCompile(`\s+`)
)

// SanitizeUserAgent strips version numbers and platform detail from a user agent.
func (s *Sanitizer) SanitizeUserAgent(ua string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()
	if ua == "" {
		return ""
	}
	ua = uaParenthetical.ReplaceAllString(ua, "")
	ua = uaVersion.ReplaceAllString(ua, "")
	ua = strings.TrimSpace(uaSpaces.ReplaceAllString(ua, " "))
	if len(ua) > MaxUserAgentLength {
		cut := MaxUserAgentLength
		for cut > 0 && !utf8.RuneStart(ua[cut]) {
			cut--
		}
		ua = ua[:cut]
	}
	return ua
}

// MaxPayloadSize exposes the configured limit for callers that pre-trim captured bodies.
func (s *Sanitizer) MaxPayloadSize() int {
	return s.maxPayload
}
