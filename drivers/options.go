package drivers

import (
	"strconv"
	"strings"
)

// Options is a parsed driver option string of the form
// "name=value,flag,name=value". Flags without a value map to "".
type Options map[string]string

func ParseOptions(s string) Options {
	opts := Options{}

	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		name, value, _ := strings.Cut(field, "=")
		opts[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return opts
}

func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

func (o Options) String(name, def string) string {
	if v, ok := o[name]; ok && v != "" {
		return v
	}

	return def
}

// Int parses decimal, 0x hex and 0 octal values, and accepts a K, M or G
// suffix.
func (o Options) Int(name string, def int) int {
	v, ok := o[name]
	if !ok || v == "" {
		return def
	}

	mult := 1
	switch v[len(v)-1] {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	}
	if mult != 1 {
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return def
	}

	return int(n) * mult
}
