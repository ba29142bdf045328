package devicedb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
	gostrcase "github.com/stoewer/go-strcase"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	meta "github.com/yuin/goldmark-meta"
)

// Parser extracts device database entries from markdown files. The entry
// itself lives in the YAML frontmatter; the markdown body is free-form
// documentation for the device.
type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	markdown := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			meta.Meta,
		),
	)
	return &Parser{
		md: markdown,
	}
}

func (p *Parser) Parse(source []byte) (Entry, error) {
	context := parser.NewContext()
	var buf bytes.Buffer
	if err := p.md.Convert(source, &buf, parser.WithContext(context)); err != nil {
		return Entry{}, fmt.Errorf("failed to parse markdown: %w", err)
	}
	data := meta.Get(context)
	if data == nil {
		return Entry{}, fmt.Errorf("missing frontmatter")
	}

	name, ok := data["name"].(string)
	if !ok || name == "" {
		return Entry{}, fmt.Errorf("missing device name")
	}
	driver, ok := data["driver"].(string)
	if !ok || driver == "" {
		return Entry{}, fmt.Errorf("missing driver id")
	}

	entry := Entry{
		ID:     gostrcase.KebabCase(name),
		Alias:  strcase.ToCamel(name),
		Name:   name,
		Driver: driver,
	}

	devices, ok := data["devices"].([]any)
	if !ok || len(devices) == 0 {
		return Entry{}, fmt.Errorf("missing device match list")
	}
	for _, dev := range devices {
		fields, ok := dev.(map[any]any)
		if !ok {
			return Entry{}, fmt.Errorf("invalid device match entry: %v", dev)
		}
		vid, err := parseID(fields["vid"])
		if err != nil {
			return Entry{}, fmt.Errorf("invalid vid: %w", err)
		}
		pid, err := parseID(fields["pid"])
		if err != nil {
			return Entry{}, fmt.Errorf("invalid pid: %w", err)
		}
		entry.Matches = append(entry.Matches, DeviceMatch{VendorID: vid, ProductID: pid})
	}
	return entry, nil
}

// parseID accepts YAML integers (including 0x-prefixed) and hex strings.
func parseID(v any) (uint16, error) {
	switch val := v.(type) {
	case int:
		if val < 0 || val > 0xffff {
			return 0, fmt.Errorf("out of range: %d", val)
		}
		return uint16(val), nil
	case uint64:
		if val > 0xffff {
			return 0, fmt.Errorf("out of range: %d", val)
		}
		return uint16(val), nil
	case string:
		s := strings.TrimPrefix(strings.ToLower(val), "0x")
		parsed, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", val, err)
		}
		return uint16(parsed), nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported value: %v", v)
	}
}
