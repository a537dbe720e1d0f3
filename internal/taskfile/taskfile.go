// Package taskfile reads task-set documents from YAML or JSON files.
package taskfile

import (
	"bytes"
	"fmt"
	"os"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a task-set document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DefaultSelect is the gjson path of the task array in a JSON document.
const DefaultSelect = "tasks"

// DefaultUnit is used when a document does not name its time unit.
const DefaultUnit = "ticks"

// RawTask is one task record as written in a task-set file.
// Deadline and Priority are optional; nil means "not given".
type RawTask struct {
	Name     string `yaml:"name" json:"name"`
	Period   int64  `yaml:"period" json:"period"`
	WCET     int64  `yaml:"wcet" json:"wcet"`
	Deadline *int64 `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Priority *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Blocking int64  `yaml:"blocking,omitempty" json:"blocking,omitempty"`
}

// Document is a parsed, not yet validated, task-set file.
type Document struct {
	Name  string    `yaml:"name" json:"name"`
	Unit  string    `yaml:"unit" json:"unit"`
	Tasks []RawTask `yaml:"tasks" json:"tasks"`
}

// Options controls parsing.
type Options struct {
	// Select is a gjson path to the task array (JSON only). Defaults to "tasks".
	Select string
}

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported task file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// FormatFromContentType maps an HTTP Content-Type to a format. Anything that
// is not JSON is treated as YAML.
func FormatFromContentType(ct string) Format {
	if strings.Contains(strings.ToLower(ct), "json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and parses the task-set file at path.
func Load(path string, opts Options) (*Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	doc, err := Parse(format, data, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse decodes a document in the given format.
func Parse(format Format, data []byte, opts Options) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatYAML:
		if opts.Select != "" {
			return nil, fmt.Errorf("--select is only supported for JSON task files")
		}
		doc, err = parseYAML(data)
	case FormatJSON:
		doc, err = parseJSON(data, opts.Select)
	default:
		return nil, fmt.Errorf("unknown task file format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if doc.Unit == "" {
		doc.Unit = DefaultUnit
	}
	return doc, nil
}

func parseYAML(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := checkYAMLDurations(data); err != nil {
		return nil, err
	}
	return &doc, nil
}

// durationKeys are the task fields that must hold whole numbers.
var durationKeys = map[string]bool{
	"period": true, "wcet": true, "deadline": true, "blocking": true, "priority": true,
}

// checkYAMLDurations rejects fractional task durations, which the decoder
// would otherwise truncate.
func checkYAMLDurations(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	top := root.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "tasks" || top.Content[i+1].Kind != yaml.SequenceNode {
			continue
		}
		for idx, item := range top.Content[i+1].Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			for j := 0; j+1 < len(item.Content); j += 2 {
				key, val := item.Content[j], item.Content[j+1]
				if durationKeys[key.Value] && val.Kind == yaml.ScalarNode &&
					val.ShortTag() != "!!int" && val.ShortTag() != "!!null" {
					return fmt.Errorf("task %d: %s must be a whole number, got %q (line %d)", idx, key.Value, val.Value, val.Line)
				}
			}
		}
	}
	return nil
}

func parseJSON(data []byte, sel string) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	if sel == "" {
		sel = DefaultSelect
	}

	root := gjson.ParseBytes(data)
	list := root.Get(sel)
	if !list.Exists() {
		return nil, fmt.Errorf("no task array at %q", sel)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("value at %q is not an array", sel)
	}

	doc := &Document{
		Name: root.Get("name").String(),
		Unit: root.Get("unit").String(),
	}

	var parseErr error
	list.ForEach(func(_, item gjson.Result) bool {
		rt, err := rawTaskFromJSON(item, len(doc.Tasks))
		if err != nil {
			parseErr = err
			return false
		}
		doc.Tasks = append(doc.Tasks, rt)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return doc, nil
}

func rawTaskFromJSON(item gjson.Result, idx int) (RawTask, error) {
	if !item.IsObject() {
		return RawTask{}, fmt.Errorf("task %d: expected an object", idx)
	}

	rt := RawTask{Name: item.Get("name").String()}

	ints := []struct {
		key string
		dst *int64
	}{
		{"period", &rt.Period},
		{"wcet", &rt.WCET},
		{"blocking", &rt.Blocking},
	}
	for _, f := range ints {
		v := item.Get(f.key)
		if !v.Exists() {
			continue
		}
		n, err := wholeNumber(v)
		if err != nil {
			return RawTask{}, fmt.Errorf("task %d: %s %w", idx, f.key, err)
		}
		*f.dst = n
	}

	if v := item.Get("deadline"); v.Exists() {
		d, err := wholeNumber(v)
		if err != nil {
			return RawTask{}, fmt.Errorf("task %d: deadline %w", idx, err)
		}
		rt.Deadline = &d
	}
	if v := item.Get("priority"); v.Exists() {
		n, err := wholeNumber(v)
		if err != nil {
			return RawTask{}, fmt.Errorf("task %d: priority %w", idx, err)
		}
		p := int(n)
		rt.Priority = &p
	}
	return rt, nil
}

// wholeNumber returns v as an int64. Fractions and out-of-range values are
// errors rather than being truncated.
func wholeNumber(v gjson.Result) (int64, error) {
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("must be a number")
	}
	if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
		return n, nil
	}
	// Integral values written as 10.0 or 1e3.
	if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
		return int64(v.Num), nil
	}
	return 0, fmt.Errorf("must be a whole number, got %s", v.Raw)
}
