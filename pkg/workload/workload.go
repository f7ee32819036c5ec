// Package workload loads and runs scripted tree scenarios: YAML files that
// insert, delete and look up integer keys and state what the tree must look
// like afterwards.
package workload

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Workload errors.
var (
	// ErrSchema is returned for scenario files that do not match the schema.
	ErrSchema = errors.New("scenario does not match the schema")
	// ErrExpectation is returned when the tree differs from an expect step.
	ErrExpectation = errors.New("expectation not met")
	// ErrKeyNotFound is returned when a delete or search step names a missing key.
	ErrKeyNotFound = errors.New("key not found")
)

//go:embed schema.json
var schemaJSON []byte

// Step kinds.
const (
	KindInsert = "insert"
	KindDelete = "delete"
	KindSearch = "search"
	KindAbsent = "absent"
	KindExpect = "expect"
)

// Scenario is a named list of steps run against one fresh tree.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Note   string       `yaml:"note,omitempty"`
	Insert []int64      `yaml:"insert,omitempty"`
	Delete []int64      `yaml:"delete,omitempty"`
	Search []int64      `yaml:"search,omitempty"`
	Absent []int64      `yaml:"absent,omitempty"`
	Expect *Expectation `yaml:"expect,omitempty"`
}

// Expectation describes the tree after the previous steps. Unset fields are not checked.
type Expectation struct {
	InOrder []int64 `yaml:"inorder,omitempty"`
	Root    *int64  `yaml:"root,omitempty"`
	Size    *int    `yaml:"size,omitempty"`
}

// Kind names the action of the step.
func (s Step) Kind() string {
	switch {
	case s.Insert != nil:
		return KindInsert
	case s.Delete != nil:
		return KindDelete
	case s.Search != nil:
		return KindSearch
	case s.Absent != nil:
		return KindAbsent
	default:
		return KindExpect
	}
}

// Keys returns the keys of a key step, nil for expect steps.
func (s Step) Keys() []int64 {
	switch s.Kind() {
	case KindInsert:
		return s.Insert
	case KindDelete:
		return s.Delete
	case KindSearch:
		return s.Search
	case KindAbsent:
		return s.Absent
	default:
		return nil
	}
}

// LoadFile reads a scenario from path.
func LoadFile(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()

	sc, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return sc, nil
}

// Load decodes a YAML scenario and checks it against the embedded JSON schema.
func Load(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var doc any

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrSchema)
	}

	err = validate(doc)
	if err != nil {
		return nil, err
	}

	var sc Scenario

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err = decoder.Decode(&sc)
	if err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	return &sc, nil
}

func validate(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate scenario: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
}
