package main

import (
	"os"
	"sort"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/strutil"
	"gopkg.in/yaml.v3"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/pipeline"
)

// TestCase defines a single smoke scenario.
type TestCase struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Script      string            `yaml:"script"`
	Parameters  map[string]string `yaml:"parameters"`
	ExpectError bool              `yaml:"expect_error"`
}

// script turns the case into a submission. Parameters are sorted by name.
func (tc TestCase) script() pipeline.Script {
	s := pipeline.Script{Name: tc.Name, Text: tc.Script}
	names := maputil.Keys(tc.Parameters)
	sort.Strings(names)
	for _, name := range names {
		s.Parameters = append(s.Parameters, pipeline.Parameter{Name: name, Value: tc.Parameters[name]})
	}
	return s
}

type caseFile struct {
	Cases []TestCase `yaml:"cases"`
}

// loadCases reads test cases from a YAML file.
func loadCases(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, srserrors.Wrap(err, srserrors.ErrCodeInvalidInput, "read cases")
	}
	var f caseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, srserrors.Wrap(err, srserrors.ErrCodeInvalidInput, "parse cases "+path)
	}
	if len(f.Cases) == 0 {
		return nil, srserrors.InvalidInput("no cases in " + path)
	}
	for i, tc := range f.Cases {
		if strutil.IsBlank(tc.Script) {
			return nil, srserrors.Newf(srserrors.ErrCodeInvalidInput, "case %d (%s) has no script", i+1, tc.Name)
		}
	}
	return f.Cases, nil
}

// defaultCases is used when no case file is given.
var defaultCases = []TestCase{
	{
		Name:        "Simple Command",
		Script:      "Get-Date",
		Description: "Basic Get-Date command to verify execution works",
	},
	{
		Name:        "Complex Objects",
		Script:      "Get-Process | Select-Object -First 3 -Property Name,Id",
		Description: "Returns multiple complex objects with properties",
	},
	{
		Name:        "String Parameter",
		Script:      "param($Greeting) Write-Output $Greeting",
		Parameters:  map[string]string{"Greeting": "Hello from the Go SRS client!"},
		Description: "Named parameter bound by the service",
	},
	{
		Name:        "Multiple Outputs",
		Script:      "1..5 | ForEach-Object { \"Item $_\" }",
		Description: "Returns multiple string objects",
	},
	{
		Name:        "Large Output",
		Script:      "1..100 | ForEach-Object { \"Line $_ - \" + ('X' * 50) }",
		Description: "Large output collected in one fetch",
	},
	{
		Name:        "Error Handling - Path",
		Script:      "Get-Item '/nonexistent/path/12345'",
		ExpectError: true,
		Description: "Should produce an error record for a non-existent path",
	},
	{
		Name:        "Error Handling - Throw",
		Script:      "throw 'Test error from Go client'",
		ExpectError: true,
		Description: "Explicit throw ends the execution in the Error state",
	},
	{
		Name:        "JSON Output",
		Script:      "@{Status='OK'; Count=42} | ConvertTo-Json",
		Description: "Convert hashtable to JSON string",
	},
	{
		Name:        "PowerCLI Loaded",
		Script:      "Get-Module -ListAvailable VMware.VimAutomation.Core | Select-Object -First 1 -ExpandProperty Name",
		Description: "The runspace has the vSphere modules available",
	},
}
