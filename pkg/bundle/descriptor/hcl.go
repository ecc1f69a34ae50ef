// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// hclFile is the top-level structure of an HCL descriptor.
//
//	output_name = "main_diff"
//	entry_point = "main_diff.py"
//
//	data {
//	  source = "config.ini"
//	  dest   = ""
//	}
//
//	hook {
//	  env = { PLAYWRIGHT_BROWSERS_PATH = "{bundle}/playwright/ms-playwright" }
//	}
type hclFile struct {
	Name        *string `hcl:"name,optional"`
	Version     *string `hcl:"version,optional"`
	Description *string `hcl:"description,optional"`

	EntryPoint  *string `hcl:"entry_point,optional"`
	WorkingRoot *string `hcl:"working_root,optional"`

	ForcedModules  []string `hcl:"forced_modules,optional"`
	ExcludeModules []string `hcl:"exclude_modules,optional"`

	OutputName  *string `hcl:"output_name,optional"`
	ConsoleMode *bool   `hcl:"console_mode,optional"`
	Compress    *bool   `hcl:"compress,optional"`
	Strip       *bool   `hcl:"strip,optional"`
	Compression *string `hcl:"compression,optional"`

	Interpreter   *string           `hcl:"interpreter,optional"`
	ModulePaths   []string          `hcl:"module_paths,optional"`
	ModulePathEnv *string           `hcl:"module_path_env,optional"`
	Walker        *string           `hcl:"walker,optional"`
	Icon          *string           `hcl:"icon,optional"`
	Env           map[string]string `hcl:"env,optional"`
	Extends       []string          `hcl:"extends,optional"`

	Data  []*hclMapping `hcl:"data,block"`
	Hooks []*hclHook    `hcl:"hook,block"`
}

type hclMapping struct {
	Source string  `hcl:"source"`
	Dest   *string `hcl:"dest,optional"`
	Mode   *string `hcl:"mode,optional"`
}

type hclHook struct {
	Script *string           `hcl:"script,optional"`
	Env    map[string]string `hcl:"env,optional"`
}

// decodeHCL parses an HCL descriptor. Expressions can reference
// platform.os, platform.arch and env.<NAME>, and call a handful of string
// functions (upper, lower, join, format, replace).
func decodeHCL(path string, src []byte) (*rawDescriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL descriptor %s: %w", path, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL descriptor %s: %w", path, diags)
	}

	raw := &rawDescriptor{
		Name:           parsed.Name,
		Version:        parsed.Version,
		Description:    parsed.Description,
		EntryPoint:     parsed.EntryPoint,
		WorkingRoot:    parsed.WorkingRoot,
		ForcedModules:  parsed.ForcedModules,
		ExcludeModules: parsed.ExcludeModules,
		OutputName:     parsed.OutputName,
		ConsoleMode:    parsed.ConsoleMode,
		Compress:       parsed.Compress,
		Strip:          parsed.Strip,
		Compression:    parsed.Compression,
		Interpreter:    parsed.Interpreter,
		ModulePaths:    parsed.ModulePaths,
		ModulePathEnv:  parsed.ModulePathEnv,
		Walker:         parsed.Walker,
		Icon:           parsed.Icon,
		Env:            parsed.Env,
		Extends:        parsed.Extends,
	}
	for _, m := range parsed.Data {
		rm := rawMapping{Source: m.Source}
		if m.Dest != nil {
			rm.Dest = *m.Dest
		}
		if m.Mode != nil {
			rm.Mode = *m.Mode
		}
		raw.DataMappings = append(raw.DataMappings, rm)
	}
	for _, h := range parsed.Hooks {
		rh := rawHook{Env: h.Env}
		if h.Script != nil {
			rh.Script = *h.Script
		}
		raw.RuntimeHooks = append(raw.RuntimeHooks, rh)
	}
	return raw, nil
}

func evalContext() *hcl.EvalContext {
	envVals := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" && hclIdentifier(k) {
			envVals[k] = cty.StringVal(v)
		}
	}
	envObj := cty.EmptyObjectVal
	if len(envVals) > 0 {
		envObj = cty.ObjectVal(envVals)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"platform": cty.ObjectVal(map[string]cty.Value{
				"os":   cty.StringVal(runtime.GOOS),
				"arch": cty.StringVal(runtime.GOARCH),
			}),
			"env": envObj,
		},
		Functions: map[string]function.Function{
			"upper":   stdlib.UpperFunc,
			"lower":   stdlib.LowerFunc,
			"join":    stdlib.JoinFunc,
			"format":  stdlib.FormatFunc,
			"replace": stdlib.ReplaceFunc,
		},
	}
}

// hclIdentifier reports whether name can be used as an attribute name in a
// traversal like env.NAME.
func hclIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
