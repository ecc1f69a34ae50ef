// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDescriptor is one descriptor file as written. Pointer fields distinguish
// "unset" from the zero value so that composition can tell an override from
// an omission.
type rawDescriptor struct {
	Name        *string `json:"name,omitempty" yaml:"name" toml:"name"`
	Version     *string `json:"version,omitempty" yaml:"version" toml:"version"`
	Description *string `json:"description,omitempty" yaml:"description" toml:"description"`

	EntryPoint  *string `json:"entry_point,omitempty" yaml:"entry_point" toml:"entry_point"`
	WorkingRoot *string `json:"working_root,omitempty" yaml:"working_root" toml:"working_root"`

	DataMappings   []rawMapping `json:"data_mappings,omitempty" yaml:"data_mappings" toml:"data_mappings"`
	ForcedModules  []string     `json:"forced_modules,omitempty" yaml:"forced_modules" toml:"forced_modules"`
	ExcludeModules []string     `json:"exclude_modules,omitempty" yaml:"exclude_modules" toml:"exclude_modules"`
	RuntimeHooks   []rawHook    `json:"runtime_hooks,omitempty" yaml:"runtime_hooks" toml:"runtime_hooks"`

	OutputName  *string `json:"output_name,omitempty" yaml:"output_name" toml:"output_name"`
	ConsoleMode *bool   `json:"console_mode,omitempty" yaml:"console_mode" toml:"console_mode"`
	Compress    *bool   `json:"compress,omitempty" yaml:"compress" toml:"compress"`
	Strip       *bool   `json:"strip,omitempty" yaml:"strip" toml:"strip"`
	Compression *string `json:"compression,omitempty" yaml:"compression" toml:"compression"`

	Interpreter   *string           `json:"interpreter,omitempty" yaml:"interpreter" toml:"interpreter"`
	ModulePaths   []string          `json:"module_paths,omitempty" yaml:"module_paths" toml:"module_paths"`
	ModulePathEnv *string           `json:"module_path_env,omitempty" yaml:"module_path_env" toml:"module_path_env"`
	Walker        *string           `json:"walker,omitempty" yaml:"walker" toml:"walker"`
	Icon          *string           `json:"icon,omitempty" yaml:"icon" toml:"icon"`
	Env           map[string]string `json:"env,omitempty" yaml:"env" toml:"env"`

	Extends []string `json:"extends,omitempty" yaml:"extends" toml:"extends"`
}

type rawMapping struct {
	Source string `json:"source" yaml:"source" toml:"source"`
	Dest   string `json:"dest" yaml:"dest" toml:"dest"`
	Mode   string `json:"mode,omitempty" yaml:"mode" toml:"mode"`
}

type rawHook struct {
	Script string            `json:"script,omitempty" yaml:"script" toml:"script"`
	Env    map[string]string `json:"env,omitempty" yaml:"env" toml:"env"`
}

// UnmarshalJSON also accepts the ["source", "dest"] pair form.
func (m *rawMapping) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		return m.fromPair(pair)
	}
	type plain rawMapping
	return json.Unmarshal(data, (*plain)(m))
}

// UnmarshalYAML also accepts the [source, dest] pair form.
func (m *rawMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var pair []string
		if err := node.Decode(&pair); err != nil {
			return err
		}
		return m.fromPair(pair)
	}
	type plain rawMapping
	return node.Decode((*plain)(m))
}

func (m *rawMapping) fromPair(pair []string) error {
	switch len(pair) {
	case 1:
		m.Source = pair[0]
	case 2:
		m.Source, m.Dest = pair[0], pair[1]
	default:
		return fmt.Errorf("data mapping pair must be [source, dest], got %d elements", len(pair))
	}
	return nil
}
