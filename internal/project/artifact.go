package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is a compiled contract as written by truffle into the build
// directory.
type Artifact struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	SourcePath       string          `json:"sourcePath,omitempty"`
	Compiler         json.RawMessage `json:"compiler,omitempty"`
}

// ReadArtifacts decodes every *.json file in dir keyed by contract name. A
// file without a contractName is keyed by its base name.
func ReadArtifacts(dir string) (map[string]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read artifacts: %w", err)
	}

	out := make(map[string]Artifact, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", e.Name(), err)
		}
		a, err := DecodeArtifact(data)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", e.Name(), err)
		}
		name := a.ContractName
		if name == "" {
			name = strings.TrimSuffix(e.Name(), ".json")
		}
		out[name] = a
	}
	return out, nil
}

// DecodeArtifact parses one artifact document.
func DecodeArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.ABI) == 0 {
		return Artifact{}, errors.New("decode artifact: missing abi")
	}
	return a, nil
}
