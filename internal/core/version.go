package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ModuleConfig is the plain-map representation of a task/module's declared
// configuration. Because Go's encoding/json marshals map[string]any keys in
// lexicographic order (recursively, for nested maps), canonicalization for
// hashing purposes is "marshal the map" rather than a hand-rolled sorter.
type ModuleConfig map[string]any

// runtimeFields are omitted from the config hash unless the config declares
// a buildConfig section, in which case only buildConfig is hashed and this
// list is moot.
var runtimeFields = []string{"serviceConfigs", "taskConfigs", "testConfigs", "timeout", "cacheResult"}

// DependencyVersion pairs a dependency's name with its resolved version
// string, for combination into a task's own inputVersion.
type DependencyVersion struct {
	Name          string
	VersionString string
}

// ComputeInputVersion implements the VersionHasher contract: a stable,
// order-insensitive content hash over (config, tree, dependency versions).
//
//  1. Module config hash: canonical (lexicographic) key ordering, runtime
//     fields omitted. If the config declares "buildConfig", only that
//     section is hashed (siblings, including "spec", are ignored); "spec"
//     participates only when "buildConfig" is absent.
//  2. Combined with treeVersion (a contentHash over the config's source
//     tree; see FileScanner).
//  3. Combined with dependency versions sorted by name ascending.
//  4. Output: "v-" + first 10 hex chars of SHA-256 over the combination.
func ComputeInputVersion(cfg ModuleConfig, treeVersion string, depVersions []DependencyVersion) (string, error) {
	configBytes, err := canonicalConfigBytes(cfg)
	if err != nil {
		return "", err
	}

	sorted := make([]DependencyVersion, len(depVersions))
	copy(sorted, depVersions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	hasher := sha256.New()
	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := make([]byte, 8)
		for i := 0; i < 8; i++ {
			lengthBytes[7-i] = byte(length >> (8 * i))
		}
		hasher.Write(lengthBytes)
		hasher.Write(data)
	}

	writeField(configBytes)
	writeField([]byte(treeVersion))
	writeField([]byte{byte(len(sorted))})
	for _, dv := range sorted {
		writeField([]byte(dv.Name))
		writeField([]byte(dv.VersionString))
	}

	sum := hasher.Sum(nil)
	return "v-" + hex.EncodeToString(sum)[:10], nil
}

// canonicalConfigBytes implements the buildConfig carve-out: when present,
// only that section is hashed; otherwise the config minus runtime fields
// (plus "spec", when present) is hashed.
func canonicalConfigBytes(cfg ModuleConfig) ([]byte, error) {
	if build, ok := cfg["buildConfig"]; ok {
		return json.Marshal(build)
	}

	omit := make(map[string]bool, len(runtimeFields))
	for _, f := range runtimeFields {
		omit[f] = true
	}

	filtered := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if omit[k] {
			continue
		}
		filtered[k] = v
	}
	return json.Marshal(filtered)
}
