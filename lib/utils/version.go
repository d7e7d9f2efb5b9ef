/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed version.yaml
var versionFile []byte

// Version represents the version structure
type Version struct {
	Major    string `yaml:"major"`
	Minor    string `yaml:"minor"`
	Revision string `yaml:"revision"`
	Hash     string `yaml:"hash"`
}

// String returns the version as a string
func (v Version) String() string {
	version := fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Revision)
	if v.Hash != "" {
		version += fmt.Sprintf(".%s", v.Hash)
	}
	return version
}

// ParseVersion decodes a version.yaml document.
func ParseVersion(data []byte) (Version, error) {
	var version Version
	if err := yaml.Unmarshal(data, &version); err != nil {
		return Version{}, fmt.Errorf("failed to parse version file: %w", err)
	}
	if version.Major == "" {
		return Version{}, fmt.Errorf("version file has no major version")
	}
	return version, nil
}

// LoadVersion returns the version compiled into the binary, or "dev" if the
// embedded file cannot be parsed.
func LoadVersion() (string, error) {
	version, err := ParseVersion(versionFile)
	if err != nil {
		return "dev", err
	}
	return version.String(), nil
}
