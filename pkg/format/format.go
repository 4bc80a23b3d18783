/*
 *   Copyright 2023 Martin Proffitt <mproffitt@choclab.net>
 *
 *  Licensed under the Apache License, Version 2.0 (the "License");
 *  you may not use this file except in compliance with the License.
 *  You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 *  Unless required by applicable law or agreed to in writing, software
 *  distributed under the License is distributed on an "AS IS" BASIS,
 *  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  See the License for the specific language governing permissions and
 *  limitations under the License.
 */

// Package format wraps envelope bytes for transport.
//
// An envelope can be written as raw bytes, as an ASCII armored block or as a
// Kubernetes Secret manifest. Decode recognises all three.
package format

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"
)

type Format string

const (
	Raw        Format = "raw"
	Armor      Format = "armor"
	Kubernetes Format = "k8s"
)

const (
	ArmorBlockType = "SEAL ENVELOPE"
	ArmorProfile   = "Profile"

	SecretKey         = "envelope"
	ManagedByLabel    = "app.kubernetes.io/managed-by"
	ManagedBy         = "seal"
	ProfileAnnotation = "seal.notapipeline.io/profile"
	defaultSecretName = "sealed"
)

var invalidNameChars *regexp.Regexp = regexp.MustCompile(`[^a-z0-9.-]+`)

// Metadata travels alongside the envelope in the armor and k8s formats
type Metadata struct {
	Profile string
	// Name of the Kubernetes Secret
	Name string
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Raw, nil
	case Raw, Armor, Kubernetes:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q. Must be one of raw, armor, k8s", s)
}

// SecretName derives a valid Secret name from a file path
func SecretName(path string) string {
	var name string = strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" || name == "." {
		return defaultSecretName
	}
	return name
}

func Encode(f Format, data []byte, meta Metadata) ([]byte, error) {
	switch f {
	case Raw, "":
		return data, nil
	case Armor:
		return encodeArmor(data, meta)
	case Kubernetes:
		return encodeSecret(data, meta)
	}
	return nil, fmt.Errorf("unknown format %q", f)
}

// Decode detects the format of data and returns the envelope bytes it holds.
//
// Anything that is neither an armored block nor a Secret manifest is taken
// as a raw envelope.
func Decode(data []byte) ([]byte, Format, Metadata, error) {
	var trimmed []byte = bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("-----BEGIN "+ArmorBlockType)):
		raw, meta, err := decodeArmor(trimmed)
		return raw, Armor, meta, err
	case isManifest(trimmed):
		raw, meta, err := decodeSecret(trimmed)
		return raw, Kubernetes, meta, err
	}
	return data, Raw, Metadata{}, nil
}

func encodeArmor(data []byte, meta Metadata) ([]byte, error) {
	var (
		buf     bytes.Buffer
		headers map[string]string = map[string]string{}
	)
	if meta.Profile != "" {
		headers[ArmorProfile] = meta.Profile
	}

	w, err := armor.Encode(&buf, ArmorBlockType, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to armor envelope: %w", err)
	}
	if _, err = w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to armor envelope: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("failed to armor envelope: %w", err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func decodeArmor(data []byte) ([]byte, Metadata, error) {
	block, err := armor.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid armor: %w", err)
	}
	if block.Type != ArmorBlockType {
		return nil, Metadata{}, fmt.Errorf("unexpected armor block type %q", block.Type)
	}

	var raw []byte
	if raw, err = io.ReadAll(block.Body); err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid armor: %w", err)
	}
	return raw, Metadata{Profile: block.Header[ArmorProfile]}, nil
}

func encodeSecret(data []byte, meta Metadata) ([]byte, error) {
	var name string = meta.Name
	if name == "" {
		name = defaultSecretName
	}
	if errs := validation.IsDNS1123Subdomain(name); len(errs) != 0 {
		return nil, fmt.Errorf("invalid secret name %q: %s", name, strings.Join(errs, ", "))
	}

	var secret corev1.Secret = corev1.Secret{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Secret",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				ManagedByLabel: ManagedBy,
			},
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{
			SecretKey: data,
		},
	}
	if meta.Profile != "" {
		secret.ObjectMeta.Annotations = map[string]string{
			ProfileAnnotation: meta.Profile,
		}
	}

	b, err := yaml.Marshal(&secret)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret: %w", err)
	}
	return b, nil
}

func decodeSecret(data []byte) ([]byte, Metadata, error) {
	var secret corev1.Secret
	if err := yaml.Unmarshal(data, &secret); err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid secret manifest: %w", err)
	}

	raw, ok := secret.Data[SecretKey]
	if !ok {
		return nil, Metadata{}, fmt.Errorf("secret %q has no %q key", secret.Name, SecretKey)
	}
	return raw, Metadata{
		Profile: secret.Annotations[ProfileAnnotation],
		Name:    secret.Name,
	}, nil
}

func isManifest(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	var probe metav1.TypeMeta
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Kind == "Secret"
}
