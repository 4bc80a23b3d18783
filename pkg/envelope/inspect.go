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
package envelope

import (
	"encoding/hex"

	"github.com/notapipeline/seal/pkg/types"
)

// Info describes an envelope header. No key material is involved in
// producing it.
type Info struct {
	Magic         string `json:"magic"`
	Profile       string `json:"profile,omitempty"`
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	Lockout       string `json:"lockout,omitempty"`
	Salt          string `json:"salt"`
	Nonce         string `json:"nonce"`
	Size          int    `json:"size"`
	PlaintextSize int    `json:"plaintext_size"`
}

// Inspect reads the header of data and matches its magic against profiles.
//
// An envelope whose magic matches no profile is still described, with an
// empty Profile.
func Inspect(data []byte, profiles []types.Profile) (*Info, error) {
	var e Envelope
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	var info *Info = &Info{
		Magic:         e.Magic.String(),
		Salt:          hex.EncodeToString(e.Salt[:]),
		Nonce:         hex.EncodeToString(e.Nonce[:]),
		Size:          e.Size(),
		PlaintextSize: e.PlaintextSize(),
	}

	for _, p := range profiles {
		if p.Magic == e.Magic {
			info.Profile = p.Name
			info.MaxAttempts = p.MaxAttempts
			info.Lockout = p.Lockout.String()
			break
		}
	}
	return info, nil
}
