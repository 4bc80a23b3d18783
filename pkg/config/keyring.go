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
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"r00t2.io/gokwallet"
	"r00t2.io/gosecret"
)

// PassphraseKey is the name the stored passphrase is kept under in the
// environment, in KWallet and in the Secret Service.
const PassphraseKey = "SEAL_PASSPHRASE"

const (
	walletApp    = "seal"
	walletFolder = "Passwords"
	walletMap    = "seal"
)

var ErrNoStoredPassphrase = fmt.Errorf("no stored passphrase found for %s", PassphraseKey)

// These functions are referenced as variables to enable them to
// be mocked in tests
var (
	getenv              func(string) string          = os.Getenv
	getSecretFromWallet func(string) (string, error) = getSecretFromKWallet
	getSecretFromStore  func(string) (string, error) = getSecretFromSecretsService
)

// StoredPassphrase looks up the passphrase from the environment, then
// KWallet, then the Secret Service.
func StoredPassphrase() ([]byte, error) {
	if value := getenv(PassphraseKey); value != "" {
		log.Debug().Msg("Using passphrase from environment")
		return []byte(value), nil
	}
	if value := getSecret(PassphraseKey); value != "" {
		return []byte(value), nil
	}
	return nil, ErrNoStoredPassphrase
}

func getSecret(what string) string {
	var (
		value string
		err   error
	)

	if value, err = getSecretFromWallet(what); err == nil && value != "" {
		log.Debug().Str("store", "kwallet").Msg("Using stored passphrase")
		return value
	} else if err != nil {
		log.Debug().Err(err).Msg("KWallet lookup failed")
	}

	if value, err = getSecretFromStore(what); err == nil && value != "" {
		log.Debug().Str("store", "secret-service").Msg("Using stored passphrase")
		return value
	} else if err != nil {
		log.Debug().Err(err).Msg("Secret Service lookup failed")
	}
	return ""
}

// Gets a secret value from kwallet
func getSecretFromKWallet(what string) (string, error) {
	if getenv("USE_LIBSECRET") != "" {
		return "", fmt.Errorf("skipping kwallet")
	}

	var (
		err error
		r   *gokwallet.RecurseOpts = gokwallet.DefaultRecurseOpts
		wm  *gokwallet.WalletManager
	)

	r.AllWalletItems = true
	if wm, err = gokwallet.NewWalletManager(r, walletApp); err != nil {
		return "", err
	}

	for _, v := range wm.Wallets {
		if f, ok := v.Folders[walletFolder]; ok {
			if m, ok := f.Maps[walletMap]; ok {
				if p, ok := m.Value[what]; ok {
					return p, nil
				}
			}
		}
	}
	return "", nil
}

// Gets a secret from libsecrets
func getSecretFromSecretsService(what string) (string, error) {
	if getenv("USE_KWALLET") != "" {
		return "", nil
	}

	var (
		err           error
		service       *gosecret.Service
		unlockedItems []*gosecret.Item
	)

	if service, err = gosecret.NewService(); err != nil {
		return "", err
	}
	defer service.Close()

	service.Legacy = true
	if unlockedItems, _, err = service.SearchItems(map[string]string{
		"Path": "/" + walletFolder + "/" + walletMap,
	}); err != nil {
		return "", err
	}

	for _, item := range unlockedItems {
		attributes, _ := item.Attributes()
		if value, ok := attributes[what]; ok {
			return value, nil
		}
	}
	return "", nil
}
