/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a stable digest of a JSON-serializable value; the
// polling listener uses it to detect app config changes between fetches.
func Fingerprint(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		panic("this cannot happen")
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])
}
