// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"regexp"
	"strings"
)

// IdentifierPrefix is prepended to the hex digits of the MAC address.
const IdentifierPrefix = "SPT-"

var matchMACRegexp = regexp.MustCompile(`MAC:\s*([0-9a-fA-F:]{17})`)

// ParseMAC extracts the MAC address esptool prints after the 'MAC:' label.
// Only the shape of the token is checked.
func ParseMAC(output string) (string, error) {
	matches := matchMACRegexp.FindStringSubmatch(output)
	if matches == nil {
		return "", ErrMACNotFound
	}
	return matches[1], nil
}

// FormatIdentifier turns a MAC address like 'aa:bb:cc:dd:ee:ff' into
// 'SPT-AABBCCDDEEFF'.
func FormatIdentifier(mac string) string {
	return IdentifierPrefix + strings.ToUpper(strings.ReplaceAll(mac, ":", ""))
}
