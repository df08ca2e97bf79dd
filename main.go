// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// wormhole sends files and text messages between two computers using short codes
package main

import "wormhole/cmd"

func main() {
	cmd.Execute()
}
