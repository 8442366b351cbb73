package main

import (
	"github.com/grovekeep/grovesign/cmdline/shared"

	_ "github.com/grovekeep/grovesign/cmdline/reqcmd"
	_ "github.com/grovekeep/grovesign/cmdline/signcmd"
	_ "github.com/grovekeep/grovesign/cmdline/verifycmd"
	_ "github.com/grovekeep/grovesign/cmdline/xarcmd"

	_ "github.com/grovekeep/grovesign/signers/xar"
)

func main() {
	shared.Main()
}
