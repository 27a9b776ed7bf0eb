package main

import "github.com/skydoves/firebase-android-ktx/apps/go-cli/cmd"

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
