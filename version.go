package mintline

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/aretw0/mintline.Version=...".
var Version = "dev"
